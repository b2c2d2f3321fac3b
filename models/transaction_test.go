package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateDescription(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  int
		ellip bool
	}{
		{"short ascii", "Sale: Bread x2", 14, false},
		{"exact limit", strings.Repeat("a", DescriptionMaxLength), DescriptionMaxLength, false},
		{"long ascii", strings.Repeat("a", 300), DescriptionMaxLength, true},
		{"long burmese", strings.Repeat("မုန့်", 80), DescriptionMaxLength, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateDescription(tc.in)
			if !utf8.ValidString(got) {
				t.Fatalf("invalid UTF-8: %q", got)
			}
			if n := utf8.RuneCountInString(got); n != tc.want {
				t.Fatalf("got %d characters, want %d", n, tc.want)
			}
			if strings.HasSuffix(got, "...") != tc.ellip {
				t.Fatalf("ellipsis = %v, want %v", !tc.ellip, tc.ellip)
			}
		})
	}
}
