package utils

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mmdatafocus/shopledger_backend/models"
)

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       any
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"MMK 20,000", "20000"},
		{"MMK -20,000", "-20000"},
		{"  ks 1,234.50  ", "1234.5"},
		{json.Number("15.25"), "15.25"},
		{3, "3"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%v) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%v) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []any{"", "MMK", "abc", true} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%v) expected error", in)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(650) 253-0000", "US")
	if err != nil {
		t.Fatalf("NormalizePhone: %v", err)
	}
	if got != "+16502530000" {
		t.Fatalf("expected +16502530000, got %s", got)
	}
	if got, _ := NormalizePhone(" 12345 ", ""); got != "12345" {
		t.Fatalf("no region should pass through, got %q", got)
	}
	if _, err := NormalizePhone("12", "US"); err == nil {
		t.Fatalf("expected invalid phone error")
	}
}

func TestValidateStructReportsJsonNames(t *testing.T) {
	err := ValidateStruct(models.NewBreadOrder{Name: "", Quantity: 0})
	if models.KindOf(err) != models.ErrorKindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := ProcessValidationErrors(Validator().Struct(models.NewBreadOrder{}))
	if fields["NewBreadOrder.name"] != "required" || fields["NewBreadOrder.quantity"] != "gt" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if err := ValidateStruct(models.NewBreadOrder{Name: "Aye", Quantity: 2}); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}
}

func TestEnsureCorrelationId(t *testing.T) {
	ctx, id := EnsureCorrelationId(context.Background())
	if id == "" {
		t.Fatalf("expected generated id")
	}
	ctx2, id2 := EnsureCorrelationId(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("existing correlation id should be kept")
	}
}
