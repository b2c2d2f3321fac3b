package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyTransactionDelta(t *testing.T) {
	cases := []struct {
		name       string
		balance    string
		old, next  string
		debtLike   bool
		wantResult string
	}{
		{"insert debt", "0", "0", "20", true, "20"},
		{"insert payment", "20", "0", "20", false, "0"},
		{"edit debt up", "20", "20", "25.5", true, "25.5"},
		{"edit payment down", "-5", "10", "4", false, "1"},
		{"delete debt", "20", "20", "0", true, "0"},
		{"delete payment", "0", "20", "0", false, "20"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyTransactionDelta(d(tc.balance), d(tc.old), d(tc.next), tc.debtLike)
			if !got.Equal(d(tc.wantResult)) {
				t.Fatalf("got %s, want %s", got, tc.wantResult)
			}
		})
	}
}

func TestSumBalance(t *testing.T) {
	list := []*Transaction{
		{Type: TransactionTypeDebt, Amount: d("20")},
		{Type: TransactionTypePayment, Amount: d("7.25")},
		{Type: TransactionTypeDebt, Amount: d("1")},
	}
	if got := SumBalance(list); !got.Equal(d("13.75")) {
		t.Fatalf("SumBalance = %s, want 13.75", got)
	}
}

func TestIdAllocator(t *testing.T) {
	a := NewIdAllocator([]string{"3", "7", "abc", "-2"}, []string{" 5 "})
	if got := a.Next(); got != "8" {
		t.Fatalf("first id = %s, want 8", got)
	}
	if got := a.Next(); got != "9" {
		t.Fatalf("second id = %s, want 9", got)
	}
	if got := NewIdAllocator().Next(); got != "1" {
		t.Fatalf("empty allocator starts at %s, want 1", got)
	}
}

func TestCompareIds(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "10", 0},
		{"9", "abc", -1},
		{"abc", "9", 1},
		{"abc", "abd", -1},
	}
	for _, tc := range cases {
		if got := CompareIds(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareIds(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
