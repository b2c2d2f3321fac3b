package models

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DescriptionMaxLength is the description column size, counted in characters.
const DescriptionMaxLength = 255

// TruncateDescription shortens s to DescriptionMaxLength characters, cutting on rune
// boundaries and marking the cut with "...".
func TruncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= DescriptionMaxLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:DescriptionMaxLength-3]) + "..."
}

// Transaction is one customer ledger entry. OrderId links it to the bread order that
// generated it; the (order_id, type) unique index keeps at most one debt and one payment per order.
type Transaction struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	CustomerId  string          `gorm:"size:64;not null;index" json:"customerId"`
	Type        TransactionType `gorm:"size:16;not null;uniqueIndex:idx_transactions_order_link,priority:2" json:"type"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description string          `gorm:"size:255" json:"description"`
	Date        time.Time       `gorm:"not null;index" json:"date"`
	OrderId     *string         `gorm:"size:64;uniqueIndex:idx_transactions_order_link,priority:1" json:"orderId,omitempty"`
	SaleId      *string         `gorm:"size:64;index" json:"saleId,omitempty"`
	Items       []SaleLineItem  `gorm:"serializer:json" json:"items,omitempty"`
}

type SaleLineItem struct {
	ProductId string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (i SaleLineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type NewTransaction struct {
	CustomerId  string          `json:"customerId" validate:"required"`
	Type        TransactionType `json:"type" validate:"required,oneof=debt payment"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
	Date        *time.Time      `json:"date"`
}

func (n NewTransaction) Validate() error {
	if !n.Type.IsValid() {
		return Validation("invalid transaction type %q", n.Type)
	}
	return requirePositive("amount", n.Amount)
}

type TransactionPatch struct {
	Type        *TransactionType `json:"type"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description" validate:"omitempty,max=255"`
	Date        *time.Time       `json:"date"`
}

func (p TransactionPatch) Validate() error {
	if p.Type != nil && !p.Type.IsValid() {
		return Validation("invalid transaction type %q", *p.Type)
	}
	if p.Amount != nil {
		return requirePositive("amount", *p.Amount)
	}
	return nil
}

func (t *Transaction) ApplyPatch(p TransactionPatch) {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
}

func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.OrderId != nil {
		v := *t.OrderId
		cp.OrderId = &v
	}
	if t.SaleId != nil {
		v := *t.SaleId
		cp.SaleId = &v
	}
	if t.Items != nil {
		cp.Items = append([]SaleLineItem(nil), t.Items...)
	}
	return &cp
}

func (t *Transaction) IsLinkedTo(orderId string) bool {
	return t.OrderId != nil && *t.OrderId == orderId
}

// OrderLinks is the fixed pair of transactions a bread order can own.
type OrderLinks struct {
	Debt    *Transaction
	Payment *Transaction
}

func (l OrderLinks) Get(t TransactionType) *Transaction {
	if t == TransactionTypeDebt {
		return l.Debt
	}
	return l.Payment
}
