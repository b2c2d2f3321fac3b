package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SupplierTransaction struct {
	ID          string                  `gorm:"primaryKey;size:64" json:"id"`
	SupplierId  string                  `gorm:"size:64;not null;index" json:"supplierId"`
	Type        SupplierTransactionType `gorm:"size:16;not null" json:"type"`
	Amount      decimal.Decimal         `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description string                  `gorm:"size:255" json:"description"`
	Date        time.Time               `gorm:"not null;index" json:"date"`
	Items       []PurchaseLineItem      `gorm:"serializer:json" json:"items,omitempty"`
}

type PurchaseLineItem struct {
	ProductId string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (i PurchaseLineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type NewSupplierTransaction struct {
	SupplierId  string                  `json:"supplierId" validate:"required"`
	Type        SupplierTransactionType `json:"type" validate:"required,oneof=purchase payment"`
	Amount      decimal.Decimal         `json:"amount"`
	Description string                  `json:"description" validate:"max=255"`
	Date        *time.Time              `json:"date"`
}

func (n NewSupplierTransaction) Validate() error {
	if !n.Type.IsValid() {
		return Validation("invalid supplier transaction type %q", n.Type)
	}
	return requirePositive("amount", n.Amount)
}

// NewPurchaseInvoice records goods received from a supplier: stock goes up per line and a
// purchase transaction is written for the invoice total.
type NewPurchaseInvoice struct {
	SupplierId  string             `json:"supplierId" validate:"required"`
	Items       []PurchaseLineItem `json:"items" validate:"required,min=1,dive"`
	AmountPaid  decimal.Decimal    `json:"amountPaid"`
	Description string             `json:"description" validate:"max=255"`
	Date        *time.Time         `json:"date"`
}

type SupplierTransactionPatch struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description" validate:"omitempty,max=255"`
	Date        *time.Time       `json:"date"`
}

func (p SupplierTransactionPatch) Validate() error {
	if p.Amount != nil {
		return requirePositive("amount", *p.Amount)
	}
	return nil
}

func (t *SupplierTransaction) ApplyPatch(p SupplierTransactionPatch) {
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

func (t *SupplierTransaction) Clone() *SupplierTransaction {
	cp := *t
	if t.Items != nil {
		cp.Items = append([]PurchaseLineItem(nil), t.Items...)
	}
	return &cp
}
