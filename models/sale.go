package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the point-of-sale receipt. Its line items outlive product deletion.
type Sale struct {
	ID                   string          `gorm:"primaryKey;size:64" json:"id"`
	Date                 time.Time       `gorm:"not null;index" json:"date"`
	Items                []SaleLineItem  `gorm:"serializer:json" json:"items"`
	Total                decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	AmountPaid           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amountPaid"`
	CustomerId           *string         `gorm:"size:64;index" json:"customerId"`
	DebtTransactionId    *string         `gorm:"size:64" json:"debtTransactionId,omitempty"`
	PaymentTransactionId *string         `gorm:"size:64" json:"paymentTransactionId,omitempty"`
}

func (s *Sale) Clone() *Sale {
	cp := *s
	cp.Items = append([]SaleLineItem(nil), s.Items...)
	if s.CustomerId != nil {
		v := *s.CustomerId
		cp.CustomerId = &v
	}
	if s.DebtTransactionId != nil {
		v := *s.DebtTransactionId
		cp.DebtTransactionId = &v
	}
	if s.PaymentTransactionId != nil {
		v := *s.PaymentTransactionId
		cp.PaymentTransactionId = &v
	}
	return &cp
}

type CartItem struct {
	ProductId string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type SaleOptions struct {
	Total      decimal.Decimal `json:"total"`
	CustomerId *string         `json:"customerId"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
}

type NewSale struct {
	Items []CartItem `json:"items"`
	SaleOptions
}

type SaleResult struct {
	Sale               Sale            `json:"sale"`
	DebtTransaction    *Transaction    `json:"debtTransaction,omitempty"`
	PaymentTransaction *Transaction    `json:"paymentTransaction,omitempty"`
	Change             decimal.Decimal `json:"change"`
}
