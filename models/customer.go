package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer balance is positive when the customer owes the shop.
type Customer struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	Phone         string          `gorm:"size:30" json:"phone"`
	CreatedAt     time.Time       `json:"createdAt"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	SettlementDay *int            `json:"settlementDay"`
}

type NewCustomer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required,max=100"`
	Phone          string          `json:"phone" validate:"max=30"`
	SettlementDay  *int            `json:"settlementDay" validate:"omitempty,min=1,max=31"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// CustomerPatch leaves Balance out on purpose: balances only move through transactions.
type CustomerPatch struct {
	Name          *string       `json:"name" validate:"omitempty,min=1,max=100"`
	Phone         *string       `json:"phone" validate:"omitempty,max=30"`
	SettlementDay Nullable[int] `json:"settlementDay"`
}

func (c *Customer) ApplyPatch(p CustomerPatch) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.SettlementDay.Set {
		c.SettlementDay = p.SettlementDay.Value
	}
}

func (c *Customer) Clone() *Customer {
	cp := *c
	if c.SettlementDay != nil {
		d := *c.SettlementDay
		cp.SettlementDay = &d
	}
	return &cp
}

// ApplyTransaction moves the balance for a customer transaction being inserted (old zero),
// edited, or removed (new zero).
func (c *Customer) ApplyTransaction(t TransactionType, oldAmount, newAmount decimal.Decimal) {
	c.Balance = ApplyTransactionDelta(c.Balance, oldAmount, newAmount, t.IsDebtLike())
}

type CustomerStatementLine struct {
	Transaction    Transaction     `json:"transaction"`
	RunningBalance decimal.Decimal `json:"runningBalance"`
}

type CustomerStatement struct {
	Customer Customer                `json:"customer"`
	Lines    []CustomerStatementLine `json:"lines"`
}
