package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier balance is positive when the shop owes the supplier.
type Supplier struct {
	ID        string          `gorm:"primaryKey;size:64" json:"id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Category  string          `gorm:"size:100" json:"category"`
	Phone     string          `gorm:"size:30" json:"phone"`
	Email     string          `gorm:"size:100" json:"email"`
	Address   string          `gorm:"size:255" json:"address"`
	Notes     string          `gorm:"type:text" json:"notes"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}

type NewSupplier struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required,max=100"`
	Category       string          `json:"category" validate:"max=100"`
	Phone          string          `json:"phone" validate:"max=30"`
	Email          string          `json:"email" validate:"omitempty,email"`
	Address        string          `json:"address" validate:"max=255"`
	Notes          string          `json:"notes"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

type SupplierPatch struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Category *string `json:"category" validate:"omitempty,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Address  *string `json:"address" validate:"omitempty,max=255"`
	Notes    *string `json:"notes"`
}

func (s *Supplier) ApplyPatch(p SupplierPatch) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Phone != nil {
		s.Phone = *p.Phone
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Address != nil {
		s.Address = *p.Address
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
}

func (s *Supplier) Clone() *Supplier {
	cp := *s
	return &cp
}

func (s *Supplier) ApplyTransaction(t SupplierTransactionType, oldAmount, newAmount decimal.Decimal) {
	s.Balance = ApplyTransactionDelta(s.Balance, oldAmount, newAmount, t.IsDebtLike())
}
