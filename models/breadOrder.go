package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BreadOrder keeps the unit price it was created with; later price settings do not touch it.
type BreadOrder struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unitPrice"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"totalAmount"`
	IsPaid       bool            `gorm:"not null;default:false" json:"isPaid"`
	IsDelivered  bool            `gorm:"not null;default:false" json:"isDelivered"`
	IsPinned     bool            `gorm:"not null;default:false" json:"isPinned"`
	CreatedAt    time.Time       `json:"createdAt"`
	CustomerId   *string         `gorm:"size:64;index" json:"customerId"`
	CustomerName string          `gorm:"size:100" json:"customerName"`
}

type NewBreadOrder struct {
	Name       string           `json:"name" validate:"required,max=255"`
	Quantity   int              `json:"quantity" validate:"gt=0"`
	UnitPrice  *decimal.Decimal `json:"unitPrice"`
	CustomerId *string          `json:"customerId"`
	IsPaid     bool             `json:"isPaid"`
	IsPinned   bool             `json:"isPinned"`
}

type BreadOrderPatch struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unitPrice"`
	CustomerId  Nullable[string] `json:"customerId"`
	IsPaid      *bool            `json:"isPaid"`
	IsDelivered *bool            `json:"isDelivered"`
	IsPinned    *bool            `json:"isPinned"`
}

func (p BreadOrderPatch) Validate() error {
	if p.Quantity != nil && *p.Quantity <= 0 {
		return Validation("quantity must be greater than zero")
	}
	if p.UnitPrice != nil && p.UnitPrice.IsNegative() {
		return Validation("unitPrice must not be negative")
	}
	return nil
}

// Apply returns the patched copy of the order with TotalAmount recomputed.
// CustomerName is left to the caller, which has to resolve it from the store.
func (o BreadOrder) Apply(p BreadOrderPatch) BreadOrder {
	next := *o.Clone()
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Quantity != nil {
		next.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		next.UnitPrice = *p.UnitPrice
	}
	if p.CustomerId.Set {
		next.CustomerId = p.CustomerId.Value
		if next.CustomerId == nil {
			next.CustomerName = ""
		}
	}
	if p.IsPaid != nil {
		next.IsPaid = *p.IsPaid
	}
	if p.IsDelivered != nil {
		next.IsDelivered = *p.IsDelivered
	}
	if p.IsPinned != nil {
		next.IsPinned = *p.IsPinned
	}
	next.TotalAmount = OrderTotal(next.Quantity, next.UnitPrice)
	return next
}

func (o *BreadOrder) Clone() *BreadOrder {
	cp := *o
	if o.CustomerId != nil {
		v := *o.CustomerId
		cp.CustomerId = &v
	}
	return &cp
}

// Equal compares every stored field.
func (o *BreadOrder) Equal(other *BreadOrder) bool {
	return o.ID == other.ID &&
		o.Name == other.Name &&
		o.Quantity == other.Quantity &&
		o.UnitPrice.Equal(other.UnitPrice) &&
		o.TotalAmount.Equal(other.TotalAmount) &&
		o.IsPaid == other.IsPaid &&
		o.IsDelivered == other.IsDelivered &&
		o.IsPinned == other.IsPinned &&
		o.CreatedAt.Equal(other.CreatedAt) &&
		equalPtr(o.CustomerId, other.CustomerId) &&
		o.CustomerName == other.CustomerName
}

func (o *BreadOrder) HasCustomer() bool {
	return o.CustomerId != nil && *o.CustomerId != ""
}

// CustomerChanged reports whether next points at a different customer (including to or from none).
func (o *BreadOrder) CustomerChanged(next *BreadOrder) bool {
	return !equalPtr(o.CustomerId, next.CustomerId)
}

func (o *BreadOrder) DebtDescription() string {
	return TruncateDescription(fmt.Sprintf("Bread order: %s (%d)", o.Name, o.Quantity))
}

func (o *BreadOrder) PaymentDescription() string {
	return TruncateDescription(fmt.Sprintf("Bread order settled: %s", o.Name))
}

func OrderTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
