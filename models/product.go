package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Category      string          `gorm:"size:100" json:"category"`
	Description   string          `gorm:"type:text" json:"description"`
	Barcodes      []string        `gorm:"serializer:json" json:"barcodes"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"purchasePrice"`
	SellingPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"sellingPrice"`
	Stock         int             `gorm:"not null;default:0" json:"stock"`
	MinStock      int             `gorm:"not null;default:0" json:"minStock"`
	SupplierId    *string         `gorm:"size:64;index" json:"supplierId"`
	IsArchived    bool            `gorm:"not null;default:false" json:"isArchived"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type NewProduct struct {
	ID            string          `json:"id"`
	Name          string          `json:"name" validate:"required,max=255"`
	Category      string          `json:"category" validate:"max=100"`
	Description   string          `json:"description"`
	Barcodes      []string        `json:"barcodes" validate:"dive,required"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	Stock         int             `json:"stock" validate:"min=0"`
	MinStock      int             `json:"minStock" validate:"min=0"`
	SupplierId    *string         `json:"supplierId"`
}

func (n NewProduct) Validate() error {
	if n.SellingPrice.IsNegative() {
		return Validation("sellingPrice must not be negative")
	}
	if n.PurchasePrice.IsNegative() {
		return Validation("purchasePrice must not be negative")
	}
	return nil
}

// ProductPatch may set Stock directly; that is a deliberate override, not a tracked movement.
type ProductPatch struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Category      *string          `json:"category" validate:"omitempty,max=100"`
	Description   *string          `json:"description"`
	Barcodes      *[]string        `json:"barcodes"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice"`
	SellingPrice  *decimal.Decimal `json:"sellingPrice"`
	Stock         *int             `json:"stock" validate:"omitempty,min=0"`
	MinStock      *int             `json:"minStock" validate:"omitempty,min=0"`
	SupplierId    Nullable[string] `json:"supplierId"`
	IsArchived    *bool            `json:"isArchived"`
}

func (p ProductPatch) Validate() error {
	if p.SellingPrice != nil && p.SellingPrice.IsNegative() {
		return Validation("sellingPrice must not be negative")
	}
	if p.PurchasePrice != nil && p.PurchasePrice.IsNegative() {
		return Validation("purchasePrice must not be negative")
	}
	return nil
}

func (p *Product) ApplyPatch(patch ProductPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Barcodes != nil {
		p.Barcodes = NormalizeBarcodes(*patch.Barcodes)
	}
	if patch.PurchasePrice != nil {
		p.PurchasePrice = *patch.PurchasePrice
	}
	if patch.SellingPrice != nil {
		p.SellingPrice = *patch.SellingPrice
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.MinStock != nil {
		p.MinStock = *patch.MinStock
	}
	if patch.SupplierId.Set {
		p.SupplierId = patch.SupplierId.Value
	}
	if patch.IsArchived != nil {
		p.IsArchived = *patch.IsArchived
	}
}

func (p *Product) Clone() *Product {
	cp := *p
	if p.Barcodes != nil {
		cp.Barcodes = append([]string(nil), p.Barcodes...)
	}
	if p.SupplierId != nil {
		v := *p.SupplierId
		cp.SupplierId = &v
	}
	return &cp
}

func (p *Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

// NormalizeBarcodes trims, drops empties and removes repeats while keeping order.
func NormalizeBarcodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

type StockAdjustment struct {
	ProductId string `json:"productId" validate:"required"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason" validate:"max=255"`
}
