package workflow

import (
	"context"
	"sort"
	"strings"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
)

func productIdOf(p *models.Product) string { return p.ID }

// checkBarcodes rejects codes already carried by another product.
func checkBarcodes(products []*models.Product, productId string, codes []string) error {
	for _, p := range products {
		if p.ID == productId {
			continue
		}
		for _, existing := range p.Barcodes {
			for _, code := range codes {
				if existing == code {
					return models.Validation("barcode %q is already used by product %q", code, p.ID)
				}
			}
		}
	}
	return nil
}

func (tx *ledgerTx) checkSupplier(supplierId *string) error {
	if supplierId == nil || *supplierId == "" {
		return nil
	}
	_, err := tx.Supplier(*supplierId)
	return err
}

func (s *Service) AddProduct(ctx context.Context, in models.NewProduct) (*models.Product, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var created *models.Product
	err := s.run(ctx, "AddProduct", func(tx *ledgerTx) error {
		existing, err := tx.Products()
		if err != nil {
			return err
		}
		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = models.NewIdAllocator(idsOf(existing, productIdOf)).Next()
		}
		p, err := tx.createProduct(existing, id, in)
		created = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (tx *ledgerTx) createProduct(existing []*models.Product, id string, in models.NewProduct) (*models.Product, error) {
	for _, p := range existing {
		if p.ID == id {
			return nil, models.DuplicateId(models.EntityProduct, id)
		}
	}
	p := &models.Product{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		Category:      strings.TrimSpace(in.Category),
		Description:   in.Description,
		Barcodes:      models.NormalizeBarcodes(in.Barcodes),
		PurchasePrice: in.PurchasePrice,
		SellingPrice:  in.SellingPrice,
		Stock:         in.Stock,
		MinStock:      in.MinStock,
		SupplierId:    utils.NilIfEmpty(utils.DereferencePtr(in.SupplierId)),
		CreatedAt:     tx.at,
	}
	if err := checkBarcodes(existing, p.ID, p.Barcodes); err != nil {
		return nil, err
	}
	if err := tx.checkSupplier(p.SupplierId); err != nil {
		return nil, err
	}
	if err := tx.SaveProduct(p); err != nil {
		return nil, err
	}
	tx.emit(models.EntityProduct, models.ChangeActionCreate, p.ID)
	return p, nil
}

// UpdateProduct patches catalog fields. A Stock value in the patch overrides the count
// outright; use AdjustStock for tracked movements.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var updated *models.Product
	err := s.run(ctx, "UpdateProduct", func(tx *ledgerTx) error {
		p, err := tx.Product(id)
		if err != nil {
			return err
		}
		p.ApplyPatch(patch)
		if patch.Barcodes != nil {
			products, err := tx.Products()
			if err != nil {
				return err
			}
			if err := checkBarcodes(products, p.ID, p.Barcodes); err != nil {
				return err
			}
		}
		if patch.SupplierId.Set {
			if err := tx.checkSupplier(p.SupplierId); err != nil {
				return err
			}
		}
		if err := tx.SaveProduct(p); err != nil {
			return err
		}
		tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProduct removes the product from the catalog. Sale and purchase line items keep
// their copy of the product details.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.run(ctx, "DeleteProduct", func(tx *ledgerTx) error {
		if _, err := tx.Product(id); err != nil {
			return err
		}
		if err := tx.DeleteProduct(id); err != nil {
			return err
		}
		tx.emit(models.EntityProduct, models.ChangeActionDelete, id)
		return nil
	})
}

func (s *Service) ArchiveProduct(ctx context.Context, id string, archived bool) (*models.Product, error) {
	return s.UpdateProduct(ctx, id, models.ProductPatch{IsArchived: &archived})
}

// AdjustStock moves stock by a signed delta. A decrease that would go below zero fails
// with InsufficientStock and leaves the count unchanged.
func (s *Service) AdjustStock(ctx context.Context, in models.StockAdjustment) (*models.Product, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.Delta == 0 {
		return nil, models.Validation("delta must not be zero")
	}
	var adjusted *models.Product
	err := s.run(ctx, "AdjustStock", func(tx *ledgerTx) error {
		var (
			p   *models.Product
			err error
		)
		if in.Delta < 0 {
			p, err = tx.DecrementStock(in.ProductId, -in.Delta)
		} else {
			p, err = tx.incrementStock(in.ProductId, in.Delta)
		}
		if err != nil {
			return err
		}
		tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
		adjusted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

func (tx *ledgerTx) incrementStock(productId string, qty int) (*models.Product, error) {
	p, err := tx.Product(productId)
	if err != nil {
		return nil, err
	}
	p.Stock += qty
	if err := tx.SaveProduct(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Product(ctx context.Context, id string) (*models.Product, error) {
	var p *models.Product
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.Product(id)
		return err
	})
	return p, err
}

func (s *Service) Products(ctx context.Context) ([]*models.Product, error) {
	var list []*models.Product
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.Products()
		return err
	})
	return list, err
}

// FindProductByBarcode is the scanner lookup.
func (s *Service) FindProductByBarcode(ctx context.Context, code string) (*models.Product, error) {
	code = strings.TrimSpace(code)
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		for _, c := range p.Barcodes {
			if c == code {
				return p, nil
			}
		}
	}
	return nil, models.NotFound(models.EntityProduct, "barcode:"+code)
}

// LowStockProducts lists active products at or below their minimum, emptiest first.
func (s *Service) LowStockProducts(ctx context.Context) ([]*models.Product, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]*models.Product, 0)
	for _, p := range products {
		if !p.IsArchived && p.IsLowStock() {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Stock < low[j].Stock })
	return low, nil
}
