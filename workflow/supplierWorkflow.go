package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/shopspring/decimal"
)

func supplierIdOf(s *models.Supplier) string { return s.ID }

func (s *Service) AddSupplier(ctx context.Context, in models.NewSupplier) (*models.Supplier, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	phone, err := s.normalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	in.Phone = phone

	var created *models.Supplier
	err = s.run(ctx, "AddSupplier", func(tx *ledgerTx) error {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			existing, err := tx.Suppliers()
			if err != nil {
				return err
			}
			id = models.NewIdAllocator(idsOf(existing, supplierIdOf)).Next()
		}
		sup, err := tx.createSupplier(id, in)
		created = sup
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (tx *ledgerTx) createSupplier(id string, in models.NewSupplier) (*models.Supplier, error) {
	if _, err := tx.Supplier(id); err == nil {
		return nil, models.DuplicateId(models.EntitySupplier, id)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	sup := &models.Supplier{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Category:  strings.TrimSpace(in.Category),
		Phone:     in.Phone,
		Email:     strings.TrimSpace(in.Email),
		Address:   in.Address,
		Notes:     in.Notes,
		Balance:   decimal.Zero,
		CreatedAt: tx.at,
	}
	if err := tx.SaveSupplier(sup); err != nil {
		return nil, err
	}
	tx.emit(models.EntitySupplier, models.ChangeActionCreate, sup.ID)
	if !in.OpeningBalance.IsZero() {
		if err := tx.insertSupplierTransaction(openingSupplierTransaction(sup.ID, in.OpeningBalance, tx.at)); err != nil {
			return nil, err
		}
	}
	return tx.Supplier(id)
}

func openingSupplierTransaction(supplierId string, balance decimal.Decimal, at time.Time) *models.SupplierTransaction {
	t := &models.SupplierTransaction{
		ID:          uuid.NewString(),
		SupplierId:  supplierId,
		Type:        models.SupplierTransactionTypePurchase,
		Amount:      balance,
		Description: openingBalanceDescription,
		Date:        at,
	}
	if balance.IsNegative() {
		t.Type = models.SupplierTransactionTypePayment
		t.Amount = balance.Neg()
	}
	return t
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, patch models.SupplierPatch) (*models.Supplier, error) {
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if patch.Phone != nil {
		phone, err := s.normalizePhone(*patch.Phone)
		if err != nil {
			return nil, err
		}
		patch.Phone = &phone
	}
	var updated *models.Supplier
	err := s.run(ctx, "UpdateSupplier", func(tx *ledgerTx) error {
		sup, err := tx.Supplier(id)
		if err != nil {
			return err
		}
		sup.ApplyPatch(patch)
		if err := tx.SaveSupplier(sup); err != nil {
			return err
		}
		tx.emit(models.EntitySupplier, models.ChangeActionUpdate, sup.ID)
		updated = sup
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSupplier removes the supplier and its transactions. Products keep their stock but
// lose the supplier reference.
func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	return s.run(ctx, "DeleteSupplier", func(tx *ledgerTx) error {
		if _, err := tx.Supplier(id); err != nil {
			return err
		}
		list, err := tx.SupplierTransactionsBySupplier(id)
		if err != nil {
			return err
		}
		for _, t := range list {
			if err := tx.DeleteSupplierTransaction(t.ID); err != nil {
				return err
			}
			tx.emit(models.EntitySupplierTransaction, models.ChangeActionDelete, t.ID)
		}
		products, err := tx.Products()
		if err != nil {
			return err
		}
		for _, p := range products {
			if p.SupplierId == nil || *p.SupplierId != id {
				continue
			}
			p.SupplierId = nil
			if err := tx.SaveProduct(p); err != nil {
				return err
			}
			tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
		}
		if err := tx.DeleteSupplier(id); err != nil {
			return err
		}
		tx.emit(models.EntitySupplier, models.ChangeActionDelete, id)
		return nil
	})
}

func (s *Service) Supplier(ctx context.Context, id string) (*models.Supplier, error) {
	var sup *models.Supplier
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		sup, err = tx.Supplier(id)
		return err
	})
	return sup, err
}

func (s *Service) SuppliersByIds(ctx context.Context, ids []string) ([]*models.Supplier, error) {
	out := make([]*models.Supplier, len(ids))
	err := s.read(ctx, func(tx store.Tx) error {
		for i, id := range ids {
			sup, err := tx.Supplier(id)
			if errors.Is(err, models.ErrNotFound) {
				continue
			} else if err != nil {
				return err
			}
			out[i] = sup
		}
		return nil
	})
	return out, err
}

func (s *Service) Suppliers(ctx context.Context) ([]*models.Supplier, error) {
	var list []*models.Supplier
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.Suppliers()
		return err
	})
	return list, err
}

func (s *Service) AddSupplierTransaction(ctx context.Context, in models.NewSupplierTransaction) (*models.SupplierTransaction, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var created *models.SupplierTransaction
	err := s.run(ctx, "AddSupplierTransaction", func(tx *ledgerTx) error {
		t := &models.SupplierTransaction{
			ID:          uuid.NewString(),
			SupplierId:  in.SupplierId,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: strings.TrimSpace(in.Description),
			Date:        utils.DereferencePtr(in.Date, tx.at),
		}
		if err := tx.insertSupplierTransaction(t); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) UpdateSupplierTransaction(ctx context.Context, id string, patch models.SupplierTransactionPatch) (*models.SupplierTransaction, error) {
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var updated *models.SupplierTransaction
	err := s.run(ctx, "UpdateSupplierTransaction", func(tx *ledgerTx) error {
		old, err := tx.SupplierTransaction(id)
		if err != nil {
			return err
		}
		next := old.Clone()
		next.ApplyPatch(patch)
		if err := tx.editSupplierTransaction(old, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSupplierTransaction reverses the balance effect. Deleting a purchase invoice also
// takes its received units back out of stock, failing with InsufficientStock if they have
// already been sold.
func (s *Service) DeleteSupplierTransaction(ctx context.Context, id string) error {
	return s.run(ctx, "DeleteSupplierTransaction", func(tx *ledgerTx) error {
		t, err := tx.SupplierTransaction(id)
		if err != nil {
			return err
		}
		if t.Type == models.SupplierTransactionTypePurchase {
			for _, item := range t.Items {
				p, err := tx.DecrementStock(item.ProductId, item.Quantity)
				if errors.Is(err, models.ErrNotFound) {
					continue
				} else if err != nil {
					return err
				}
				tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
			}
		}
		return tx.removeSupplierTransaction(t)
	})
}

// RecordPurchaseInvoice receives goods: every line raises its product's stock, one
// purchase transaction is written for the invoice total and, when something was paid on
// delivery, a payment transaction for that amount.
func (s *Service) RecordPurchaseInvoice(ctx context.Context, in models.NewPurchaseInvoice) ([]*models.SupplierTransaction, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	total := decimal.Zero
	for i, item := range in.Items {
		if item.UnitPrice.IsNegative() {
			return nil, models.Validation("invoice line %d: unitPrice must not be negative", i+1)
		}
		total = total.Add(item.Subtotal())
	}
	if !total.IsPositive() {
		return nil, models.Validation("invoice total must be greater than zero")
	}
	if in.AmountPaid.IsNegative() {
		return nil, models.Validation("amountPaid must not be negative")
	}

	var recorded []*models.SupplierTransaction
	err := s.run(ctx, "RecordPurchaseInvoice", func(tx *ledgerTx) error {
		recorded = nil
		if _, err := tx.Supplier(in.SupplierId); err != nil {
			return err
		}
		for _, item := range in.Items {
			p, err := tx.incrementStock(item.ProductId, item.Quantity)
			if err != nil {
				return err
			}
			tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
		}
		date := utils.DereferencePtr(in.Date, tx.at)
		description := strings.TrimSpace(in.Description)
		if description == "" {
			description = "Purchase invoice"
		}
		purchase := &models.SupplierTransaction{
			ID:          uuid.NewString(),
			SupplierId:  in.SupplierId,
			Type:        models.SupplierTransactionTypePurchase,
			Amount:      total,
			Description: description,
			Date:        date,
			Items:       append([]models.PurchaseLineItem(nil), in.Items...),
		}
		if err := tx.insertSupplierTransaction(purchase); err != nil {
			return err
		}
		recorded = append(recorded, purchase)
		if in.AmountPaid.IsPositive() {
			payment := &models.SupplierTransaction{
				ID:          uuid.NewString(),
				SupplierId:  in.SupplierId,
				Type:        models.SupplierTransactionTypePayment,
				Amount:      in.AmountPaid,
				Description: "Paid on delivery",
				Date:        date,
			}
			if err := tx.insertSupplierTransaction(payment); err != nil {
				return err
			}
			recorded = append(recorded, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// SupplierTransactions lists oldest first, across all suppliers when supplierId is empty.
func (s *Service) SupplierTransactions(ctx context.Context, supplierId string) ([]*models.SupplierTransaction, error) {
	var list []*models.SupplierTransaction
	err := s.read(ctx, func(tx store.Tx) error {
		if supplierId != "" {
			if _, err := tx.Supplier(supplierId); err != nil {
				return err
			}
		}
		var err error
		list, err = tx.SupplierTransactionsBySupplier(supplierId)
		return err
	})
	return list, err
}
