package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	saleKindCash   = "cash"
	saleKindCredit = "credit"
)

func validateCart(in models.NewSale) error {
	if len(in.Items) == 0 {
		return models.EmptyCart()
	}
	for i, item := range in.Items {
		if err := utils.ValidateStruct(item); err != nil {
			return err
		}
		if item.Quantity <= 0 {
			return models.Validation("cart line %d: quantity must be greater than zero", i+1)
		}
	}
	if in.AmountPaid.IsNegative() {
		return models.Validation("amountPaid must not be negative")
	}
	if in.Total.IsNegative() {
		return models.Validation("total must not be negative")
	}
	return nil
}

func saleDescription(items []models.SaleLineItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
	}
	return models.TruncateDescription("Sale: " + strings.Join(parts, ", "))
}

// ProcessSale checks out a cart. Stock for every line is decremented conditionally, so a
// line that would take a product below zero fails the whole sale with InsufficientStock.
// A customer sale books a debt for the total and a payment for what was paid, capped at
// the total. Cash sales without a customer leave the customer ledger untouched.
func (s *Service) ProcessSale(ctx context.Context, in models.NewSale) (*models.SaleResult, error) {
	if err := validateCart(in); err != nil {
		return nil, err
	}

	var result *models.SaleResult
	err := s.run(ctx, "ProcessSale", func(tx *ledgerTx) error {
		var customerId string
		if in.CustomerId != nil && strings.TrimSpace(*in.CustomerId) != "" {
			c, err := tx.Customer(strings.TrimSpace(*in.CustomerId))
			if err != nil {
				return err
			}
			customerId = c.ID
		}

		items := make([]models.SaleLineItem, 0, len(in.Items))
		sum := decimal.Zero
		for _, line := range in.Items {
			p, err := tx.DecrementStock(line.ProductId, line.Quantity)
			if err != nil {
				return err
			}
			tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
			item := models.SaleLineItem{
				ProductId: p.ID,
				Name:      p.Name,
				Quantity:  line.Quantity,
				UnitPrice: p.SellingPrice,
			}
			items = append(items, item)
			sum = sum.Add(item.Subtotal())
		}
		total := sum
		if in.Total.IsPositive() {
			total = in.Total
		}

		sale := &models.Sale{
			ID:         uuid.NewString(),
			Date:       tx.at,
			Items:      items,
			Total:      total,
			AmountPaid: in.AmountPaid,
		}
		result = &models.SaleResult{}
		if customerId != "" {
			sale.CustomerId = &customerId
			if total.IsPositive() {
				debt := &models.Transaction{
					ID:          uuid.NewString(),
					CustomerId:  customerId,
					Type:        models.TransactionTypeDebt,
					Amount:      total,
					Description: saleDescription(items),
					Date:        tx.at,
					SaleId:      &sale.ID,
					Items:       items,
				}
				if err := tx.insertTransaction(debt); err != nil {
					return err
				}
				sale.DebtTransactionId = &debt.ID
				result.DebtTransaction = debt
			}
			if paid := decimal.Min(in.AmountPaid, total); paid.IsPositive() {
				payment := &models.Transaction{
					ID:          uuid.NewString(),
					CustomerId:  customerId,
					Type:        models.TransactionTypePayment,
					Amount:      paid,
					Description: "Payment at checkout",
					Date:        tx.at,
					SaleId:      &sale.ID,
				}
				if err := tx.insertTransaction(payment); err != nil {
					return err
				}
				sale.PaymentTransactionId = &payment.ID
				result.PaymentTransaction = payment
			}
		}
		if err := tx.SaveSale(sale); err != nil {
			return err
		}
		tx.emit(models.EntitySale, models.ChangeActionCreate, sale.ID)

		result.Sale = *sale
		result.Change = decimal.Zero
		if change := in.AmountPaid.Sub(total); change.IsPositive() {
			result.Change = change
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	kind := saleKindCash
	if result.Sale.CustomerId != nil {
		kind = saleKindCredit
	}
	SalesCounter.WithLabelValues(kind).Inc()
	return result, nil
}

// VoidSale puts the sold units back on the shelf and removes the sale's transactions.
// Lines for products deleted since the sale are skipped.
func (s *Service) VoidSale(ctx context.Context, id string) error {
	return s.run(ctx, "VoidSale", func(tx *ledgerTx) error {
		sale, err := tx.Sale(id)
		if err != nil {
			return err
		}
		for _, item := range sale.Items {
			p, err := tx.Product(item.ProductId)
			if errors.Is(err, models.ErrNotFound) {
				continue
			} else if err != nil {
				return err
			}
			p.Stock += item.Quantity
			if err := tx.SaveProduct(p); err != nil {
				return err
			}
			tx.emit(models.EntityProduct, models.ChangeActionUpdate, p.ID)
		}
		for _, transactionId := range []*string{sale.DebtTransactionId, sale.PaymentTransactionId} {
			if transactionId == nil {
				continue
			}
			t, err := tx.Transaction(*transactionId)
			if errors.Is(err, models.ErrNotFound) {
				continue
			} else if err != nil {
				return err
			}
			if _, err := tx.removeTransaction(t); err != nil {
				return err
			}
		}
		if err := tx.DeleteSale(id); err != nil {
			return err
		}
		tx.emit(models.EntitySale, models.ChangeActionDelete, id)
		return nil
	})
}

func (s *Service) Sale(ctx context.Context, id string) (*models.Sale, error) {
	var sale *models.Sale
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		sale, err = tx.Sale(id)
		return err
	})
	return sale, err
}

func (s *Service) Sales(ctx context.Context) ([]*models.Sale, error) {
	var list []*models.Sale
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.Sales()
		return err
	})
	return list, err
}
