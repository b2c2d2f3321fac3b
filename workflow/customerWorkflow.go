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

const openingBalanceDescription = "Opening balance"

func idsOf[T any](list []*T, id func(*T) string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, id(v))
	}
	return out
}

func customerIdOf(c *models.Customer) string { return c.ID }

func (s *Service) normalizePhone(phone string) (string, error) {
	normalized, err := utils.NormalizePhone(phone, s.phoneRegion)
	if err != nil {
		return "", models.Validation("invalid phone %q: %v", phone, err)
	}
	return normalized, nil
}

func validSettlementDay(day *int) error {
	if day != nil && (*day < 1 || *day > 31) {
		return models.Validation("settlementDay must be between 1 and 31")
	}
	return nil
}

func (s *Service) AddCustomer(ctx context.Context, in models.NewCustomer) (*models.Customer, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	phone, err := s.normalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	in.Phone = phone

	var created *models.Customer
	err = s.run(ctx, "AddCustomer", func(tx *ledgerTx) error {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			existing, err := tx.Customers()
			if err != nil {
				return err
			}
			id = models.NewIdAllocator(idsOf(existing, customerIdOf)).Next()
		}
		c, err := tx.createCustomer(id, in)
		created = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createCustomer stores a new customer with a zero balance and books any opening
// balance as a transaction so the balance invariant holds from the start.
func (tx *ledgerTx) createCustomer(id string, in models.NewCustomer) (*models.Customer, error) {
	if _, err := tx.Customer(id); err == nil {
		return nil, models.DuplicateId(models.EntityCustomer, id)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	c := &models.Customer{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		Phone:         in.Phone,
		CreatedAt:     tx.at,
		Balance:       decimal.Zero,
		SettlementDay: in.SettlementDay,
	}
	if err := tx.SaveCustomer(c); err != nil {
		return nil, err
	}
	tx.emit(models.EntityCustomer, models.ChangeActionCreate, c.ID)
	if !in.OpeningBalance.IsZero() {
		t := openingTransaction(c.ID, in.OpeningBalance, tx.at)
		if err := tx.insertTransaction(t); err != nil {
			return nil, err
		}
	}
	return tx.Customer(id)
}

func openingTransaction(customerId string, balance decimal.Decimal, at time.Time) *models.Transaction {
	t := &models.Transaction{
		ID:          uuid.NewString(),
		CustomerId:  customerId,
		Type:        models.TransactionTypeDebt,
		Amount:      balance,
		Description: openingBalanceDescription,
		Date:        at,
	}
	if balance.IsNegative() {
		t.Type = models.TransactionTypePayment
		t.Amount = balance.Neg()
	}
	return t
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, patch models.CustomerPatch) (*models.Customer, error) {
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if patch.SettlementDay.Set {
		if err := validSettlementDay(patch.SettlementDay.Value); err != nil {
			return nil, err
		}
	}
	if patch.Phone != nil {
		phone, err := s.normalizePhone(*patch.Phone)
		if err != nil {
			return nil, err
		}
		patch.Phone = &phone
	}

	var updated *models.Customer
	err := s.run(ctx, "UpdateCustomer", func(tx *ledgerTx) error {
		c, err := tx.Customer(id)
		if err != nil {
			return err
		}
		oldName := c.Name
		c.ApplyPatch(patch)
		if err := tx.SaveCustomer(c); err != nil {
			return err
		}
		tx.emit(models.EntityCustomer, models.ChangeActionUpdate, c.ID)
		if c.Name != oldName {
			if err := tx.renameOrderCustomer(c); err != nil {
				return err
			}
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// renameOrderCustomer refreshes the customer name copied onto bread orders.
func (tx *ledgerTx) renameOrderCustomer(c *models.Customer) error {
	orders, err := tx.BreadOrders()
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.CustomerId == nil || *o.CustomerId != c.ID || o.CustomerName == c.Name {
			continue
		}
		o.CustomerName = c.Name
		if err := tx.SaveBreadOrder(o); err != nil {
			return err
		}
		tx.emit(models.EntityBreadOrder, models.ChangeActionUpdate, o.ID)
	}
	return nil
}

// DeleteCustomer removes the customer with all of their transactions and detaches any
// bread orders that pointed at them.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	return s.run(ctx, "DeleteCustomer", func(tx *ledgerTx) error {
		if _, err := tx.Customer(id); err != nil {
			return err
		}
		list, err := tx.TransactionsByCustomer(id)
		if err != nil {
			return err
		}
		for _, t := range list {
			if err := tx.DeleteTransaction(t.ID); err != nil {
				return err
			}
			tx.emit(models.EntityTransaction, models.ChangeActionDelete, t.ID)
		}
		orders, err := tx.BreadOrders()
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.CustomerId == nil || *o.CustomerId != id {
				continue
			}
			o.CustomerId = nil
			o.CustomerName = ""
			if err := tx.SaveBreadOrder(o); err != nil {
				return err
			}
			tx.emit(models.EntityBreadOrder, models.ChangeActionUpdate, o.ID)
		}
		if err := tx.DeleteCustomer(id); err != nil {
			return err
		}
		tx.emit(models.EntityCustomer, models.ChangeActionDelete, id)
		return nil
	})
}

func (s *Service) Customer(ctx context.Context, id string) (*models.Customer, error) {
	var c *models.Customer
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.Customer(id)
		return err
	})
	return c, err
}

// CustomersByIds returns one entry per id in the same order; unknown ids map to nil.
func (s *Service) CustomersByIds(ctx context.Context, ids []string) ([]*models.Customer, error) {
	out := make([]*models.Customer, len(ids))
	err := s.read(ctx, func(tx store.Tx) error {
		for i, id := range ids {
			c, err := tx.Customer(id)
			if errors.Is(err, models.ErrNotFound) {
				continue
			} else if err != nil {
				return err
			}
			out[i] = c
		}
		return nil
	})
	return out, err
}

func (s *Service) Customers(ctx context.Context) ([]*models.Customer, error) {
	var list []*models.Customer
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.Customers()
		return err
	})
	return list, err
}

// CustomerStatement lists the customer's transactions oldest first with the balance
// after each one.
func (s *Service) CustomerStatement(ctx context.Context, id string) (*models.CustomerStatement, error) {
	var statement *models.CustomerStatement
	err := s.read(ctx, func(tx store.Tx) error {
		c, err := tx.Customer(id)
		if err != nil {
			return err
		}
		list, err := tx.TransactionsByCustomer(id)
		if err != nil {
			return err
		}
		statement = &models.CustomerStatement{Customer: *c, Lines: make([]models.CustomerStatementLine, 0, len(list))}
		running := decimal.Zero
		for _, t := range list {
			running = models.ApplyTransactionDelta(running, decimal.Zero, t.Amount, t.Type.IsDebtLike())
			statement.Lines = append(statement.Lines, models.CustomerStatementLine{Transaction: *t, RunningBalance: running})
		}
		return nil
	})
	return statement, err
}
