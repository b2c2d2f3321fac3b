package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/shopspring/decimal"
)

func breadOrderIdOf(o *models.BreadOrder) string { return o.ID }

// BreadUnitPrice returns the price new orders are created with when none is given.
func (s *Service) BreadUnitPrice(ctx context.Context) (decimal.Decimal, bool, error) {
	var (
		price decimal.Decimal
		found bool
	)
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		price, found, err = breadUnitPrice(tx)
		return err
	})
	return price, found, err
}

func breadUnitPrice(tx store.Tx) (decimal.Decimal, bool, error) {
	raw, ok, err := tx.Setting(models.SettingBreadUnitPrice)
	if err != nil || !ok {
		return decimal.Zero, false, err
	}
	price, err := utils.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, false, models.Validation("stored bread unit price %q is not a number", raw)
	}
	return price, true, nil
}

// SetBreadUnitPrice changes the price for future orders. Existing orders keep their own.
func (s *Service) SetBreadUnitPrice(ctx context.Context, price decimal.Decimal) error {
	if !price.IsPositive() {
		return models.Validation("bread unit price must be greater than zero")
	}
	return s.run(ctx, "SetBreadUnitPrice", func(tx *ledgerTx) error {
		if err := tx.SaveSetting(models.SettingBreadUnitPrice, price.String()); err != nil {
			return err
		}
		tx.emit(models.EntitySetting, models.ChangeActionUpdate, models.SettingBreadUnitPrice)
		return nil
	})
}

func (s *Service) AddBreadOrder(ctx context.Context, in models.NewBreadOrder) (*models.BreadOrder, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	var created *models.BreadOrder
	err := s.run(ctx, "AddBreadOrder", func(tx *ledgerTx) error {
		unitPrice := decimal.Zero
		if in.UnitPrice != nil {
			unitPrice = *in.UnitPrice
		} else {
			price, ok, err := breadUnitPrice(tx)
			if err != nil {
				return err
			}
			if !ok {
				return models.Validation("bread unit price is not set")
			}
			unitPrice = price
		}
		existing, err := tx.BreadOrders()
		if err != nil {
			return err
		}
		linked, err := linkedOrderIds(tx)
		if err != nil {
			return err
		}
		o := &models.BreadOrder{
			ID:          models.NewIdAllocator(idsOf(existing, breadOrderIdOf), linked).Next(),
			Name:        strings.TrimSpace(in.Name),
			Quantity:    in.Quantity,
			UnitPrice:   unitPrice,
			TotalAmount: models.OrderTotal(in.Quantity, unitPrice),
			IsPaid:      in.IsPaid,
			IsPinned:    in.IsPinned,
			CreatedAt:   tx.at,
		}
		if !o.TotalAmount.IsPositive() {
			return models.Validation("order total must be greater than zero")
		}
		if in.CustomerId != nil && strings.TrimSpace(*in.CustomerId) != "" {
			c, err := tx.Customer(strings.TrimSpace(*in.CustomerId))
			if err != nil {
				return err
			}
			o.CustomerId = &c.ID
			o.CustomerName = c.Name
		}
		if err := tx.SaveBreadOrder(o); err != nil {
			return err
		}
		tx.emit(models.EntityBreadOrder, models.ChangeActionCreate, o.ID)
		if o.HasCustomer() {
			if err := tx.linkOrder(o, o.IsPaid); err != nil {
				return err
			}
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// linkedOrderIds lists every order id still carried by a transaction, so a new order
// never takes over links left behind by an order that no longer exists.
func linkedOrderIds(tx store.Tx) ([]string, error) {
	transactions, err := tx.Transactions()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, t := range transactions {
		if t.OrderId != nil {
			ids = append(ids, *t.OrderId)
		}
	}
	return ids, nil
}

func orderTransaction(o *models.BreadOrder, t models.TransactionType, at time.Time) *models.Transaction {
	orderId := o.ID
	description := o.DebtDescription()
	if t == models.TransactionTypePayment {
		description = o.PaymentDescription()
	}
	return &models.Transaction{
		ID:          uuid.NewString(),
		CustomerId:  *o.CustomerId,
		Type:        t,
		Amount:      o.TotalAmount,
		Description: description,
		Date:        at,
		OrderId:     &orderId,
	}
}

// linkOrder books the order's debt and, when withPayment, its settlement.
func (tx *ledgerTx) linkOrder(o *models.BreadOrder, withPayment bool) error {
	if err := tx.insertTransaction(orderTransaction(o, models.TransactionTypeDebt, tx.at)); err != nil {
		return err
	}
	if !withPayment {
		return nil
	}
	return tx.insertTransaction(orderTransaction(o, models.TransactionTypePayment, tx.at))
}

// UpdateBreadOrder applies patch and brings the order's linked debt and payment in line
// with it. A patch that changes nothing writes nothing.
func (s *Service) UpdateBreadOrder(ctx context.Context, id string, patch models.BreadOrderPatch) (*models.BreadOrder, error) {
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.CustomerId.Set && patch.CustomerId.Value != nil && strings.TrimSpace(*patch.CustomerId.Value) == "" {
		patch.CustomerId = models.Cleared[string]()
	}

	var updated *models.BreadOrder
	err := s.run(ctx, "UpdateBreadOrder", func(tx *ledgerTx) error {
		old, err := tx.BreadOrder(id)
		if err != nil {
			return err
		}
		next := old.Apply(patch)
		if old.CustomerChanged(&next) && next.HasCustomer() {
			c, err := tx.Customer(*next.CustomerId)
			if err != nil {
				return err
			}
			next.CustomerName = c.Name
		}
		if next.Equal(old) {
			updated = old
			return nil
		}
		if !next.TotalAmount.IsPositive() {
			return models.Validation("order total must be greater than zero")
		}
		if err := tx.syncOrderTransactions(old, &next); err != nil {
			return err
		}
		if err := tx.SaveBreadOrder(&next); err != nil {
			return err
		}
		tx.emit(models.EntityBreadOrder, models.ChangeActionUpdate, next.ID)
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// syncOrderTransactions applies the order-link rules in precedence order:
//  1. customer changed: drop both links, relink to the new customer (payment only if paid)
//  2. total, name or quantity changed: edit the debt and payment in place
//  3. became paid: add the missing payment
//  4. became unpaid: drop the payment
//
// Rule 1 owns payment creation for its update, so rules 3 and 4 are skipped after it.
func (tx *ledgerTx) syncOrderTransactions(old, next *models.BreadOrder) error {
	links, err := tx.OrderLinks(old.ID)
	if err != nil {
		return err
	}
	debt, payment := links.Debt, links.Payment

	if old.CustomerChanged(next) {
		for _, t := range []*models.Transaction{debt, payment} {
			if t == nil {
				continue
			}
			if _, err := tx.removeTransaction(t); err != nil {
				return err
			}
		}
		if !next.HasCustomer() {
			return nil
		}
		return tx.linkOrder(next, next.IsPaid)
	}

	if !old.TotalAmount.Equal(next.TotalAmount) || old.Name != next.Name || old.Quantity != next.Quantity {
		if debt != nil {
			edited := debt.Clone()
			edited.Amount = next.TotalAmount
			edited.Description = next.DebtDescription()
			if debt, err = tx.editOrderLink(next, debt, edited); err != nil {
				return err
			}
		}
		if payment != nil {
			edited := payment.Clone()
			edited.Amount = next.TotalAmount
			edited.Description = next.PaymentDescription()
			if payment, err = tx.editOrderLink(next, payment, edited); err != nil {
				return err
			}
		}
	}

	if !old.IsPaid && next.IsPaid && next.HasCustomer() && payment == nil {
		if err := tx.insertTransaction(orderTransaction(next, models.TransactionTypePayment, tx.at)); err != nil {
			return err
		}
	}
	if old.IsPaid && !next.IsPaid && payment != nil {
		if _, err := tx.removeTransaction(payment); err != nil {
			return err
		}
	}
	return nil
}

// editOrderLink edits a linked transaction in place. A link whose customer no longer
// exists is removed as an orphan and booked again for the order's customer; when that
// customer is missing too the link is dropped and nil is returned.
func (tx *ledgerTx) editOrderLink(o *models.BreadOrder, old, edited *models.Transaction) (*models.Transaction, error) {
	err := tx.editTransaction(old, edited)
	if err == nil {
		return edited, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if _, err := tx.removeTransaction(old); err != nil {
		return nil, err
	}
	if !o.HasCustomer() {
		return nil, nil
	}
	if _, err := tx.Customer(*o.CustomerId); errors.Is(err, models.ErrNotFound) {
		config.LogWarn(tx.logger, "breadOrderWorkflow.go", "editOrderLink", "Dropped order link", o.ID, "order customer not found")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	fresh := orderTransaction(o, old.Type, tx.at)
	if err := tx.insertTransaction(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// DeleteBreadOrder removes the order together with its linked debt and payment.
func (s *Service) DeleteBreadOrder(ctx context.Context, id string) error {
	return s.run(ctx, "DeleteBreadOrder", func(tx *ledgerTx) error {
		if _, err := tx.BreadOrder(id); err != nil {
			return err
		}
		links, err := tx.OrderLinks(id)
		if err != nil {
			return err
		}
		for _, t := range []*models.Transaction{links.Debt, links.Payment} {
			if t == nil {
				continue
			}
			if _, err := tx.removeTransaction(t); err != nil {
				return err
			}
		}
		if err := tx.DeleteBreadOrder(id); err != nil {
			return err
		}
		tx.emit(models.EntityBreadOrder, models.ChangeActionDelete, id)
		return nil
	})
}

// ResetBreadOrders deletes every order that is not pinned. Their transactions stay on the
// customer accounts as plain history: the order link is cleared so a later order reusing
// the id does not adopt them.
func (s *Service) ResetBreadOrders(ctx context.Context) ([]string, error) {
	var removed []string
	err := s.run(ctx, "ResetBreadOrders", func(tx *ledgerTx) error {
		removed = nil
		orders, err := tx.BreadOrders()
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.IsPinned {
				continue
			}
			links, err := tx.OrderLinks(o.ID)
			if err != nil {
				return err
			}
			for _, t := range []*models.Transaction{links.Debt, links.Payment} {
				if t == nil {
					continue
				}
				t.OrderId = nil
				if err := tx.SaveTransaction(t); err != nil {
					return err
				}
				tx.emit(models.EntityTransaction, models.ChangeActionUpdate, t.ID)
			}
			if err := tx.DeleteBreadOrder(o.ID); err != nil {
				return err
			}
			tx.emit(models.EntityBreadOrder, models.ChangeActionDelete, o.ID)
			removed = append(removed, o.ID)
		}
		return tx.SaveSetting(models.SettingLastOrderResetDate, s.today())
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// RunDailyReset resets bread orders at most once per shop calendar day.
func (s *Service) RunDailyReset(ctx context.Context) (bool, []string, error) {
	today := s.today()
	release, err := utils.ObtainLock(ctx, s.locker, "shopledger:order-reset:"+today, 5*time.Minute, "breadOrderWorkflow.go", "RunDailyReset")
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil, nil
	} else if err != nil {
		return false, nil, models.StoreUnavailable(err)
	}
	defer release()

	var last string
	err = s.read(ctx, func(tx store.Tx) error {
		var err error
		last, _, err = tx.Setting(models.SettingLastOrderResetDate)
		return err
	})
	if err != nil {
		return false, nil, err
	}
	if last == today {
		return false, nil, nil
	}
	removed, err := s.ResetBreadOrders(ctx)
	if err != nil {
		config.LogError(s.logger, "breadOrderWorkflow.go", "RunDailyReset", "ResetBreadOrders", today, err)
		return false, nil, err
	}
	return true, removed, nil
}

func (s *Service) BreadOrder(ctx context.Context, id string) (*models.BreadOrder, error) {
	var o *models.BreadOrder
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.BreadOrder(id)
		return err
	})
	return o, err
}

func (s *Service) BreadOrders(ctx context.Context) ([]*models.BreadOrder, error) {
	var list []*models.BreadOrder
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.BreadOrders()
		return err
	})
	return list, err
}

// OrderTransactions returns the debt and payment currently linked to the order.
func (s *Service) OrderTransactions(ctx context.Context, id string) (models.OrderLinks, error) {
	var links models.OrderLinks
	err := s.read(ctx, func(tx store.Tx) error {
		if _, err := tx.BreadOrder(id); err != nil {
			return err
		}
		var err error
		links, err = tx.OrderLinks(id)
		return err
	})
	return links, err
}
