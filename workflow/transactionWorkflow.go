package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
)

func (s *Service) AddTransaction(ctx context.Context, in models.NewTransaction) (*models.Transaction, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var created *models.Transaction
	err := s.run(ctx, "AddTransaction", func(tx *ledgerTx) error {
		t := &models.Transaction{
			ID:          uuid.NewString(),
			CustomerId:  in.CustomerId,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: strings.TrimSpace(in.Description),
			Date:        utils.DereferencePtr(in.Date, tx.at),
		}
		if err := tx.insertTransaction(t); err != nil {
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

// UpdateTransaction edits amount, type, description or date and moves the customer balance
// by the difference. A transaction whose customer is gone is removed and NotFound is returned.
func (s *Service) UpdateTransaction(ctx context.Context, id string, patch models.TransactionPatch) (*models.Transaction, error) {
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var (
		updated *models.Transaction
		orphan  *models.Transaction
	)
	err := s.run(ctx, "UpdateTransaction", func(tx *ledgerTx) error {
		old, err := tx.Transaction(id)
		if err != nil {
			return err
		}
		if _, err := tx.Customer(old.CustomerId); errors.Is(err, models.ErrNotFound) {
			if _, err := tx.removeTransaction(old); err != nil {
				return err
			}
			orphan = old
			return nil
		} else if err != nil {
			return err
		}
		next := old.Clone()
		next.ApplyPatch(patch)
		if next.OrderId != nil && next.Type != old.Type {
			return models.Validation("transaction %q is linked to bread order %q; its type cannot change", id, *next.OrderId)
		}
		if err := tx.editTransaction(old, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if orphan != nil {
		return nil, models.NotFound(models.EntityCustomer, orphan.CustomerId)
	}
	return updated, nil
}

// DeleteTransaction reverses the transaction's balance effect and removes it. Orphans are
// removed without touching any balance.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	return s.run(ctx, "DeleteTransaction", func(tx *ledgerTx) error {
		t, err := tx.Transaction(id)
		if err != nil {
			return err
		}
		_, err = tx.removeTransaction(t)
		return err
	})
}

// PurgeOrphans deletes every transaction whose customer no longer exists and returns their ids.
func (s *Service) PurgeOrphans(ctx context.Context) ([]string, error) {
	var purged []string
	err := s.run(ctx, "PurgeOrphans", func(tx *ledgerTx) error {
		purged = nil
		list, err := tx.Transactions()
		if err != nil {
			return err
		}
		known := map[string]bool{}
		for _, t := range list {
			exists, seen := known[t.CustomerId]
			if !seen {
				_, err := tx.Customer(t.CustomerId)
				if err != nil && !errors.Is(err, models.ErrNotFound) {
					return err
				}
				exists = err == nil
				known[t.CustomerId] = exists
			}
			if exists {
				continue
			}
			if _, err := tx.removeTransaction(t); err != nil {
				return err
			}
			purged = append(purged, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purged, nil
}

// Transactions lists transactions oldest first, all of them when customerId is empty.
func (s *Service) Transactions(ctx context.Context, customerId string) ([]*models.Transaction, error) {
	var list []*models.Transaction
	err := s.read(ctx, func(tx store.Tx) error {
		var err error
		if customerId == "" {
			list, err = tx.Transactions()
			return err
		}
		if _, err := tx.Customer(customerId); err != nil {
			return err
		}
		list, err = tx.TransactionsByCustomer(customerId)
		return err
	})
	return list, err
}
