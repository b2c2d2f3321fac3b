package workflow

import (
	"context"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BalanceDrift is an owner whose stored balance disagrees with its transactions.
type BalanceDrift struct {
	Entity   models.EntityKind `json:"entity"`
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Stored   decimal.Decimal   `json:"stored"`
	Computed decimal.Decimal   `json:"computed"`
}

// CheckBalances recomputes every customer and supplier balance from its transactions and
// reports the ones that drifted. Nothing is rewritten; drift points at a bug or at data
// edited outside the service.
func (s *Service) CheckBalances(ctx context.Context) ([]BalanceDrift, error) {
	drifts := make([]BalanceDrift, 0)
	err := s.read(ctx, func(tx store.Tx) error {
		customers, err := tx.Customers()
		if err != nil {
			return err
		}
		for _, c := range customers {
			list, err := tx.TransactionsByCustomer(c.ID)
			if err != nil {
				return err
			}
			if computed := models.SumBalance(list); !computed.Equal(c.Balance) {
				drifts = append(drifts, BalanceDrift{Entity: models.EntityCustomer, ID: c.ID, Name: c.Name, Stored: c.Balance, Computed: computed})
			}
		}
		suppliers, err := tx.Suppliers()
		if err != nil {
			return err
		}
		for _, sup := range suppliers {
			list, err := tx.SupplierTransactionsBySupplier(sup.ID)
			if err != nil {
				return err
			}
			if computed := models.SumSupplierBalance(list); !computed.Equal(sup.Balance) {
				drifts = append(drifts, BalanceDrift{Entity: models.EntitySupplier, ID: sup.ID, Name: sup.Name, Stored: sup.Balance, Computed: computed})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		s.logger.WithFields(logrus.Fields{
			"field":  "CheckBalances",
			"drifts": len(drifts),
		}).Warn("balance drift detected")
	}
	return drifts, nil
}
