package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/sirupsen/logrus"
)

type ReconcileResult struct {
	DidSync          bool     `json:"didSync"`
	RepairedOrderIds []string `json:"repairedOrderIds"`
	FailedOrderIds   []string `json:"failedOrderIds,omitempty"`
}

// Reconcile recreates the debt of every unpaid customer order that lost it. It runs at
// most once per shop calendar day; later calls that day return DidSync false.
//
// Each order is repaired in its own store transaction. A failed repair is logged and
// the sweep moves on. When any repair failed because the store was unavailable the day
// marker is not written, so the next trigger tries again.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	today := s.today()
	release, err := utils.ObtainLock(ctx, s.locker, "shopledger:reconcile:"+today, 10*time.Minute, "reconciliationWorkflow.go", "Reconcile")
	if errors.Is(err, redislock.ErrNotObtained) {
		return &ReconcileResult{RepairedOrderIds: []string{}}, nil
	} else if err != nil {
		return nil, models.StoreUnavailable(err)
	}
	defer release()

	var (
		last   string
		orders []*models.BreadOrder
	)
	err = s.read(ctx, func(tx store.Tx) error {
		var err error
		if last, _, err = tx.Setting(models.SettingLastReconcileDate); err != nil {
			return err
		}
		orders, err = tx.BreadOrders()
		return err
	})
	if err != nil {
		return nil, err
	}
	if last == today {
		return &ReconcileResult{RepairedOrderIds: []string{}}, nil
	}

	result := &ReconcileResult{DidSync: true, RepairedOrderIds: []string{}}
	retryLater := false
	for _, o := range orders {
		if !o.HasCustomer() || o.IsPaid {
			continue
		}
		repaired, err := s.repairOrderDebt(ctx, o.ID)
		if err != nil {
			ReconcileFailureCounter.Inc()
			result.FailedOrderIds = append(result.FailedOrderIds, o.ID)
			if errors.Is(err, models.ErrNotFound) {
				config.LogWarn(s.logger, "reconciliationWorkflow.go", "Reconcile", "Skipping order", o, err.Error())
				continue
			}
			config.LogError(s.logger, "reconciliationWorkflow.go", "Reconcile", "Repairing order debt", o, err)
			if errors.Is(err, models.ErrStoreUnavailable) {
				retryLater = true
			}
			continue
		}
		if repaired {
			ReconcileRepairCounter.Inc()
			result.RepairedOrderIds = append(result.RepairedOrderIds, o.ID)
		}
	}

	if retryLater {
		return result, nil
	}
	err = s.run(ctx, "ReconcileMarker", func(tx *ledgerTx) error {
		return tx.SaveSetting(models.SettingLastReconcileDate, today)
	})
	if err != nil {
		return result, err
	}
	s.logger.WithFields(logrus.Fields{
		"field":    "Reconcile",
		"date":     today,
		"repaired": len(result.RepairedOrderIds),
		"failed":   len(result.FailedOrderIds),
	}).Info("daily reconciliation completed")
	return result, nil
}

// repairOrderDebt re-reads the order inside the transaction so a concurrent edit that
// already linked or paid it wins.
func (s *Service) repairOrderDebt(ctx context.Context, orderId string) (bool, error) {
	repaired := false
	err := s.run(ctx, "ReconcileOrder", func(tx *ledgerTx) error {
		repaired = false
		o, err := tx.BreadOrder(orderId)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if !o.HasCustomer() || o.IsPaid || !o.TotalAmount.IsPositive() {
			return nil
		}
		links, err := tx.OrderLinks(o.ID)
		if err != nil {
			return err
		}
		if links.Debt != nil {
			return nil
		}
		if err := tx.insertTransaction(orderTransaction(o, models.TransactionTypeDebt, tx.at)); err != nil {
			return err
		}
		repaired = true
		return nil
	})
	return repaired, err
}
