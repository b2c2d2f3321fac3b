package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/shopspring/decimal"
)

// exerciseRepository runs the behaviour every Repository implementation must share.
func exerciseRepository(t *testing.T, repo store.Repository) {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events, cancel := repo.Subscribe(16)
	defer cancel()

	err := repo.WithTransaction(ctx, func(tx store.Tx) error {
		if err := tx.SaveCustomer(&models.Customer{ID: "1", Name: "Aye", CreatedAt: day}); err != nil {
			return err
		}
		if err := tx.SaveProduct(&models.Product{ID: "10", Name: "Bun", Stock: 1, SellingPrice: decimal.NewFromInt(500), CreatedAt: day}); err != nil {
			return err
		}
		tx.Emit(models.ChangeEvent{Entity: models.EntityCustomer, Action: models.ChangeActionCreate, ID: "1"})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Entity != models.EntityCustomer || ev.ID != "1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected a change event after commit")
	}

	// A failing body leaves nothing behind and publishes nothing.
	boom := errors.New("boom")
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		if err := tx.SaveCustomer(&models.Customer{ID: "2", Name: "Ghost", CreatedAt: day}); err != nil {
			return err
		}
		tx.Emit(models.ChangeEvent{Entity: models.EntityCustomer, Action: models.ChangeActionCreate, ID: "2"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected body error, got %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("rolled back transaction published %+v", ev)
	default:
	}
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		_, err := tx.Customer("2")
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("rolled back customer should be missing, got %v", err)
	}

	// Order links: one debt per order.
	orderId := "o-1"
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveTransaction(&models.Transaction{
			ID: "t-1", CustomerId: "1", Type: models.TransactionTypeDebt,
			Amount: decimal.NewFromInt(1500), Date: day, OrderId: &orderId,
		})
	})
	if err != nil {
		t.Fatalf("save linked debt: %v", err)
	}
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveTransaction(&models.Transaction{
			ID: "t-2", CustomerId: "1", Type: models.TransactionTypeDebt,
			Amount: decimal.NewFromInt(700), Date: day, OrderId: &orderId,
		})
	})
	if models.KindOf(err) != models.ErrorKindDuplicateId {
		t.Fatalf("second debt for the same order should be rejected, got %v", err)
	}
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		links, err := tx.OrderLinks(orderId)
		if err != nil {
			return err
		}
		if links.Debt == nil || links.Debt.ID != "t-1" || links.Payment != nil {
			t.Fatalf("unexpected links %+v", links)
		}
		list, err := tx.TransactionsByCustomer("1")
		if err != nil {
			return err
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(list))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read links: %v", err)
	}

	// Stock never goes below zero.
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		p, err := tx.DecrementStock("10", 1)
		if err != nil {
			return err
		}
		if p.Stock != 0 {
			t.Fatalf("expected stock 0, got %d", p.Stock)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		_, err := tx.DecrementStock("10", 1)
		return err
	})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveSetting(models.SettingBreadUnitPrice, "1500")
	})
	if err != nil {
		t.Fatalf("save setting: %v", err)
	}

	snap, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Customers) != 1 || len(snap.Products) != 1 || len(snap.Transactions) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d customers, %d products, %d transactions",
			len(snap.Customers), len(snap.Products), len(snap.Transactions))
	}
	if snap.Products[0].Stock != 0 {
		t.Fatalf("expected persisted stock 0, got %d", snap.Products[0].Stock)
	}
	if snap.Settings[models.SettingBreadUnitPrice] != "1500" {
		t.Fatalf("expected bread price setting, got %q", snap.Settings[models.SettingBreadUnitPrice])
	}

	// Replace swaps everything.
	next := models.NewSnapshot()
	next.Customers = []*models.Customer{{ID: "7", Name: "Restored", CreatedAt: day}}
	if err := repo.Replace(ctx, next); err != nil {
		t.Fatalf("replace: %v", err)
	}
	snap, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("load after replace: %v", err)
	}
	if len(snap.Customers) != 1 || snap.Customers[0].ID != "7" || len(snap.Transactions) != 0 || len(snap.Products) != 0 {
		t.Fatalf("replace did not swap contents: %+v", snap)
	}

	bad := models.NewSnapshot()
	bad.Customers = []*models.Customer{{ID: "7", Name: "A"}, {ID: "7", Name: "B"}}
	if err := repo.Replace(ctx, bad); !errors.Is(err, models.ErrDuplicateId) {
		t.Fatalf("expected duplicate id on replace, got %v", err)
	}
	snap, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("load after rejected replace: %v", err)
	}
	if len(snap.Customers) != 1 || snap.Customers[0].Name != "Restored" {
		t.Fatalf("rejected replace changed the store")
	}
}
