package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/shopspring/decimal"
)

func TestMemoryStoreContract(t *testing.T) {
	repo, err := store.NewMemoryStore(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	exerciseRepository(t, repo)
}

func TestFilePersistedStoreContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	repo, err := store.NewMemoryStore(context.Background(), store.NewFilePersister(path))
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	exerciseRepository(t, repo)

	// A fresh store over the same file sees the last committed state.
	reopened, err := store.NewMemoryStore(context.Background(), store.NewFilePersister(path))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Customers) != 1 || snap.Customers[0].ID != "7" {
		t.Fatalf("reopened store lost data: %+v", snap.Customers)
	}
}

type failingPersister struct {
	fail bool
}

func (p *failingPersister) Load(ctx context.Context) (*models.Snapshot, error) {
	return nil, nil
}

func (p *failingPersister) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if p.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestMemoryStoreKeepsStateWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{}
	repo, err := store.NewMemoryStore(ctx, p)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveCustomer(&models.Customer{ID: "1", Name: "Aye", Balance: decimal.NewFromInt(100)})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	p.fail = true
	err = repo.WithTransaction(ctx, func(tx store.Tx) error {
		c, err := tx.Customer("1")
		if err != nil {
			return err
		}
		c.Balance = decimal.NewFromInt(900)
		return tx.SaveCustomer(c)
	})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	snap, _ := repo.Load(ctx)
	if !snap.Customers[0].Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("memory ran ahead of storage: balance %s", snap.Customers[0].Balance)
	}
}

func TestMemoryStoreGettersReturnCopies(t *testing.T) {
	ctx := context.Background()
	repo, _ := store.NewMemoryStore(ctx, nil)
	_ = repo.WithTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveProduct(&models.Product{ID: "1", Name: "Bun", Stock: 5})
	})
	_ = repo.WithTransaction(ctx, func(tx store.Tx) error {
		p, _ := tx.Product("1")
		p.Stock = 99
		return nil
	})
	snap, _ := repo.Load(ctx)
	if snap.Products[0].Stock != 5 {
		t.Fatalf("unsaved mutation leaked into the store: stock %d", snap.Products[0].Stock)
	}
}

func TestMemoryStoreUnlocksAfterPanic(t *testing.T) {
	ctx := context.Background()
	repo, _ := store.NewMemoryStore(ctx, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected the transaction to panic")
			}
		}()
		_ = repo.WithTransaction(ctx, func(tx store.Tx) error {
			if err := tx.SaveCustomer(&models.Customer{ID: "1", Name: "Half written"}); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	done := make(chan error, 1)
	go func() {
		done <- repo.WithTransaction(ctx, func(tx store.Tx) error {
			return tx.SaveCustomer(&models.Customer{ID: "2", Name: "After panic"})
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WithTransaction after panic: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("store stayed locked after a panicking transaction")
	}
	snap, _ := repo.Load(ctx)
	if len(snap.Customers) != 1 || snap.Customers[0].ID != "2" {
		t.Fatalf("panicking transaction leaked state: %+v", snap.Customers)
	}
}

func TestMemoryStoreConcurrentDecrementNeverOversells(t *testing.T) {
	ctx := context.Background()
	repo, _ := store.NewMemoryStore(ctx, nil)
	_ = repo.WithTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveProduct(&models.Product{ID: "1", Name: "Last loaf", Stock: 3})
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithTransaction(ctx, func(tx store.Tx) error {
				_, err := tx.DecrementStock("1", 1)
				return err
			})
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if sold != 3 {
		t.Fatalf("expected exactly 3 successful decrements, got %d", sold)
	}
	snap, _ := repo.Load(ctx)
	if snap.Products[0].Stock != 0 {
		t.Fatalf("expected stock 0, got %d", snap.Products[0].Stock)
	}
}

func TestFilePersisterMissingFile(t *testing.T) {
	p := store.NewFilePersister(filepath.Join(t.TempDir(), "missing.json"))
	snap, err := p.Load(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("missing file should load as nil, nil; got %v, %v", snap, err)
	}
}

func TestFilePersisterCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := store.NewMemoryStore(context.Background(), store.NewFilePersister(path))
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable for corrupt file, got %v", err)
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	repo, _ := store.NewMemoryStore(context.Background(), nil)
	ch, cancel := repo.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}
