package workflow_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T) (*workflow.Service, *testClock) {
	t.Helper()
	repo, err := store.NewMemoryStore(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := workflow.NewService(repo,
		workflow.WithLogger(quietLogger()),
		workflow.WithClock(clock.Now),
		workflow.WithLocation(time.UTC),
	)
	return svc, clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

func mustAddCustomer(t *testing.T, svc *workflow.Service, name string) *models.Customer {
	t.Helper()
	c, err := svc.AddCustomer(context.Background(), models.NewCustomer{Name: name})
	if err != nil {
		t.Fatalf("AddCustomer(%s): %v", name, err)
	}
	return c
}

func mustAddProduct(t *testing.T, svc *workflow.Service, name string, price string, stock int) *models.Product {
	t.Helper()
	p, err := svc.AddProduct(context.Background(), models.NewProduct{Name: name, SellingPrice: dec(price), Stock: stock})
	if err != nil {
		t.Fatalf("AddProduct(%s): %v", name, err)
	}
	return p
}

func balanceOf(t *testing.T, svc *workflow.Service, customerId string) decimal.Decimal {
	t.Helper()
	c, err := svc.Customer(context.Background(), customerId)
	if err != nil {
		t.Fatalf("Customer(%s): %v", customerId, err)
	}
	return c.Balance
}

func assertBalance(t *testing.T, svc *workflow.Service, customerId string, want string) {
	t.Helper()
	if got := balanceOf(t, svc, customerId); !got.Equal(dec(want)) {
		t.Fatalf("customer %s balance = %s, want %s", customerId, got, want)
	}
}

// assertLedgerConsistent checks that every stored balance equals the sum of its
// transactions.
func assertLedgerConsistent(t *testing.T, svc *workflow.Service) {
	t.Helper()
	drifts, err := svc.CheckBalances(context.Background())
	if err != nil {
		t.Fatalf("CheckBalances: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("balances drifted: %+v", drifts)
	}
}

func assertKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := models.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %v (%s)", kind, err, got)
	}
}

func TestRunReturnsStoreUnavailableWhenPersistFails(t *testing.T) {
	persister := &flakyPersister{}
	repo, err := store.NewMemoryStore(context.Background(), persister)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	svc := workflow.NewService(repo, workflow.WithLogger(quietLogger()))
	c := mustAddCustomer(t, svc, "Aye")

	persister.fail = true
	_, err = svc.AddTransaction(context.Background(), models.NewTransaction{CustomerId: c.ID, Type: models.TransactionTypeDebt, Amount: dec("10")})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	persister.fail = false
	assertBalance(t, svc, c.ID, "0")
	list, err := svc.Transactions(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("failed write left %d transactions behind", len(list))
	}
}

type flakyPersister struct {
	fail bool
}

func (p *flakyPersister) Load(ctx context.Context) (*models.Snapshot, error) {
	return nil, nil
}

func (p *flakyPersister) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if p.fail {
		return errors.New("connection reset")
	}
	return nil
}
