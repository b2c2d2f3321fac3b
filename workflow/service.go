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
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("shopledger")

// Service runs every ledger operation against one repository. Each public method is a
// single repository transaction: its balance, stock and link updates commit together or
// not at all.
type Service struct {
	repo        store.Repository
	logger      *logrus.Logger
	locker      *redislock.Client
	now         func() time.Time
	location    *time.Location
	phoneRegion string
}

type Option func(*Service)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocker guards the daily jobs and imports with redis locks so several
// processes sharing one store do not run them twice.
func WithLocker(locker *redislock.Client) Option {
	return func(s *Service) { s.locker = locker }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

// WithPhoneRegion validates and normalizes phone numbers for the region, e.g. "MM".
func WithPhoneRegion(region string) Option {
	return func(s *Service) { s.phoneRegion = region }
}

func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		logger:   config.GetLogger(),
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	initMetrics(config.MetricsPrefix())
	return s
}

func (s *Service) Repository() store.Repository {
	return s.repo
}

func (s *Service) today() string {
	return s.now().In(s.location).Format(models.DateLayout)
}

// run executes fn in one repository transaction inside a trace span, recording the
// outcome in the operation metrics.
func (s *Service) run(ctx context.Context, op string, fn func(tx *ledgerTx) error) error {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	ctx, span := tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("correlation_id", correlationId)),
	)
	defer span.End()

	start := time.Now()
	err := s.repo.WithTransaction(ctx, func(tx store.Tx) error {
		return fn(&ledgerTx{Tx: tx, at: s.now(), correlationId: correlationId, logger: s.logger})
	})
	observeOperation(op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, models.ErrStoreUnavailable) {
			config.LogError(s.logger, "workflow", op, "Store write failed", correlationId, err)
		}
	}
	return err
}

// read runs fn in a transaction that is expected to write nothing.
func (s *Service) read(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.repo.WithTransaction(ctx, fn)
}

// ledgerTx carries the balance-maintaining write paths. Every transaction insert, edit
// and removal goes through here so the owner balance moves in the same store transaction.
type ledgerTx struct {
	store.Tx
	at            time.Time
	correlationId string
	logger        *logrus.Logger
}

func (tx *ledgerTx) emit(entity models.EntityKind, action models.ChangeAction, id string) {
	tx.Emit(models.ChangeEvent{Entity: entity, Action: action, ID: id, At: tx.at, CorrelationId: tx.correlationId})
}

func (tx *ledgerTx) insertTransaction(t *models.Transaction) error {
	c, err := tx.Customer(t.CustomerId)
	if err != nil {
		return err
	}
	c.ApplyTransaction(t.Type, decimal.Zero, t.Amount)
	if err := tx.SaveTransaction(t); err != nil {
		return err
	}
	if err := tx.SaveCustomer(c); err != nil {
		return err
	}
	tx.emit(models.EntityTransaction, models.ChangeActionCreate, t.ID)
	tx.emit(models.EntityCustomer, models.ChangeActionUpdate, c.ID)
	return nil
}

// editTransaction moves the balance from old's effect to next's. The customer is not
// allowed to change.
func (tx *ledgerTx) editTransaction(old, next *models.Transaction) error {
	c, err := tx.Customer(old.CustomerId)
	if err != nil {
		return err
	}
	if old.Type == next.Type {
		c.ApplyTransaction(next.Type, old.Amount, next.Amount)
	} else {
		c.ApplyTransaction(old.Type, old.Amount, decimal.Zero)
		c.ApplyTransaction(next.Type, decimal.Zero, next.Amount)
	}
	if err := tx.SaveTransaction(next); err != nil {
		return err
	}
	if err := tx.SaveCustomer(c); err != nil {
		return err
	}
	tx.emit(models.EntityTransaction, models.ChangeActionUpdate, next.ID)
	tx.emit(models.EntityCustomer, models.ChangeActionUpdate, c.ID)
	return nil
}

// removeTransaction reverses t's balance effect and deletes it. A transaction whose
// customer no longer exists is an orphan: it is deleted and reported, not treated as an error.
func (tx *ledgerTx) removeTransaction(t *models.Transaction) (orphan bool, err error) {
	c, err := tx.Customer(t.CustomerId)
	if errors.Is(err, models.ErrNotFound) {
		if err := tx.DeleteTransaction(t.ID); err != nil {
			return false, err
		}
		config.LogWarn(tx.logger, "workflow", "removeTransaction", "Removed orphaned transaction", t, "customer not found")
		tx.emit(models.EntityTransaction, models.ChangeActionDelete, t.ID)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	c.ApplyTransaction(t.Type, t.Amount, decimal.Zero)
	if err := tx.DeleteTransaction(t.ID); err != nil {
		return false, err
	}
	if err := tx.SaveCustomer(c); err != nil {
		return false, err
	}
	tx.emit(models.EntityTransaction, models.ChangeActionDelete, t.ID)
	tx.emit(models.EntityCustomer, models.ChangeActionUpdate, c.ID)
	return false, nil
}

func (tx *ledgerTx) insertSupplierTransaction(t *models.SupplierTransaction) error {
	sup, err := tx.Supplier(t.SupplierId)
	if err != nil {
		return err
	}
	sup.ApplyTransaction(t.Type, decimal.Zero, t.Amount)
	if err := tx.SaveSupplierTransaction(t); err != nil {
		return err
	}
	if err := tx.SaveSupplier(sup); err != nil {
		return err
	}
	tx.emit(models.EntitySupplierTransaction, models.ChangeActionCreate, t.ID)
	tx.emit(models.EntitySupplier, models.ChangeActionUpdate, sup.ID)
	return nil
}

func (tx *ledgerTx) editSupplierTransaction(old, next *models.SupplierTransaction) error {
	sup, err := tx.Supplier(old.SupplierId)
	if err != nil {
		return err
	}
	sup.ApplyTransaction(next.Type, old.Amount, next.Amount)
	if err := tx.SaveSupplierTransaction(next); err != nil {
		return err
	}
	if err := tx.SaveSupplier(sup); err != nil {
		return err
	}
	tx.emit(models.EntitySupplierTransaction, models.ChangeActionUpdate, next.ID)
	tx.emit(models.EntitySupplier, models.ChangeActionUpdate, sup.ID)
	return nil
}

func (tx *ledgerTx) removeSupplierTransaction(t *models.SupplierTransaction) error {
	sup, err := tx.Supplier(t.SupplierId)
	if errors.Is(err, models.ErrNotFound) {
		if err := tx.DeleteSupplierTransaction(t.ID); err != nil {
			return err
		}
		config.LogWarn(tx.logger, "workflow", "removeSupplierTransaction", "Removed orphaned supplier transaction", t, "supplier not found")
		tx.emit(models.EntitySupplierTransaction, models.ChangeActionDelete, t.ID)
		return nil
	}
	if err != nil {
		return err
	}
	sup.ApplyTransaction(t.Type, t.Amount, decimal.Zero)
	if err := tx.DeleteSupplierTransaction(t.ID); err != nil {
		return err
	}
	if err := tx.SaveSupplier(sup); err != nil {
		return err
	}
	tx.emit(models.EntitySupplierTransaction, models.ChangeActionDelete, t.ID)
	tx.emit(models.EntitySupplier, models.ChangeActionUpdate, sup.ID)
	return nil
}
