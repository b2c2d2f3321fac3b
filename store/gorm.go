package store

import (
	"context"
	"errors"
	"sort"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/shopledger_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps the ledger in MySQL or Postgres. Owners (customers, suppliers,
// products) and order links are read FOR UPDATE so concurrent sales and order syncs
// serialize on the rows they touch.
type GormStore struct {
	db     *gorm.DB
	broker *broker
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, broker: newBroker()}
}

func (s *GormStore) Migrate() error {
	return models.MigrateTable(s.db)
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// translate maps backing-store failures onto ledger error kinds. LedgerErrors raised by
// the transaction body pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var le *models.LedgerError
	if errors.As(err, &le) {
		return err
	}
	if isDuplicateKeyErr(err) {
		return &models.LedgerError{Kind: models.ErrorKindDuplicateId, Message: "duplicate key", Err: err}
	}
	return models.StoreUnavailable(err)
}

func (s *GormStore) WithTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var events []models.ChangeEvent
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &gormTx{db: db}
		if err := fn(tx); err != nil {
			return err
		}
		events = tx.events
		return nil
	})
	if err != nil {
		return translate(err)
	}
	s.broker.publish(events)
	return nil
}

func (s *GormStore) Load(ctx context.Context) (*models.Snapshot, error) {
	snap := models.NewSnapshot()
	db := s.db.WithContext(ctx)
	var settings []models.Setting
	steps := []func() error{
		func() error { return db.Find(&snap.Customers).Error },
		func() error { return db.Find(&snap.Suppliers).Error },
		func() error { return db.Find(&snap.Products).Error },
		func() error { return db.Find(&snap.Transactions).Error },
		func() error { return db.Find(&snap.SupplierTransactions).Error },
		func() error { return db.Find(&snap.BreadOrders).Error },
		func() error { return db.Find(&snap.Sales).Error },
		func() error { return db.Find(&settings).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, translate(err)
		}
	}
	for _, st := range settings {
		snap.Settings[st.Key] = st.Value
	}
	snap.Normalize()
	return snap, nil
}

// Replace swaps every table's contents for the snapshot in one database transaction.
func (s *GormStore) Replace(ctx context.Context, snapshot *models.Snapshot) error {
	snapshot.Normalize()
	if err := snapshot.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		all := db.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, m := range models.AllModels() {
			if err := all.Delete(m).Error; err != nil {
				return err
			}
		}
		if err := createAll(db, snapshot.Customers); err != nil {
			return err
		}
		if err := createAll(db, snapshot.Suppliers); err != nil {
			return err
		}
		if err := createAll(db, snapshot.Products); err != nil {
			return err
		}
		if err := createAll(db, snapshot.Transactions); err != nil {
			return err
		}
		if err := createAll(db, snapshot.SupplierTransactions); err != nil {
			return err
		}
		if err := createAll(db, snapshot.BreadOrders); err != nil {
			return err
		}
		if err := createAll(db, snapshot.Sales); err != nil {
			return err
		}
		settings := make([]*models.Setting, 0, len(snapshot.Settings))
		for k, v := range snapshot.Settings {
			settings = append(settings, &models.Setting{Key: k, Value: v})
		}
		return createAll(db, settings)
	})
	if err != nil {
		return translate(err)
	}
	s.broker.publish([]models.ChangeEvent{{Entity: models.EntitySnapshot, Action: models.ChangeActionReplace}})
	return nil
}

func createAll[T any](db *gorm.DB, rows []*T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.CreateInBatches(rows, 200).Error
}

func (s *GormStore) Subscribe(buffer int) (<-chan models.ChangeEvent, func()) {
	return s.broker.subscribe(buffer)
}

func (s *GormStore) Close() error {
	s.broker.closeAll()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db     *gorm.DB
	events []models.ChangeEvent
}

func (tx *gormTx) Emit(event models.ChangeEvent) {
	tx.events = append(tx.events, event)
}

func (tx *gormTx) forUpdate() *gorm.DB {
	return tx.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func firstById[T any](db *gorm.DB, entity models.EntityKind, id string) (*T, error) {
	var row T
	err := db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NotFound(entity, id)
	}
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func deleteById[T any](db *gorm.DB, entity models.EntityKind, id string) error {
	res := db.Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NotFound(entity, id)
	}
	return nil
}

// upsert writes every column, inserting the row if its id is new.
func upsert(db *gorm.DB, row any) error {
	return translate(db.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error)
}

func sortById[T any](rows []*T, id func(*T) string) []*T {
	sort.Slice(rows, func(i, j int) bool { return models.CompareIds(id(rows[i]), id(rows[j])) < 0 })
	return rows
}

func (tx *gormTx) Customer(id string) (*models.Customer, error) {
	return firstById[models.Customer](tx.forUpdate(), models.EntityCustomer, id)
}

func (tx *gormTx) Customers() ([]*models.Customer, error) {
	var rows []*models.Customer
	if err := tx.db.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return sortById(rows, func(c *models.Customer) string { return c.ID }), nil
}

func (tx *gormTx) SaveCustomer(c *models.Customer) error {
	return upsert(tx.db, c.Clone())
}

func (tx *gormTx) DeleteCustomer(id string) error {
	return deleteById[models.Customer](tx.db, models.EntityCustomer, id)
}

func (tx *gormTx) Supplier(id string) (*models.Supplier, error) {
	return firstById[models.Supplier](tx.forUpdate(), models.EntitySupplier, id)
}

func (tx *gormTx) Suppliers() ([]*models.Supplier, error) {
	var rows []*models.Supplier
	if err := tx.db.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return sortById(rows, func(s *models.Supplier) string { return s.ID }), nil
}

func (tx *gormTx) SaveSupplier(s *models.Supplier) error {
	return upsert(tx.db, s.Clone())
}

func (tx *gormTx) DeleteSupplier(id string) error {
	return deleteById[models.Supplier](tx.db, models.EntitySupplier, id)
}

func (tx *gormTx) Product(id string) (*models.Product, error) {
	return firstById[models.Product](tx.forUpdate(), models.EntityProduct, id)
}

func (tx *gormTx) Products() ([]*models.Product, error) {
	var rows []*models.Product
	if err := tx.db.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return sortById(rows, func(p *models.Product) string { return p.ID }), nil
}

func (tx *gormTx) SaveProduct(p *models.Product) error {
	if p.Stock < 0 {
		return models.InsufficientStock(p.ID, p.Name, 0, -p.Stock)
	}
	return upsert(tx.db, p.Clone())
}

func (tx *gormTx) DeleteProduct(id string) error {
	return deleteById[models.Product](tx.db, models.EntityProduct, id)
}

// DecrementStock is a single conditional UPDATE; zero affected rows means the product is
// missing or short.
func (tx *gormTx) DecrementStock(productId string, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, models.Validation("quantity must be greater than zero")
	}
	res := tx.db.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productId, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	p, err := firstById[models.Product](tx.forUpdate(), models.EntityProduct, productId)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, models.InsufficientStock(p.ID, p.Name, p.Stock, qty)
	}
	return p, nil
}

func (tx *gormTx) Transaction(id string) (*models.Transaction, error) {
	return firstById[models.Transaction](tx.forUpdate(), models.EntityTransaction, id)
}

func (tx *gormTx) Transactions() ([]*models.Transaction, error) {
	var rows []*models.Transaction
	if err := tx.db.Order("date").Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (tx *gormTx) TransactionsByCustomer(customerId string) ([]*models.Transaction, error) {
	var rows []*models.Transaction
	if err := tx.db.Where("customer_id = ?", customerId).Order("date").Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (tx *gormTx) SaveTransaction(t *models.Transaction) error {
	if !t.Type.IsValid() {
		return models.Validation("invalid transaction type %q", t.Type)
	}
	if t.OrderId != nil {
		// MySQL's ON DUPLICATE KEY fires on any unique index, so the order link is
		// checked here rather than left to the upsert.
		links, err := tx.OrderLinks(*t.OrderId)
		if err != nil {
			return err
		}
		if holder := links.Get(t.Type); holder != nil && holder.ID != t.ID {
			return models.DuplicateId(models.EntityTransaction, *t.OrderId+"/"+string(t.Type))
		}
	}
	return upsert(tx.db, t.Clone())
}

func (tx *gormTx) DeleteTransaction(id string) error {
	return deleteById[models.Transaction](tx.db, models.EntityTransaction, id)
}

func (tx *gormTx) OrderLinks(orderId string) (models.OrderLinks, error) {
	var links models.OrderLinks
	var rows []*models.Transaction
	if err := tx.forUpdate().Where("order_id = ?", orderId).Find(&rows).Error; err != nil {
		return links, translate(err)
	}
	for _, t := range rows {
		if t.Type.IsDebtLike() {
			links.Debt = t
		} else {
			links.Payment = t
		}
	}
	return links, nil
}

func (tx *gormTx) SupplierTransaction(id string) (*models.SupplierTransaction, error) {
	return firstById[models.SupplierTransaction](tx.forUpdate(), models.EntitySupplierTransaction, id)
}

func (tx *gormTx) SupplierTransactionsBySupplier(supplierId string) ([]*models.SupplierTransaction, error) {
	var rows []*models.SupplierTransaction
	q := tx.db.Order("date").Order("id")
	if supplierId != "" {
		q = q.Where("supplier_id = ?", supplierId)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (tx *gormTx) SaveSupplierTransaction(t *models.SupplierTransaction) error {
	if !t.Type.IsValid() {
		return models.Validation("invalid supplier transaction type %q", t.Type)
	}
	return upsert(tx.db, t.Clone())
}

func (tx *gormTx) DeleteSupplierTransaction(id string) error {
	return deleteById[models.SupplierTransaction](tx.db, models.EntitySupplierTransaction, id)
}

func (tx *gormTx) BreadOrder(id string) (*models.BreadOrder, error) {
	return firstById[models.BreadOrder](tx.forUpdate(), models.EntityBreadOrder, id)
}

func (tx *gormTx) BreadOrders() ([]*models.BreadOrder, error) {
	var rows []*models.BreadOrder
	if err := tx.db.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return sortById(rows, func(o *models.BreadOrder) string { return o.ID }), nil
}

func (tx *gormTx) SaveBreadOrder(o *models.BreadOrder) error {
	return upsert(tx.db, o.Clone())
}

func (tx *gormTx) DeleteBreadOrder(id string) error {
	return deleteById[models.BreadOrder](tx.db, models.EntityBreadOrder, id)
}

func (tx *gormTx) Sale(id string) (*models.Sale, error) {
	return firstById[models.Sale](tx.db, models.EntitySale, id)
}

func (tx *gormTx) Sales() ([]*models.Sale, error) {
	var rows []*models.Sale
	if err := tx.db.Order("date").Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (tx *gormTx) SaveSale(s *models.Sale) error {
	return upsert(tx.db, s.Clone())
}

func (tx *gormTx) DeleteSale(id string) error {
	return deleteById[models.Sale](tx.db, models.EntitySale, id)
}

func (tx *gormTx) Setting(key string) (string, bool, error) {
	var row models.Setting
	err := tx.forUpdate().Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate(err)
	}
	return row.Value, true, nil
}

func (tx *gormTx) SaveSetting(key, value string) error {
	if key == "" {
		return models.Validation("setting key is required")
	}
	return upsert(tx.db, &models.Setting{Key: key, Value: value})
}
