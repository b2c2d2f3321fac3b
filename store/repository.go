package store

import (
	"context"

	"github.com/mmdatafocus/shopledger_backend/models"
)

// Repository is the ledger's backing store. Every compound update runs inside
// WithTransaction: either all of fn's writes are persisted or none are, and the
// in-memory view never runs ahead of the durable one.
type Repository interface {
	WithTransaction(ctx context.Context, fn func(tx Tx) error) error
	Load(ctx context.Context) (*models.Snapshot, error)
	Replace(ctx context.Context, snapshot *models.Snapshot) error
	// Subscribe delivers committed change events. Slow subscribers miss events
	// once their buffer is full. cancel closes the channel.
	Subscribe(buffer int) (events <-chan models.ChangeEvent, cancel func())
	Close() error
}

// Tx is the view of the store inside one transaction. Getters return copies;
// callers mutate the copy and hand it back through the matching Save.
// Missing records are reported as models.ErrNotFound.
type Tx interface {
	Customer(id string) (*models.Customer, error)
	Customers() ([]*models.Customer, error)
	SaveCustomer(c *models.Customer) error
	DeleteCustomer(id string) error

	Supplier(id string) (*models.Supplier, error)
	Suppliers() ([]*models.Supplier, error)
	SaveSupplier(s *models.Supplier) error
	DeleteSupplier(id string) error

	Product(id string) (*models.Product, error)
	Products() ([]*models.Product, error)
	SaveProduct(p *models.Product) error
	DeleteProduct(id string) error
	// DecrementStock lowers stock by qty unless that would take it below zero,
	// in which case it fails with models.ErrInsufficientStock and changes nothing.
	DecrementStock(productId string, qty int) (*models.Product, error)

	Transaction(id string) (*models.Transaction, error)
	Transactions() ([]*models.Transaction, error)
	TransactionsByCustomer(customerId string) ([]*models.Transaction, error)
	// SaveTransaction rejects a second debt or payment linked to the same order.
	SaveTransaction(t *models.Transaction) error
	DeleteTransaction(id string) error
	OrderLinks(orderId string) (models.OrderLinks, error)

	SupplierTransaction(id string) (*models.SupplierTransaction, error)
	SupplierTransactionsBySupplier(supplierId string) ([]*models.SupplierTransaction, error)
	SaveSupplierTransaction(t *models.SupplierTransaction) error
	DeleteSupplierTransaction(id string) error

	BreadOrder(id string) (*models.BreadOrder, error)
	BreadOrders() ([]*models.BreadOrder, error)
	SaveBreadOrder(o *models.BreadOrder) error
	DeleteBreadOrder(id string) error

	Sale(id string) (*models.Sale, error)
	Sales() ([]*models.Sale, error)
	SaveSale(s *models.Sale) error
	DeleteSale(id string) error

	Setting(key string) (string, bool, error)
	SaveSetting(key, value string) error

	// Emit queues an event that is published only if the transaction commits.
	Emit(event models.ChangeEvent)
}

// Persister is the durable side of MemoryStore.
type Persister interface {
	// Load returns nil, nil when nothing has been saved yet.
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snapshot *models.Snapshot) error
}
