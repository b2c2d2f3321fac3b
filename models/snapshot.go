package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

func init() {
	// Exported files carry plain JSON numbers for money fields.
	decimal.MarshalJSONWithoutQuotes = true
}

// Snapshot is the full persisted ledger. Field names are the backup/import wire contract.
type Snapshot struct {
	Customers            []*Customer            `json:"customers"`
	Suppliers            []*Supplier            `json:"suppliers"`
	Products             []*Product             `json:"products"`
	Transactions         []*Transaction         `json:"transactions"`
	SupplierTransactions []*SupplierTransaction `json:"supplierTransactions"`
	BreadOrders          []*BreadOrder          `json:"breadOrders"`
	Sales                []*Sale                `json:"sales"`
	Settings             map[string]string      `json:"settings"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{Settings: map[string]string{}}
}

// Normalize replaces nil collections with empty ones and sorts every collection by id.
func (s *Snapshot) Normalize() {
	if s.Customers == nil {
		s.Customers = []*Customer{}
	}
	if s.Suppliers == nil {
		s.Suppliers = []*Supplier{}
	}
	if s.Products == nil {
		s.Products = []*Product{}
	}
	if s.Transactions == nil {
		s.Transactions = []*Transaction{}
	}
	if s.SupplierTransactions == nil {
		s.SupplierTransactions = []*SupplierTransaction{}
	}
	if s.BreadOrders == nil {
		s.BreadOrders = []*BreadOrder{}
	}
	if s.Sales == nil {
		s.Sales = []*Sale{}
	}
	if s.Settings == nil {
		s.Settings = map[string]string{}
	}
	sort.Slice(s.Customers, func(i, j int) bool { return CompareIds(s.Customers[i].ID, s.Customers[j].ID) < 0 })
	sort.Slice(s.Suppliers, func(i, j int) bool { return CompareIds(s.Suppliers[i].ID, s.Suppliers[j].ID) < 0 })
	sort.Slice(s.Products, func(i, j int) bool { return CompareIds(s.Products[i].ID, s.Products[j].ID) < 0 })
	sort.Slice(s.BreadOrders, func(i, j int) bool { return CompareIds(s.BreadOrders[i].ID, s.BreadOrders[j].ID) < 0 })
	sort.SliceStable(s.Transactions, func(i, j int) bool { return s.Transactions[i].Date.Before(s.Transactions[j].Date) })
	sort.SliceStable(s.SupplierTransactions, func(i, j int) bool {
		return s.SupplierTransactions[i].Date.Before(s.SupplierTransactions[j].Date)
	})
	sort.SliceStable(s.Sales, func(i, j int) bool { return s.Sales[i].Date.Before(s.Sales[j].Date) })
}

// Validate checks id uniqueness per collection and the order-link invariant.
func (s *Snapshot) Validate() error {
	if err := uniqueIds(EntityCustomer, len(s.Customers), func(i int) string { return s.Customers[i].ID }); err != nil {
		return err
	}
	if err := uniqueIds(EntitySupplier, len(s.Suppliers), func(i int) string { return s.Suppliers[i].ID }); err != nil {
		return err
	}
	if err := uniqueIds(EntityProduct, len(s.Products), func(i int) string { return s.Products[i].ID }); err != nil {
		return err
	}
	if err := uniqueIds(EntityTransaction, len(s.Transactions), func(i int) string { return s.Transactions[i].ID }); err != nil {
		return err
	}
	if err := uniqueIds(EntitySupplierTransaction, len(s.SupplierTransactions), func(i int) string { return s.SupplierTransactions[i].ID }); err != nil {
		return err
	}
	if err := uniqueIds(EntityBreadOrder, len(s.BreadOrders), func(i int) string { return s.BreadOrders[i].ID }); err != nil {
		return err
	}
	if err := uniqueIds(EntitySale, len(s.Sales), func(i int) string { return s.Sales[i].ID }); err != nil {
		return err
	}
	links := map[string]bool{}
	for _, t := range s.Transactions {
		if t.OrderId == nil {
			continue
		}
		key := *t.OrderId + "|" + string(t.Type)
		if links[key] {
			return Validation("order %q has more than one %s transaction", *t.OrderId, t.Type)
		}
		links[key] = true
	}
	return nil
}

// DetachDanglingOrderLinks clears the orderId of every transaction whose bread order is
// not in the snapshot and returns the ids of the transactions it changed.
func (s *Snapshot) DetachDanglingOrderLinks() []string {
	orders := make(map[string]bool, len(s.BreadOrders))
	for _, o := range s.BreadOrders {
		orders[o.ID] = true
	}
	var detached []string
	for _, t := range s.Transactions {
		if t.OrderId == nil || orders[*t.OrderId] {
			continue
		}
		t.OrderId = nil
		detached = append(detached, t.ID)
	}
	return detached
}

func uniqueIds(entity EntityKind, n int, id func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return Validation("%s at position %d has no id", entity, i)
		}
		if seen[v] {
			return DuplicateId(entity, v)
		}
		seen[v] = true
	}
	return nil
}
