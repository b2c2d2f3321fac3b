package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mmdatafocus/shopledger_backend/models"
)

type orderLink struct {
	debt    string
	payment string
}

// memoryState is never mutated once published. A transaction works on a shallow copy of
// the maps; stored records are replaced, never edited in place.
type memoryState struct {
	customers            map[string]*models.Customer
	suppliers            map[string]*models.Supplier
	products             map[string]*models.Product
	transactions         map[string]*models.Transaction
	orderLinks           map[string]orderLink
	supplierTransactions map[string]*models.SupplierTransaction
	breadOrders          map[string]*models.BreadOrder
	sales                map[string]*models.Sale
	settings             map[string]string
}

func emptyState() *memoryState {
	return &memoryState{
		customers:            map[string]*models.Customer{},
		suppliers:            map[string]*models.Supplier{},
		products:             map[string]*models.Product{},
		transactions:         map[string]*models.Transaction{},
		orderLinks:           map[string]orderLink{},
		supplierTransactions: map[string]*models.SupplierTransaction{},
		breadOrders:          map[string]*models.BreadOrder{},
		sales:                map[string]*models.Sale{},
		settings:             map[string]string{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	cp := make(map[K]V, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func (s *memoryState) copy() *memoryState {
	return &memoryState{
		customers:            copyMap(s.customers),
		suppliers:            copyMap(s.suppliers),
		products:             copyMap(s.products),
		transactions:         copyMap(s.transactions),
		orderLinks:           copyMap(s.orderLinks),
		supplierTransactions: copyMap(s.supplierTransactions),
		breadOrders:          copyMap(s.breadOrders),
		sales:                copyMap(s.sales),
		settings:             copyMap(s.settings),
	}
}

func stateFromSnapshot(snap *models.Snapshot) (*memoryState, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	st := emptyState()
	for _, c := range snap.Customers {
		st.customers[c.ID] = c.Clone()
	}
	for _, s := range snap.Suppliers {
		st.suppliers[s.ID] = s.Clone()
	}
	for _, p := range snap.Products {
		st.products[p.ID] = p.Clone()
	}
	for _, t := range snap.Transactions {
		st.putTransaction(t.Clone())
	}
	for _, t := range snap.SupplierTransactions {
		st.supplierTransactions[t.ID] = t.Clone()
	}
	for _, o := range snap.BreadOrders {
		st.breadOrders[o.ID] = o.Clone()
	}
	for _, s := range snap.Sales {
		st.sales[s.ID] = s.Clone()
	}
	for k, v := range snap.Settings {
		st.settings[k] = v
	}
	return st, nil
}

func (s *memoryState) snapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	for _, c := range s.customers {
		snap.Customers = append(snap.Customers, c.Clone())
	}
	for _, v := range s.suppliers {
		snap.Suppliers = append(snap.Suppliers, v.Clone())
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p.Clone())
	}
	for _, t := range s.transactions {
		snap.Transactions = append(snap.Transactions, t.Clone())
	}
	for _, t := range s.supplierTransactions {
		snap.SupplierTransactions = append(snap.SupplierTransactions, t.Clone())
	}
	for _, o := range s.breadOrders {
		snap.BreadOrders = append(snap.BreadOrders, o.Clone())
	}
	for _, v := range s.sales {
		snap.Sales = append(snap.Sales, v.Clone())
	}
	for k, v := range s.settings {
		snap.Settings[k] = v
	}
	snap.Normalize()
	return snap
}

func (s *memoryState) putTransaction(t *models.Transaction) {
	s.transactions[t.ID] = t
	if t.OrderId == nil {
		return
	}
	link := s.orderLinks[*t.OrderId]
	if t.Type.IsDebtLike() {
		link.debt = t.ID
	} else {
		link.payment = t.ID
	}
	s.orderLinks[*t.OrderId] = link
}

func (s *memoryState) unlinkTransaction(t *models.Transaction) {
	if t.OrderId == nil {
		return
	}
	link, ok := s.orderLinks[*t.OrderId]
	if !ok {
		return
	}
	if link.debt == t.ID {
		link.debt = ""
	}
	if link.payment == t.ID {
		link.payment = ""
	}
	if link.debt == "" && link.payment == "" {
		delete(s.orderLinks, *t.OrderId)
		return
	}
	s.orderLinks[*t.OrderId] = link
}

// MemoryStore keeps the ledger in memory and writes the full snapshot through its
// Persister on every commit. Transactions are serialized by one mutex, which also makes
// stock decrements atomic with respect to concurrent sales.
type MemoryStore struct {
	mu        sync.Mutex
	state     *memoryState
	persister Persister
	broker    *broker
}

// NewMemoryStore loads the persisted snapshot if there is one. A nil persister keeps
// everything in memory.
func NewMemoryStore(ctx context.Context, persister Persister) (*MemoryStore, error) {
	s := &MemoryStore{state: emptyState(), persister: persister, broker: newBroker()}
	if persister == nil {
		return s, nil
	}
	snap, err := persister.Load(ctx)
	if err != nil {
		return nil, models.StoreUnavailable(err)
	}
	if snap == nil {
		return s, nil
	}
	snap.Normalize()
	st, err := stateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	s.state = st
	return s, nil
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return models.StoreUnavailable(err)
	}
	events, err := s.commit(ctx, fn)
	if err != nil {
		return err
	}
	s.broker.publish(events)
	return nil
}

// commit runs fn against a copy of the state and swaps the copy in only after the
// persister accepted it. The lock is held for the whole step and released on panic.
func (s *MemoryStore) commit(ctx context.Context, fn func(tx Tx) error) ([]models.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.copy()}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if tx.dirty {
		if err := s.persist(ctx, tx.state); err != nil {
			return nil, err
		}
		s.state = tx.state
	}
	return tx.events, nil
}

func (s *MemoryStore) persist(ctx context.Context, st *memoryState) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, st.snapshot()); err != nil {
		return models.StoreUnavailable(err)
	}
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot(), nil
}

func (s *MemoryStore) Replace(ctx context.Context, snapshot *models.Snapshot) error {
	snapshot.Normalize()
	st, err := stateFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := s.swap(ctx, st); err != nil {
		return err
	}
	s.broker.publish([]models.ChangeEvent{{Entity: models.EntitySnapshot, Action: models.ChangeActionReplace}})
	return nil
}

func (s *MemoryStore) swap(ctx context.Context, st *memoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, st); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *MemoryStore) Subscribe(buffer int) (<-chan models.ChangeEvent, func()) {
	return s.broker.subscribe(buffer)
}

func (s *MemoryStore) Close() error {
	s.broker.closeAll()
	return nil
}

type memoryTx struct {
	state  *memoryState
	events []models.ChangeEvent
	dirty  bool
}

func (tx *memoryTx) Emit(event models.ChangeEvent) {
	tx.events = append(tx.events, event)
}

func sortedValues[V any](m map[string]V, clone func(V) V, id func(V) string) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return models.CompareIds(id(out[i]), id(out[j])) < 0 })
	return out
}

func (tx *memoryTx) Customer(id string) (*models.Customer, error) {
	c, ok := tx.state.customers[id]
	if !ok {
		return nil, models.NotFound(models.EntityCustomer, id)
	}
	return c.Clone(), nil
}

func (tx *memoryTx) Customers() ([]*models.Customer, error) {
	return sortedValues(tx.state.customers, (*models.Customer).Clone, func(c *models.Customer) string { return c.ID }), nil
}

func (tx *memoryTx) SaveCustomer(c *models.Customer) error {
	if c.ID == "" {
		return models.Validation("customer id is required")
	}
	tx.state.customers[c.ID] = c.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteCustomer(id string) error {
	if _, ok := tx.state.customers[id]; !ok {
		return models.NotFound(models.EntityCustomer, id)
	}
	delete(tx.state.customers, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) Supplier(id string) (*models.Supplier, error) {
	v, ok := tx.state.suppliers[id]
	if !ok {
		return nil, models.NotFound(models.EntitySupplier, id)
	}
	return v.Clone(), nil
}

func (tx *memoryTx) Suppliers() ([]*models.Supplier, error) {
	return sortedValues(tx.state.suppliers, (*models.Supplier).Clone, func(v *models.Supplier) string { return v.ID }), nil
}

func (tx *memoryTx) SaveSupplier(v *models.Supplier) error {
	if v.ID == "" {
		return models.Validation("supplier id is required")
	}
	tx.state.suppliers[v.ID] = v.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteSupplier(id string) error {
	if _, ok := tx.state.suppliers[id]; !ok {
		return models.NotFound(models.EntitySupplier, id)
	}
	delete(tx.state.suppliers, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) Product(id string) (*models.Product, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return nil, models.NotFound(models.EntityProduct, id)
	}
	return p.Clone(), nil
}

func (tx *memoryTx) Products() ([]*models.Product, error) {
	return sortedValues(tx.state.products, (*models.Product).Clone, func(p *models.Product) string { return p.ID }), nil
}

func (tx *memoryTx) SaveProduct(p *models.Product) error {
	if p.ID == "" {
		return models.Validation("product id is required")
	}
	if p.Stock < 0 {
		return models.InsufficientStock(p.ID, p.Name, 0, -p.Stock)
	}
	tx.state.products[p.ID] = p.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteProduct(id string) error {
	if _, ok := tx.state.products[id]; !ok {
		return models.NotFound(models.EntityProduct, id)
	}
	delete(tx.state.products, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DecrementStock(productId string, qty int) (*models.Product, error) {
	p, ok := tx.state.products[productId]
	if !ok {
		return nil, models.NotFound(models.EntityProduct, productId)
	}
	if qty <= 0 {
		return nil, models.Validation("quantity must be greater than zero")
	}
	if p.Stock < qty {
		return nil, models.InsufficientStock(p.ID, p.Name, p.Stock, qty)
	}
	next := p.Clone()
	next.Stock -= qty
	tx.state.products[productId] = next
	tx.dirty = true
	return next.Clone(), nil
}

func (tx *memoryTx) Transaction(id string) (*models.Transaction, error) {
	t, ok := tx.state.transactions[id]
	if !ok {
		return nil, models.NotFound(models.EntityTransaction, id)
	}
	return t.Clone(), nil
}

func (tx *memoryTx) Transactions() ([]*models.Transaction, error) {
	out := make([]*models.Transaction, 0, len(tx.state.transactions))
	for _, t := range tx.state.transactions {
		out = append(out, t.Clone())
	}
	sortTransactions(out)
	return out, nil
}

func (tx *memoryTx) TransactionsByCustomer(customerId string) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, t := range tx.state.transactions {
		if t.CustomerId == customerId {
			out = append(out, t.Clone())
		}
	}
	sortTransactions(out)
	return out, nil
}

func sortTransactions(list []*models.Transaction) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.Before(list[j].Date)
		}
		return list[i].ID < list[j].ID
	})
}

func (tx *memoryTx) SaveTransaction(t *models.Transaction) error {
	if t.ID == "" {
		return models.Validation("transaction id is required")
	}
	if !t.Type.IsValid() {
		return models.Validation("invalid transaction type %q", t.Type)
	}
	if t.OrderId != nil {
		link := tx.state.orderLinks[*t.OrderId]
		holder := link.payment
		if t.Type.IsDebtLike() {
			holder = link.debt
		}
		if holder != "" && holder != t.ID {
			return models.DuplicateId(models.EntityTransaction, *t.OrderId+"/"+string(t.Type))
		}
	}
	if old, ok := tx.state.transactions[t.ID]; ok {
		tx.state.unlinkTransaction(old)
	}
	tx.state.putTransaction(t.Clone())
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteTransaction(id string) error {
	t, ok := tx.state.transactions[id]
	if !ok {
		return models.NotFound(models.EntityTransaction, id)
	}
	tx.state.unlinkTransaction(t)
	delete(tx.state.transactions, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) OrderLinks(orderId string) (models.OrderLinks, error) {
	var links models.OrderLinks
	link, ok := tx.state.orderLinks[orderId]
	if !ok {
		return links, nil
	}
	if t, ok := tx.state.transactions[link.debt]; ok {
		links.Debt = t.Clone()
	}
	if t, ok := tx.state.transactions[link.payment]; ok {
		links.Payment = t.Clone()
	}
	return links, nil
}

func (tx *memoryTx) SupplierTransaction(id string) (*models.SupplierTransaction, error) {
	t, ok := tx.state.supplierTransactions[id]
	if !ok {
		return nil, models.NotFound(models.EntitySupplierTransaction, id)
	}
	return t.Clone(), nil
}

func (tx *memoryTx) SupplierTransactionsBySupplier(supplierId string) ([]*models.SupplierTransaction, error) {
	var out []*models.SupplierTransaction
	for _, t := range tx.state.supplierTransactions {
		if supplierId == "" || t.SupplierId == supplierId {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *memoryTx) SaveSupplierTransaction(t *models.SupplierTransaction) error {
	if t.ID == "" {
		return models.Validation("supplier transaction id is required")
	}
	if !t.Type.IsValid() {
		return models.Validation("invalid supplier transaction type %q", t.Type)
	}
	tx.state.supplierTransactions[t.ID] = t.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteSupplierTransaction(id string) error {
	if _, ok := tx.state.supplierTransactions[id]; !ok {
		return models.NotFound(models.EntitySupplierTransaction, id)
	}
	delete(tx.state.supplierTransactions, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) BreadOrder(id string) (*models.BreadOrder, error) {
	o, ok := tx.state.breadOrders[id]
	if !ok {
		return nil, models.NotFound(models.EntityBreadOrder, id)
	}
	return o.Clone(), nil
}

func (tx *memoryTx) BreadOrders() ([]*models.BreadOrder, error) {
	return sortedValues(tx.state.breadOrders, (*models.BreadOrder).Clone, func(o *models.BreadOrder) string { return o.ID }), nil
}

func (tx *memoryTx) SaveBreadOrder(o *models.BreadOrder) error {
	if o.ID == "" {
		return models.Validation("bread order id is required")
	}
	tx.state.breadOrders[o.ID] = o.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteBreadOrder(id string) error {
	if _, ok := tx.state.breadOrders[id]; !ok {
		return models.NotFound(models.EntityBreadOrder, id)
	}
	delete(tx.state.breadOrders, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) Sale(id string) (*models.Sale, error) {
	v, ok := tx.state.sales[id]
	if !ok {
		return nil, models.NotFound(models.EntitySale, id)
	}
	return v.Clone(), nil
}

func (tx *memoryTx) Sales() ([]*models.Sale, error) {
	out := make([]*models.Sale, 0, len(tx.state.sales))
	for _, v := range tx.state.sales {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *memoryTx) SaveSale(v *models.Sale) error {
	if v.ID == "" {
		return models.Validation("sale id is required")
	}
	tx.state.sales[v.ID] = v.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) DeleteSale(id string) error {
	if _, ok := tx.state.sales[id]; !ok {
		return models.NotFound(models.EntitySale, id)
	}
	delete(tx.state.sales, id)
	tx.dirty = true
	return nil
}

func (tx *memoryTx) Setting(key string) (string, bool, error) {
	v, ok := tx.state.settings[key]
	return v, ok, nil
}

func (tx *memoryTx) SaveSetting(key, value string) error {
	if key == "" {
		return models.Validation("setting key is required")
	}
	tx.state.settings[key] = value
	tx.dirty = true
	return nil
}
