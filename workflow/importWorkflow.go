package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/shopspring/decimal"
)

type ImportKind string

const (
	ImportKindCustomers ImportKind = "customers"
	ImportKindProducts  ImportKind = "products"
	ImportKindSuppliers ImportKind = "suppliers"
)

var importFields = map[ImportKind][]string{
	ImportKindCustomers: {"id", "name", "phone", "balance", "settlementDay"},
	ImportKindProducts:  {"id", "name", "category", "description", "barcodes", "purchasePrice", "sellingPrice", "stock", "minStock", "supplierId"},
	ImportKindSuppliers: {"id", "name", "category", "phone", "email", "address", "notes", "balance"},
}

var requiredImportFields = map[ImportKind][]string{
	ImportKindCustomers: {"name"},
	ImportKindProducts:  {"name", "sellingPrice"},
	ImportKindSuppliers: {"name"},
}

func ParseImportKind(s string) (ImportKind, error) {
	kind := ImportKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := importFields[kind]; !ok {
		return "", models.Validation("unknown import kind %q", s)
	}
	return kind, nil
}

func (k ImportKind) entity() models.EntityKind {
	switch k {
	case ImportKindProducts:
		return models.EntityProduct
	case ImportKindSuppliers:
		return models.EntitySupplier
	}
	return models.EntityCustomer
}

type ImportResult struct {
	Kind      ImportKind         `json:"kind"`
	Customers []*models.Customer `json:"customers,omitempty"`
	Products  []*models.Product  `json:"products,omitempty"`
	Suppliers []*models.Supplier `json:"suppliers,omitempty"`
}

func (r *ImportResult) Count() int {
	return len(r.Customers) + len(r.Products) + len(r.Suppliers)
}

// importRow reads one source row through the header -> field mapping.
type importRow struct {
	line   int
	values map[string]string
}

func (r importRow) get(field string) string {
	return strings.TrimSpace(r.values[field])
}

func (r importRow) amount(field string) (decimal.Decimal, error) {
	raw := r.get(field)
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := utils.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, models.Validation("row %d: %s %q is not a number", r.line, field, raw)
	}
	return v, nil
}

func (r importRow) integer(field string) (int, error) {
	raw := r.get(field)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// spreadsheets like to write whole numbers as "12.0"
		d, derr := utils.ParseAmount(raw)
		if derr != nil || !d.IsInteger() {
			return 0, models.Validation("row %d: %s %q is not a whole number", r.line, field, raw)
		}
		v = int(d.IntPart())
	}
	return v, nil
}

func splitBarcodes(raw string) []string {
	return models.NormalizeBarcodes(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	}))
}

// mapImportRows applies mapping (source header -> field) to rows and checks that every
// field the kind requires is mapped. Nothing is written here.
func mapImportRows(kind ImportKind, rows []map[string]string, mapping map[string]string) ([]importRow, error) {
	known, ok := importFields[kind]
	if !ok {
		return nil, models.Validation("unknown import kind %q", kind)
	}
	headerFor := map[string]string{}
	for header, field := range mapping {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		valid := false
		for _, f := range known {
			if f == field {
				valid = true
				break
			}
		}
		if !valid {
			return nil, models.Validation("column %q is mapped to unknown %s field %q", header, kind, field)
		}
		if other, dup := headerFor[field]; dup {
			return nil, models.Validation("columns %q and %q are both mapped to %q", other, header, field)
		}
		headerFor[field] = header
	}
	for _, field := range requiredImportFields[kind] {
		if _, ok := headerFor[field]; !ok {
			return nil, models.Validation("required field %q is not mapped", field)
		}
	}

	out := make([]importRow, 0, len(rows))
	for i, row := range rows {
		r := importRow{line: i + 1, values: map[string]string{}}
		for field, header := range headerFor {
			r.values[field] = row[header]
		}
		for _, field := range requiredImportFields[kind] {
			if r.get(field) == "" {
				return nil, models.Validation("row %d: %s is required", r.line, field)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// assignImportIds keeps explicit ids and hands the rest the next numeric id above both
// the existing ids and every explicit id in the batch. Any collision rejects the batch.
func assignImportIds(entity models.EntityKind, rows []importRow, existing []string) ([]string, error) {
	taken := make(map[string]bool, len(existing))
	for _, id := range existing {
		taken[id] = true
	}
	explicit := make([]string, 0, len(rows))
	seen := map[string]bool{}
	for _, r := range rows {
		id := r.get("id")
		if id == "" {
			continue
		}
		if taken[id] || seen[id] {
			return nil, models.DuplicateId(entity, id)
		}
		seen[id] = true
		explicit = append(explicit, id)
	}
	alloc := models.NewIdAllocator(existing, explicit)
	ids := make([]string, len(rows))
	for i, r := range rows {
		if id := r.get("id"); id != "" {
			ids[i] = id
			continue
		}
		ids[i] = alloc.Next()
	}
	return ids, nil
}

// ImportRows creates customers, products or suppliers from spreadsheet rows in one store
// transaction. Any invalid row, unmapped required field or id collision rejects the
// whole batch.
func (s *Service) ImportRows(ctx context.Context, kind ImportKind, rows []map[string]string, mapping map[string]string) (*ImportResult, error) {
	mapped, err := mapImportRows(kind, rows, mapping)
	if err != nil {
		return nil, err
	}
	if len(mapped) == 0 {
		return &ImportResult{Kind: kind}, nil
	}

	release, err := utils.ObtainLock(ctx, s.locker, "shopledger:import", time.Minute, "importWorkflow.go", "ImportRows")
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, models.Validation("another import is running")
	} else if err != nil {
		return nil, models.StoreUnavailable(err)
	}
	defer release()

	var result *ImportResult
	err = s.run(ctx, "ImportRows", func(tx *ledgerTx) error {
		result = &ImportResult{Kind: kind}
		switch kind {
		case ImportKindCustomers:
			return s.importCustomers(tx, mapped, result)
		case ImportKindProducts:
			return s.importProducts(tx, mapped, result)
		default:
			return s.importSuppliers(tx, mapped, result)
		}
	})
	if err != nil {
		return nil, err
	}
	ImportedRowsCounter.WithLabelValues(string(kind.entity())).Add(float64(result.Count()))
	return result, nil
}

func (s *Service) importCustomers(tx *ledgerTx, rows []importRow, result *ImportResult) error {
	existing, err := tx.Customers()
	if err != nil {
		return err
	}
	ids, err := assignImportIds(models.EntityCustomer, rows, idsOf(existing, customerIdOf))
	if err != nil {
		return err
	}
	for i, r := range rows {
		in := models.NewCustomer{ID: ids[i], Name: r.get("name"), Phone: r.get("phone")}
		if in.OpeningBalance, err = r.amount("balance"); err != nil {
			return err
		}
		if raw := r.get("settlementDay"); raw != "" {
			day, err := r.integer("settlementDay")
			if err != nil {
				return err
			}
			if err := validSettlementDay(&day); err != nil {
				return fmt.Errorf("row %d: %w", r.line, err)
			}
			in.SettlementDay = &day
		}
		if err := utils.ValidateStruct(in); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
		if in.Phone, err = s.normalizePhone(in.Phone); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
		c, err := tx.createCustomer(ids[i], in)
		if err != nil {
			return err
		}
		result.Customers = append(result.Customers, c)
	}
	return nil
}

func (s *Service) importProducts(tx *ledgerTx, rows []importRow, result *ImportResult) error {
	existing, err := tx.Products()
	if err != nil {
		return err
	}
	ids, err := assignImportIds(models.EntityProduct, rows, idsOf(existing, productIdOf))
	if err != nil {
		return err
	}
	for i, r := range rows {
		in := models.NewProduct{
			ID:          ids[i],
			Name:        r.get("name"),
			Category:    r.get("category"),
			Description: r.get("description"),
			Barcodes:    splitBarcodes(r.get("barcodes")),
			SupplierId:  utils.NilIfEmpty(r.get("supplierId")),
		}
		if in.PurchasePrice, err = r.amount("purchasePrice"); err != nil {
			return err
		}
		if in.SellingPrice, err = r.amount("sellingPrice"); err != nil {
			return err
		}
		if in.Stock, err = r.integer("stock"); err != nil {
			return err
		}
		if in.MinStock, err = r.integer("minStock"); err != nil {
			return err
		}
		if err := utils.ValidateStruct(in); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
		p, err := tx.createProduct(existing, ids[i], in)
		if err != nil {
			return err
		}
		existing = append(existing, p)
		result.Products = append(result.Products, p)
	}
	return nil
}

func (s *Service) importSuppliers(tx *ledgerTx, rows []importRow, result *ImportResult) error {
	existing, err := tx.Suppliers()
	if err != nil {
		return err
	}
	ids, err := assignImportIds(models.EntitySupplier, rows, idsOf(existing, supplierIdOf))
	if err != nil {
		return err
	}
	for i, r := range rows {
		in := models.NewSupplier{
			ID:       ids[i],
			Name:     r.get("name"),
			Category: r.get("category"),
			Phone:    r.get("phone"),
			Email:    r.get("email"),
			Address:  r.get("address"),
			Notes:    r.get("notes"),
		}
		if in.OpeningBalance, err = r.amount("balance"); err != nil {
			return err
		}
		if err := utils.ValidateStruct(in); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
		if in.Phone, err = s.normalizePhone(in.Phone); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
		sup, err := tx.createSupplier(ids[i], in)
		if err != nil {
			return err
		}
		result.Suppliers = append(result.Suppliers, sup)
	}
	return nil
}
