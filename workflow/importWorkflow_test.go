package workflow_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/xuri/excelize/v2"
)

var customerMapping = map[string]string{
	"Customer ID": "id",
	"Full name":   "name",
	"Mobile":      "phone",
	"Owes":        "balance",
}

func TestImportRowsAllocatesIdsAboveExisting(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.AddCustomer(ctx, models.NewCustomer{ID: "7", Name: "Existing"}); err != nil {
		t.Fatalf("AddCustomer: %v", err)
	}

	rows := []map[string]string{
		{"Full name": "Thida"},
		{"Full name": "Zaw"},
	}
	result, err := svc.ImportRows(ctx, workflow.ImportKindCustomers, rows, customerMapping)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if len(result.Customers) != 2 || result.Customers[0].ID != "8" || result.Customers[1].ID != "9" {
		t.Fatalf("unexpected ids: %+v", result.Customers)
	}
}

func TestImportRowsSkipsPastExplicitIdsInBatch(t *testing.T) {
	svc, _ := newTestService(t)
	rows := []map[string]string{
		{"Full name": "No id"},
		{"Full name": "Explicit", "Customer ID": "20"},
	}
	result, err := svc.ImportRows(context.Background(), workflow.ImportKindCustomers, rows, customerMapping)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if result.Customers[0].ID != "21" || result.Customers[1].ID != "20" {
		t.Fatalf("unexpected ids: %s, %s", result.Customers[0].ID, result.Customers[1].ID)
	}
}

func TestImportRowsRejectsCollidingIds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.AddCustomer(ctx, models.NewCustomer{ID: "7", Name: "Existing"}); err != nil {
		t.Fatalf("AddCustomer: %v", err)
	}

	cases := map[string][]map[string]string{
		"existing id": {
			{"Full name": "Fresh"},
			{"Full name": "Clash", "Customer ID": "7"},
		},
		"repeated in batch": {
			{"Full name": "One", "Customer ID": "30"},
			{"Full name": "Two", "Customer ID": "30"},
		},
	}
	for name, rows := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ImportRows(ctx, workflow.ImportKindCustomers, rows, customerMapping)
			assertKind(t, err, models.ErrorKindDuplicateId)
			customers, err := svc.Customers(ctx)
			if err != nil {
				t.Fatalf("Customers: %v", err)
			}
			if len(customers) != 1 {
				t.Fatalf("rejected import wrote %d customers", len(customers)-1)
			}
		})
	}
}

func TestImportRowsRequiresMappedFields(t *testing.T) {
	svc, _ := newTestService(t)
	rows := []map[string]string{{"Item": "Rice"}}

	_, err := svc.ImportRows(context.Background(), workflow.ImportKindProducts, rows, map[string]string{"Item": "name"})
	assertKind(t, err, models.ErrorKindValidation)
	if !strings.Contains(err.Error(), "sellingPrice") {
		t.Fatalf("error should name the missing field: %v", err)
	}

	_, err = svc.ImportRows(context.Background(), workflow.ImportKindProducts, rows, map[string]string{"Item": "nickname"})
	assertKind(t, err, models.ErrorKindValidation)
}

func TestImportRowsRejectsBlankRequiredValue(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	rows := []map[string]string{{"Full name": "Good"}, {"Full name": "  "}}
	_, err := svc.ImportRows(ctx, workflow.ImportKindCustomers, rows, customerMapping)
	assertKind(t, err, models.ErrorKindValidation)
	customers, _ := svc.Customers(ctx)
	if len(customers) != 0 {
		t.Fatalf("partial import: %+v", customers)
	}
}

func TestImportRowsBooksOpeningBalances(t *testing.T) {
	svc, _ := newTestService(t)
	rows := []map[string]string{
		{"Full name": "Owes", "Owes": "1,250.50"},
		{"Full name": "In credit", "Owes": "-12.5"},
	}
	result, err := svc.ImportRows(context.Background(), workflow.ImportKindCustomers, rows, customerMapping)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	assertBalance(t, svc, result.Customers[0].ID, "1250.50")
	assertBalance(t, svc, result.Customers[1].ID, "-12.5")
	assertLedgerConsistent(t, svc)
}

func TestImportProducts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mapping := map[string]string{
		"Item":    "name",
		"Price":   "sellingPrice",
		"Cost":    "purchasePrice",
		"Qty":     "stock",
		"Codes":   "barcodes",
		"Reorder": "minStock",
	}
	rows := []map[string]string{
		{"Item": "Rice 5kg", "Price": "12000", "Cost": "10500", "Qty": "8.0", "Codes": "111; 222 | 111", "Reorder": "2"},
		{"Item": "Oil 1L", "Price": "4500", "Qty": "1", "Reorder": "3"},
	}
	result, err := svc.ImportRows(ctx, workflow.ImportKindProducts, rows, mapping)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	rice := result.Products[0]
	if rice.Stock != 8 || len(rice.Barcodes) != 2 || rice.Barcodes[1] != "222" {
		t.Fatalf("unexpected product: %+v", rice)
	}
	found, err := svc.FindProductByBarcode(ctx, "222")
	if err != nil || found.ID != rice.ID {
		t.Fatalf("FindProductByBarcode: %v %v", found, err)
	}
	low, err := svc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("LowStockProducts: %v", err)
	}
	if len(low) != 1 || low[0].Name != "Oil 1L" {
		t.Fatalf("low stock = %+v", low)
	}

	// A barcode already on the shelf rejects the batch.
	_, err = svc.ImportRows(ctx, workflow.ImportKindProducts, []map[string]string{{"Item": "Copy", "Price": "1", "Codes": "111"}}, mapping)
	assertKind(t, err, models.ErrorKindValidation)
}

func TestImportSuppliers(t *testing.T) {
	svc, _ := newTestService(t)
	rows := []map[string]string{{"Vendor": "Golden Flour", "Email": "sales@goldenflour.example", "Due": "300"}}
	result, err := svc.ImportRows(context.Background(), workflow.ImportKindSuppliers, rows, map[string]string{
		"Vendor": "name",
		"Email":  "email",
		"Due":    "balance",
	})
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if len(result.Suppliers) != 1 || !result.Suppliers[0].Balance.Equal(dec("300")) {
		t.Fatalf("unexpected suppliers: %+v", result.Suppliers)
	}
}

func TestReadCsvRows(t *testing.T) {
	input := "\ufeffFull name,Mobile,Owes\nThida,09 123,10\n\n,,\nZaw,,\n"
	rows, headers, err := workflow.ReadCsvRows(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCsvRows: %v", err)
	}
	if len(headers) != 3 || headers[0] != "Full name" {
		t.Fatalf("headers = %q", headers)
	}
	if len(rows) != 2 || rows[0]["Owes"] != "10" || rows[1]["Full name"] != "Zaw" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestReadXlsxRows(t *testing.T) {
	f := excelize.NewFile()
	sheet := "Sheet1"
	table := [][]any{
		{"Full name", "Owes"},
		{"Thida", 10},
		{"Zaw"},
	}
	for r, row := range table {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data := buf.Bytes()

	rows, headers, err := workflow.ReadXlsxRows(bytes.NewReader(data), "")
	if err != nil {
		t.Fatalf("ReadXlsxRows: %v", err)
	}
	if len(headers) != 2 || len(rows) != 2 || rows[0]["Owes"] != "10" || rows[1]["Owes"] != "" {
		t.Fatalf("headers %q rows %+v", headers, rows)
	}

	_, _, err = workflow.ReadXlsxRows(bytes.NewReader(data), "Missing")
	assertKind(t, err, models.ErrorKindValidation)
}
