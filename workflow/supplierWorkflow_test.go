package workflow_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/shopspring/decimal"
)

func supplierBalance(t *testing.T, ctx context.Context, svc *workflow.Service, id string) decimal.Decimal {
	t.Helper()
	sup, err := svc.Supplier(ctx, id)
	if err != nil {
		t.Fatalf("Supplier(%s): %v", id, err)
	}
	return sup.Balance
}

func TestRecordPurchaseInvoiceAndReverse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	sup, err := svc.AddSupplier(ctx, models.NewSupplier{Name: "Golden Flour"})
	if err != nil {
		t.Fatalf("AddSupplier: %v", err)
	}
	flour := mustAddProduct(t, svc, "Flour 1kg", "3", 2)

	recorded, err := svc.RecordPurchaseInvoice(ctx, models.NewPurchaseInvoice{
		SupplierId: sup.ID,
		Items:      []models.PurchaseLineItem{{ProductId: flour.ID, Quantity: 3, UnitPrice: dec("4")}},
		AmountPaid: dec("5"),
	})
	if err != nil {
		t.Fatalf("RecordPurchaseInvoice: %v", err)
	}
	if len(recorded) != 2 || !recorded[0].Amount.Equal(dec("12")) || recorded[1].Type != models.SupplierTransactionTypePayment {
		t.Fatalf("unexpected transactions: %+v", recorded)
	}
	if got := supplierBalance(t, ctx, svc, sup.ID); !got.Equal(dec("7")) {
		t.Fatalf("supplier balance = %s, want 7", got)
	}
	p, err := svc.Product(ctx, flour.ID)
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if p.Stock != 5 {
		t.Fatalf("stock = %d, want 5", p.Stock)
	}

	// Sell four of the five, then the purchase can no longer be taken back.
	if _, err := svc.ProcessSale(ctx, models.NewSale{Items: []models.CartItem{{ProductId: flour.ID, Quantity: 4}}}); err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	err = svc.DeleteSupplierTransaction(ctx, recorded[0].ID)
	assertKind(t, err, models.ErrorKindInsufficientStock)
	if got := supplierBalance(t, ctx, svc, sup.ID); !got.Equal(dec("7")) {
		t.Fatalf("failed delete moved the balance to %s", got)
	}

	if _, err := svc.AdjustStock(ctx, models.StockAdjustment{ProductId: flour.ID, Delta: 10, Reason: "recount"}); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if err := svc.DeleteSupplierTransaction(ctx, recorded[0].ID); err != nil {
		t.Fatalf("DeleteSupplierTransaction: %v", err)
	}
	if got := supplierBalance(t, ctx, svc, sup.ID); !got.Equal(dec("-5")) {
		t.Fatalf("supplier balance = %s, want -5", got)
	}
	if p, _ = svc.Product(ctx, flour.ID); p.Stock != 8 {
		t.Fatalf("stock = %d, want 8", p.Stock)
	}
}

func TestSupplierTransactionEdits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	sup, err := svc.AddSupplier(ctx, models.NewSupplier{Name: "Dairy Co", OpeningBalance: dec("100")})
	if err != nil {
		t.Fatalf("AddSupplier: %v", err)
	}
	payment, err := svc.AddSupplierTransaction(ctx, models.NewSupplierTransaction{
		SupplierId: sup.ID,
		Type:       models.SupplierTransactionTypePayment,
		Amount:     dec("40"),
	})
	if err != nil {
		t.Fatalf("AddSupplierTransaction: %v", err)
	}
	amount := dec("60")
	if _, err := svc.UpdateSupplierTransaction(ctx, payment.ID, models.SupplierTransactionPatch{Amount: &amount}); err != nil {
		t.Fatalf("UpdateSupplierTransaction: %v", err)
	}
	if got := supplierBalance(t, ctx, svc, sup.ID); !got.Equal(dec("40")) {
		t.Fatalf("supplier balance = %s, want 40", got)
	}
	list, err := svc.SupplierTransactions(ctx, sup.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("SupplierTransactions = %v, %v", list, err)
	}
	assertLedgerConsistent(t, svc)
}

func TestDeleteSupplierDetachesProducts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	sup, err := svc.AddSupplier(ctx, models.NewSupplier{Name: "Dairy Co", OpeningBalance: dec("10")})
	if err != nil {
		t.Fatalf("AddSupplier: %v", err)
	}
	milk, err := svc.AddProduct(ctx, models.NewProduct{Name: "Milk", SellingPrice: dec("2"), SupplierId: &sup.ID})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if err := svc.DeleteSupplier(ctx, sup.ID); err != nil {
		t.Fatalf("DeleteSupplier: %v", err)
	}
	got, err := svc.Product(ctx, milk.ID)
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if got.SupplierId != nil {
		t.Fatalf("product still references deleted supplier")
	}
	list, err := svc.SupplierTransactions(ctx, "")
	if err != nil || len(list) != 0 {
		t.Fatalf("supplier transactions survived: %v, %v", list, err)
	}

	_, err = svc.AddProduct(ctx, models.NewProduct{Name: "Cheese", SellingPrice: dec("5"), SupplierId: &sup.ID})
	assertKind(t, err, models.ErrorKindNotFound)
}
