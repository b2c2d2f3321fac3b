package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
)

func mustAddOrder(t *testing.T, svc *workflow.Service, in models.NewBreadOrder) *models.BreadOrder {
	t.Helper()
	o, err := svc.AddBreadOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("AddBreadOrder: %v", err)
	}
	return o
}

func mustLinks(t *testing.T, svc *workflow.Service, orderId string) models.OrderLinks {
	t.Helper()
	links, err := svc.OrderTransactions(context.Background(), orderId)
	if err != nil {
		t.Fatalf("OrderTransactions(%s): %v", orderId, err)
	}
	return links
}

func TestBreadOrderLifecycleMovesCustomerBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	c := mustAddCustomer(t, svc, "C")
	if err := svc.SetBreadUnitPrice(ctx, dec("2")); err != nil {
		t.Fatalf("SetBreadUnitPrice: %v", err)
	}

	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Morning loaves", Quantity: 10, CustomerId: &c.ID})
	if !o.TotalAmount.Equal(dec("20")) || o.CustomerName != "C" {
		t.Fatalf("unexpected order: %+v", o)
	}
	assertBalance(t, svc, c.ID, "20")
	links := mustLinks(t, svc, o.ID)
	if links.Debt == nil || !links.Debt.Amount.Equal(dec("20")) || links.Payment != nil {
		t.Fatalf("expected a single debt of 20, got %+v", links)
	}

	if _, err := svc.UpdateBreadOrder(ctx, o.ID, models.BreadOrderPatch{IsPaid: boolPtr(true)}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	assertBalance(t, svc, c.ID, "0")
	links = mustLinks(t, svc, o.ID)
	if links.Payment == nil || !links.Payment.Amount.Equal(dec("20")) {
		t.Fatalf("expected a payment of 20, got %+v", links.Payment)
	}

	if _, err := svc.UpdateBreadOrder(ctx, o.ID, models.BreadOrderPatch{IsPaid: boolPtr(false)}); err != nil {
		t.Fatalf("unmark paid: %v", err)
	}
	assertBalance(t, svc, c.ID, "20")
	if links = mustLinks(t, svc, o.ID); links.Payment != nil {
		t.Fatalf("payment should be gone, got %+v", links.Payment)
	}

	if err := svc.DeleteBreadOrder(ctx, o.ID); err != nil {
		t.Fatalf("DeleteBreadOrder: %v", err)
	}
	assertBalance(t, svc, c.ID, "0")
	list, err := svc.Transactions(ctx, c.ID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no transactions left, got %d", len(list))
	}
}

func TestUpdateBreadOrderNoOpPatchWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	c := mustAddCustomer(t, svc, "C")
	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Rolls", Quantity: 4, UnitPrice: decPtr("1.5"), CustomerId: &c.ID, IsPaid: true})
	before := mustLinks(t, svc, o.ID)

	events, cancel := svc.Repository().Subscribe(16)
	defer cancel()

	patch := models.BreadOrderPatch{
		Name:       strPtr("Rolls"),
		Quantity:   intPtr(4),
		CustomerId: models.SetTo(c.ID),
		IsPaid:     boolPtr(true),
	}
	got, err := svc.UpdateBreadOrder(ctx, o.ID, patch)
	if err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	if !got.Equal(o) {
		t.Fatalf("no-op patch changed the order: %+v -> %+v", o, got)
	}
	select {
	case e := <-events:
		t.Fatalf("no-op patch published %+v", e)
	default:
	}

	after := mustLinks(t, svc, o.ID)
	if after.Debt.ID != before.Debt.ID || after.Payment.ID != before.Payment.ID {
		t.Fatalf("linked transactions were replaced")
	}
	if !after.Debt.Amount.Equal(before.Debt.Amount) || !after.Payment.Amount.Equal(before.Payment.Amount) {
		t.Fatalf("linked transactions were edited")
	}
	assertBalance(t, svc, c.ID, "0")
}

func TestUpdateBreadOrderCustomerAndPaidTogetherCreatesOnePayment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	first := mustAddCustomer(t, svc, "First")
	second := mustAddCustomer(t, svc, "Second")
	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Baguette", Quantity: 5, UnitPrice: decPtr("4"), CustomerId: &first.ID})
	assertBalance(t, svc, first.ID, "20")

	updated, err := svc.UpdateBreadOrder(ctx, o.ID, models.BreadOrderPatch{
		CustomerId: models.SetTo(second.ID),
		IsPaid:     boolPtr(true),
	})
	if err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	if updated.CustomerName != "Second" {
		t.Fatalf("customerName = %q", updated.CustomerName)
	}
	assertBalance(t, svc, first.ID, "0")
	assertBalance(t, svc, second.ID, "0")

	list, err := svc.Transactions(ctx, second.ID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	payments := 0
	for _, tr := range list {
		if tr.Type == models.TransactionTypePayment {
			payments++
		}
	}
	if len(list) != 2 || payments != 1 {
		t.Fatalf("expected one debt and one payment for the new customer, got %+v", list)
	}
	assertLedgerConsistent(t, svc)
}

func TestUpdateBreadOrderClearingCustomerDropsLinks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	c := mustAddCustomer(t, svc, "C")
	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Buns", Quantity: 2, UnitPrice: decPtr("3"), CustomerId: &c.ID, IsPaid: true})

	updated, err := svc.UpdateBreadOrder(ctx, o.ID, models.BreadOrderPatch{CustomerId: models.Cleared[string]()})
	if err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	if updated.CustomerId != nil || updated.CustomerName != "" {
		t.Fatalf("customer not cleared: %+v", updated)
	}
	if links := mustLinks(t, svc, o.ID); links.Debt != nil || links.Payment != nil {
		t.Fatalf("links should be gone: %+v", links)
	}
	assertBalance(t, svc, c.ID, "0")
}

func TestUpdateBreadOrderQuantityEditsLinksInPlace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	c := mustAddCustomer(t, svc, "C")
	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Loaf", Quantity: 10, UnitPrice: decPtr("2"), CustomerId: &c.ID, IsPaid: true})
	before := mustLinks(t, svc, o.ID)

	if _, err := svc.UpdateBreadOrder(ctx, o.ID, models.BreadOrderPatch{Quantity: intPtr(5), Name: strPtr("Small loaf")}); err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	after := mustLinks(t, svc, o.ID)
	if after.Debt.ID != before.Debt.ID || after.Payment.ID != before.Payment.ID {
		t.Fatalf("links should be edited in place, not recreated")
	}
	if !after.Debt.Amount.Equal(dec("10")) || !after.Payment.Amount.Equal(dec("10")) {
		t.Fatalf("amounts not updated: debt %s payment %s", after.Debt.Amount, after.Payment.Amount)
	}
	if after.Debt.Description != "Bread order: Small loaf (5)" {
		t.Fatalf("debt description = %q", after.Debt.Description)
	}
	assertBalance(t, svc, c.ID, "0")

	// Unpaying after an amount change must reverse the edited payment, not the original.
	if _, err := svc.UpdateBreadOrder(ctx, o.ID, models.BreadOrderPatch{Quantity: intPtr(6), IsPaid: boolPtr(false)}); err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	assertBalance(t, svc, c.ID, "12")
	assertLedgerConsistent(t, svc)
}

func TestAddBreadOrderNeedsUnitPrice(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddBreadOrder(context.Background(), models.NewBreadOrder{Name: "Loaf", Quantity: 1})
	assertKind(t, err, models.ErrorKindValidation)
}

func TestAddBreadOrderUnknownCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddBreadOrder(context.Background(), models.NewBreadOrder{Name: "Loaf", Quantity: 1, UnitPrice: decPtr("1"), CustomerId: strPtr("42")})
	assertKind(t, err, models.ErrorKindNotFound)
	orders, err := svc.BreadOrders(context.Background())
	if err != nil {
		t.Fatalf("BreadOrders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("failed add left an order behind")
	}
}

func TestRenamingCustomerRefreshesOrders(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	c := mustAddCustomer(t, svc, "Old name")
	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Loaf", Quantity: 1, UnitPrice: decPtr("1"), CustomerId: &c.ID})

	if _, err := svc.UpdateCustomer(ctx, c.ID, models.CustomerPatch{Name: strPtr("New name")}); err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	got, err := svc.BreadOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("BreadOrder: %v", err)
	}
	if got.CustomerName != "New name" {
		t.Fatalf("customerName = %q", got.CustomerName)
	}
}

func TestRunDailyResetKeepsPinnedOrdersAndHistory(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	c := mustAddCustomer(t, svc, "C")
	daily := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Daily", Quantity: 3, UnitPrice: decPtr("2"), CustomerId: &c.ID})
	pinned := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Standing", Quantity: 1, UnitPrice: decPtr("2"), CustomerId: &c.ID, IsPinned: true})

	ran, removed, err := svc.RunDailyReset(ctx)
	if err != nil {
		t.Fatalf("RunDailyReset: %v", err)
	}
	if !ran || len(removed) != 1 || removed[0] != daily.ID {
		t.Fatalf("expected %s to be removed, got ran=%v removed=%v", daily.ID, ran, removed)
	}
	if _, err := svc.BreadOrder(ctx, pinned.ID); err != nil {
		t.Fatalf("pinned order gone: %v", err)
	}
	// The customer still owes for yesterday's bread.
	assertBalance(t, svc, c.ID, "8")
	list, err := svc.Transactions(ctx, c.ID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	for _, tr := range list {
		if tr.IsLinkedTo(daily.ID) {
			t.Fatalf("history transaction still linked to removed order")
		}
	}

	if ran, _, err := svc.RunDailyReset(ctx); err != nil || ran {
		t.Fatalf("second reset the same day: ran=%v err=%v", ran, err)
	}
	clock.Advance(24 * time.Hour)
	if ran, _, err := svc.RunDailyReset(ctx); err != nil || !ran {
		t.Fatalf("reset on the next day: ran=%v err=%v", ran, err)
	}
	assertLedgerConsistent(t, svc)
}

// detachedOrderLedger holds a debt still tagged with order "1" although the order is gone.
func detachedOrderLedger() *models.Snapshot {
	at := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	orderId := "1"
	snap := models.NewSnapshot()
	snap.Customers = []*models.Customer{{ID: "1", Name: "C", CreatedAt: at, Balance: dec("5")}}
	snap.Transactions = []*models.Transaction{
		{ID: "t1", CustomerId: "1", Type: models.TransactionTypeDebt, Amount: dec("5"), Description: "Bread order: old (1)", Date: at, OrderId: &orderId},
	}
	return snap
}

func TestImportBackupDetachesLinksOfMissingOrders(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	data, err := json.Marshal(detachedOrderLedger())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := svc.ImportBackup(ctx, bytes.NewReader(data)); err != nil {
		t.Fatalf("ImportBackup: %v", err)
	}

	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Fresh", Quantity: 2, UnitPrice: decPtr("3"), CustomerId: strPtr("1")})
	links := mustLinks(t, svc, o.ID)
	if links.Debt == nil || links.Debt.ID == "t1" || !links.Debt.Amount.Equal(dec("6")) {
		t.Fatalf("new order adopted an old link: %+v", links.Debt)
	}
	list, err := svc.Transactions(ctx, "1")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	for _, tr := range list {
		if tr.ID == "t1" && tr.OrderId != nil {
			t.Fatalf("imported transaction still linked to order %s", *tr.OrderId)
		}
	}
	assertBalance(t, svc, "1", "11")
	assertLedgerConsistent(t, svc)
}

func TestAddBreadOrderSkipsIdsStillCarriedByTransactions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if err := svc.Repository().Replace(ctx, detachedOrderLedger()); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	o := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Fresh", Quantity: 2, UnitPrice: decPtr("3"), CustomerId: strPtr("1")})
	if o.ID != "2" {
		t.Fatalf("order id = %s, want 2", o.ID)
	}
	links := mustLinks(t, svc, o.ID)
	if links.Debt == nil || links.Debt.ID == "t1" {
		t.Fatalf("unexpected debt link: %+v", links.Debt)
	}

	walkIn := mustAddOrder(t, svc, models.NewBreadOrder{Name: "Walk-in", Quantity: 1, UnitPrice: decPtr("3")})
	if _, err := svc.UpdateBreadOrder(ctx, walkIn.ID, models.BreadOrderPatch{Quantity: intPtr(4)}); err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	if links := mustLinks(t, svc, walkIn.ID); links.Debt != nil || links.Payment != nil {
		t.Fatalf("order without a customer picked up links: %+v", links)
	}
	assertBalance(t, svc, "1", "11")
}

func TestUpdateBreadOrderRebooksLinkOfMissingCustomer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	at := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	customerId, orderId := "1", "1"
	snap := models.NewSnapshot()
	snap.Customers = []*models.Customer{{ID: customerId, Name: "C", CreatedAt: at}}
	snap.BreadOrders = []*models.BreadOrder{
		{ID: orderId, Name: "Morning", Quantity: 10, UnitPrice: dec("2"), TotalAmount: dec("20"), CreatedAt: at, CustomerId: &customerId, CustomerName: "C"},
	}
	snap.Transactions = []*models.Transaction{
		{ID: "stale", CustomerId: "9", Type: models.TransactionTypeDebt, Amount: dec("20"), Date: at, OrderId: &orderId},
	}
	if err := svc.Repository().Replace(ctx, snap); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, err := svc.UpdateBreadOrder(ctx, orderId, models.BreadOrderPatch{Quantity: intPtr(12)}); err != nil {
		t.Fatalf("UpdateBreadOrder: %v", err)
	}
	links := mustLinks(t, svc, orderId)
	if links.Debt == nil || links.Debt.ID == "stale" || links.Debt.CustomerId != customerId || !links.Debt.Amount.Equal(dec("24")) {
		t.Fatalf("expected a fresh debt of 24 for customer 1, got %+v", links.Debt)
	}
	assertBalance(t, svc, customerId, "24")
	assertLedgerConsistent(t, svc)
}
