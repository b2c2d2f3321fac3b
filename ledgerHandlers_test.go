package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/sirupsen/logrus"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo, err := store.NewMemoryStore(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := workflow.NewService(repo, workflow.WithLogger(logger))

	r := gin.New()
	newLedgerAPI(svc, logger).register(r.Group("/api"))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusForErrorKinds(t *testing.T) {
	cases := map[models.ErrorKind]int{
		models.ErrorKindNotFound:          http.StatusNotFound,
		models.ErrorKindInsufficientStock: http.StatusConflict,
		models.ErrorKindDuplicateId:       http.StatusConflict,
		models.ErrorKindValidation:        http.StatusBadRequest,
		models.ErrorKindEmptyCart:         http.StatusBadRequest,
		models.ErrorKindStoreUnavailable:  http.StatusServiceUnavailable,
		"":                                http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Fatalf("statusFor(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestSaleEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/products", `{"name":"Milk","sellingPrice":"1200","stock":1}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", w.Code, w.Body.String())
	}
	var product models.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	sale := `{"items":[{"productId":"` + product.ID + `","quantity":1}],"amountPaid":"1500"}`
	w = doJSON(t, r, http.MethodPost, "/api/sales", sale)
	if w.Code != http.StatusCreated {
		t.Fatalf("first sale: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sales", sale)
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), string(models.ErrorKindInsufficientStock)) {
		t.Fatalf("second sale: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sales", `{"items":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty cart: %d %s", w.Code, w.Body.String())
	}
}

func TestCustomerEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/customers/404", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing customer: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/customers", `{"name":"Thida","openingBalance":"25"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create customer: %d %s", w.Code, w.Body.String())
	}
	var customer models.Customer
	if err := json.Unmarshal(w.Body.Bytes(), &customer); err != nil {
		t.Fatalf("decode customer: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/api/customers", `{"id":"`+customer.ID+`","name":"Copy"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate id: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/customers/"+customer.ID+"/statement", "")
	if w.Code != http.StatusOK {
		t.Fatalf("statement: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/transactions", `{"customerId":"`+customer.ID+`","type":"payment","amount":"25"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("payment: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/api/customers/"+customer.ID, "")
	if err := json.Unmarshal(w.Body.Bytes(), &customer); err != nil {
		t.Fatalf("decode customer: %v", err)
	}
	if !customer.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", customer.Balance)
	}
}
