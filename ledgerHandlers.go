package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ledgerAPI struct {
	svc    *workflow.Service
	logger *logrus.Logger
}

func newLedgerAPI(svc *workflow.Service, logger *logrus.Logger) *ledgerAPI {
	return &ledgerAPI{svc: svc, logger: logger}
}

func (a *ledgerAPI) register(r gin.IRouter) {
	r.GET("/customers", a.listCustomers)
	r.POST("/customers", a.addCustomer)
	r.GET("/customers/:id", a.getCustomer)
	r.PATCH("/customers/:id", a.updateCustomer)
	r.DELETE("/customers/:id", a.deleteCustomer)
	r.GET("/customers/:id/statement", a.customerStatement)

	r.GET("/transactions", a.listTransactions)
	r.POST("/transactions", a.addTransaction)
	r.PATCH("/transactions/:id", a.updateTransaction)
	r.DELETE("/transactions/:id", a.deleteTransaction)

	r.GET("/orders", a.listOrders)
	r.POST("/orders", a.addOrder)
	r.GET("/orders/:id", a.getOrder)
	r.PATCH("/orders/:id", a.updateOrder)
	r.DELETE("/orders/:id", a.deleteOrder)
	r.GET("/orders/:id/transactions", a.orderTransactions)
	r.POST("/orders/reset", a.resetOrders)

	r.GET("/settings/bread-unit-price", a.getBreadUnitPrice)
	r.PUT("/settings/bread-unit-price", a.setBreadUnitPrice)

	r.GET("/products", a.listProducts)
	r.POST("/products", a.addProduct)
	r.GET("/products/low-stock", a.lowStockProducts)
	r.GET("/products/barcode/:code", a.productByBarcode)
	r.GET("/products/:id", a.getProduct)
	r.PATCH("/products/:id", a.updateProduct)
	r.DELETE("/products/:id", a.deleteProduct)
	r.POST("/products/:id/adjust-stock", a.adjustStock)

	r.GET("/sales", a.listSales)
	r.POST("/sales", a.processSale)
	r.GET("/sales/:id", a.getSale)
	r.POST("/sales/:id/void", a.voidSale)

	r.GET("/suppliers", a.listSuppliers)
	r.POST("/suppliers", a.addSupplier)
	r.GET("/suppliers/:id", a.getSupplier)
	r.PATCH("/suppliers/:id", a.updateSupplier)
	r.DELETE("/suppliers/:id", a.deleteSupplier)
	r.GET("/supplier-transactions", a.listSupplierTransactions)
	r.POST("/supplier-transactions", a.addSupplierTransaction)
	r.PATCH("/supplier-transactions/:id", a.updateSupplierTransaction)
	r.DELETE("/supplier-transactions/:id", a.deleteSupplierTransaction)
	r.POST("/purchase-invoices", a.recordPurchaseInvoice)

	r.POST("/reconcile", a.reconcile)
	r.GET("/reconcile/balances", a.checkBalances)
	r.POST("/maintenance/purge-orphans", a.purgeOrphans)

	r.POST("/import", a.importUpload)
	r.GET("/export/backup", a.exportBackup)
	r.POST("/import/backup", a.importBackup)
	r.GET("/export/balances.xlsx", a.exportBalances)
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	case models.ErrorKindInsufficientStock, models.ErrorKindDuplicateId:
		return http.StatusConflict
	case models.ErrorKindValidation, models.ErrorKindEmptyCart:
		return http.StatusBadRequest
	case models.ErrorKindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *ledgerAPI) fail(c *gin.Context, funcName string, err error) {
	kind := models.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		config.LogError(a.logger, "ledgerHandlers.go", funcName, c.Request.Method+" "+c.FullPath(), c.Param("id"), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// bind decodes the JSON body into v, answering 400 itself when it cannot.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error(), "kind": models.ErrorKindValidation})
		return false
	}
	return true
}

func (a *ledgerAPI) reply(c *gin.Context, funcName string, status int, body any, err error) {
	if err != nil {
		a.fail(c, funcName, err)
		return
	}
	if body == nil {
		c.Status(status)
		return
	}
	c.JSON(status, body)
}

func (a *ledgerAPI) listCustomers(c *gin.Context) {
	list, err := a.svc.Customers(c.Request.Context())
	a.reply(c, "listCustomers", http.StatusOK, list, err)
}

func (a *ledgerAPI) addCustomer(c *gin.Context) {
	var in models.NewCustomer
	if !bind(c, &in) {
		return
	}
	created, err := a.svc.AddCustomer(c.Request.Context(), in)
	a.reply(c, "addCustomer", http.StatusCreated, created, err)
}

func (a *ledgerAPI) getCustomer(c *gin.Context) {
	customer, err := a.svc.Customer(c.Request.Context(), c.Param("id"))
	a.reply(c, "getCustomer", http.StatusOK, customer, err)
}

func (a *ledgerAPI) updateCustomer(c *gin.Context) {
	var patch models.CustomerPatch
	if !bind(c, &patch) {
		return
	}
	updated, err := a.svc.UpdateCustomer(c.Request.Context(), c.Param("id"), patch)
	a.reply(c, "updateCustomer", http.StatusOK, updated, err)
}

func (a *ledgerAPI) deleteCustomer(c *gin.Context) {
	err := a.svc.DeleteCustomer(c.Request.Context(), c.Param("id"))
	a.reply(c, "deleteCustomer", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) customerStatement(c *gin.Context) {
	statement, err := a.svc.CustomerStatement(c.Request.Context(), c.Param("id"))
	a.reply(c, "customerStatement", http.StatusOK, statement, err)
}

func (a *ledgerAPI) listTransactions(c *gin.Context) {
	list, err := a.svc.Transactions(c.Request.Context(), c.Query("customerId"))
	a.reply(c, "listTransactions", http.StatusOK, list, err)
}

func (a *ledgerAPI) addTransaction(c *gin.Context) {
	var in models.NewTransaction
	if !bind(c, &in) {
		return
	}
	created, err := a.svc.AddTransaction(c.Request.Context(), in)
	a.reply(c, "addTransaction", http.StatusCreated, created, err)
}

func (a *ledgerAPI) updateTransaction(c *gin.Context) {
	var patch models.TransactionPatch
	if !bind(c, &patch) {
		return
	}
	updated, err := a.svc.UpdateTransaction(c.Request.Context(), c.Param("id"), patch)
	a.reply(c, "updateTransaction", http.StatusOK, updated, err)
}

func (a *ledgerAPI) deleteTransaction(c *gin.Context) {
	err := a.svc.DeleteTransaction(c.Request.Context(), c.Param("id"))
	a.reply(c, "deleteTransaction", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) listOrders(c *gin.Context) {
	list, err := a.svc.BreadOrders(c.Request.Context())
	a.reply(c, "listOrders", http.StatusOK, list, err)
}

func (a *ledgerAPI) addOrder(c *gin.Context) {
	var in models.NewBreadOrder
	if !bind(c, &in) {
		return
	}
	created, err := a.svc.AddBreadOrder(c.Request.Context(), in)
	a.reply(c, "addOrder", http.StatusCreated, created, err)
}

func (a *ledgerAPI) getOrder(c *gin.Context) {
	order, err := a.svc.BreadOrder(c.Request.Context(), c.Param("id"))
	a.reply(c, "getOrder", http.StatusOK, order, err)
}

func (a *ledgerAPI) updateOrder(c *gin.Context) {
	var patch models.BreadOrderPatch
	if !bind(c, &patch) {
		return
	}
	updated, err := a.svc.UpdateBreadOrder(c.Request.Context(), c.Param("id"), patch)
	a.reply(c, "updateOrder", http.StatusOK, updated, err)
}

func (a *ledgerAPI) deleteOrder(c *gin.Context) {
	err := a.svc.DeleteBreadOrder(c.Request.Context(), c.Param("id"))
	a.reply(c, "deleteOrder", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) orderTransactions(c *gin.Context) {
	links, err := a.svc.OrderTransactions(c.Request.Context(), c.Param("id"))
	a.reply(c, "orderTransactions", http.StatusOK, links, err)
}

func (a *ledgerAPI) resetOrders(c *gin.Context) {
	removed, err := a.svc.ResetBreadOrders(c.Request.Context())
	a.reply(c, "resetOrders", http.StatusOK, gin.H{"removedOrderIds": removed}, err)
}

type breadUnitPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (a *ledgerAPI) getBreadUnitPrice(c *gin.Context) {
	price, ok, err := a.svc.BreadUnitPrice(c.Request.Context())
	if err != nil {
		a.fail(c, "getBreadUnitPrice", err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"price": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": price})
}

func (a *ledgerAPI) setBreadUnitPrice(c *gin.Context) {
	var req breadUnitPriceRequest
	if !bind(c, &req) {
		return
	}
	err := a.svc.SetBreadUnitPrice(c.Request.Context(), req.Price)
	a.reply(c, "setBreadUnitPrice", http.StatusOK, gin.H{"price": req.Price}, err)
}

func (a *ledgerAPI) listProducts(c *gin.Context) {
	list, err := a.svc.Products(c.Request.Context())
	a.reply(c, "listProducts", http.StatusOK, list, err)
}

func (a *ledgerAPI) addProduct(c *gin.Context) {
	var in models.NewProduct
	if !bind(c, &in) {
		return
	}
	created, err := a.svc.AddProduct(c.Request.Context(), in)
	a.reply(c, "addProduct", http.StatusCreated, created, err)
}

func (a *ledgerAPI) lowStockProducts(c *gin.Context) {
	list, err := a.svc.LowStockProducts(c.Request.Context())
	a.reply(c, "lowStockProducts", http.StatusOK, list, err)
}

func (a *ledgerAPI) productByBarcode(c *gin.Context) {
	product, err := a.svc.FindProductByBarcode(c.Request.Context(), c.Param("code"))
	a.reply(c, "productByBarcode", http.StatusOK, product, err)
}

func (a *ledgerAPI) getProduct(c *gin.Context) {
	product, err := a.svc.Product(c.Request.Context(), c.Param("id"))
	a.reply(c, "getProduct", http.StatusOK, product, err)
}

func (a *ledgerAPI) updateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if !bind(c, &patch) {
		return
	}
	updated, err := a.svc.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	a.reply(c, "updateProduct", http.StatusOK, updated, err)
}

func (a *ledgerAPI) deleteProduct(c *gin.Context) {
	err := a.svc.DeleteProduct(c.Request.Context(), c.Param("id"))
	a.reply(c, "deleteProduct", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) adjustStock(c *gin.Context) {
	var in models.StockAdjustment
	if !bind(c, &in) {
		return
	}
	in.ProductId = c.Param("id")
	adjusted, err := a.svc.AdjustStock(c.Request.Context(), in)
	a.reply(c, "adjustStock", http.StatusOK, adjusted, err)
}

func (a *ledgerAPI) listSales(c *gin.Context) {
	list, err := a.svc.Sales(c.Request.Context())
	a.reply(c, "listSales", http.StatusOK, list, err)
}

func (a *ledgerAPI) processSale(c *gin.Context) {
	var in models.NewSale
	if !bind(c, &in) {
		return
	}
	result, err := a.svc.ProcessSale(c.Request.Context(), in)
	a.reply(c, "processSale", http.StatusCreated, result, err)
}

func (a *ledgerAPI) getSale(c *gin.Context) {
	sale, err := a.svc.Sale(c.Request.Context(), c.Param("id"))
	a.reply(c, "getSale", http.StatusOK, sale, err)
}

func (a *ledgerAPI) voidSale(c *gin.Context) {
	err := a.svc.VoidSale(c.Request.Context(), c.Param("id"))
	a.reply(c, "voidSale", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) listSuppliers(c *gin.Context) {
	list, err := a.svc.Suppliers(c.Request.Context())
	a.reply(c, "listSuppliers", http.StatusOK, list, err)
}

func (a *ledgerAPI) addSupplier(c *gin.Context) {
	var in models.NewSupplier
	if !bind(c, &in) {
		return
	}
	created, err := a.svc.AddSupplier(c.Request.Context(), in)
	a.reply(c, "addSupplier", http.StatusCreated, created, err)
}

func (a *ledgerAPI) getSupplier(c *gin.Context) {
	supplier, err := a.svc.Supplier(c.Request.Context(), c.Param("id"))
	a.reply(c, "getSupplier", http.StatusOK, supplier, err)
}

func (a *ledgerAPI) updateSupplier(c *gin.Context) {
	var patch models.SupplierPatch
	if !bind(c, &patch) {
		return
	}
	updated, err := a.svc.UpdateSupplier(c.Request.Context(), c.Param("id"), patch)
	a.reply(c, "updateSupplier", http.StatusOK, updated, err)
}

func (a *ledgerAPI) deleteSupplier(c *gin.Context) {
	err := a.svc.DeleteSupplier(c.Request.Context(), c.Param("id"))
	a.reply(c, "deleteSupplier", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) listSupplierTransactions(c *gin.Context) {
	list, err := a.svc.SupplierTransactions(c.Request.Context(), c.Query("supplierId"))
	a.reply(c, "listSupplierTransactions", http.StatusOK, list, err)
}

func (a *ledgerAPI) addSupplierTransaction(c *gin.Context) {
	var in models.NewSupplierTransaction
	if !bind(c, &in) {
		return
	}
	created, err := a.svc.AddSupplierTransaction(c.Request.Context(), in)
	a.reply(c, "addSupplierTransaction", http.StatusCreated, created, err)
}

func (a *ledgerAPI) updateSupplierTransaction(c *gin.Context) {
	var patch models.SupplierTransactionPatch
	if !bind(c, &patch) {
		return
	}
	updated, err := a.svc.UpdateSupplierTransaction(c.Request.Context(), c.Param("id"), patch)
	a.reply(c, "updateSupplierTransaction", http.StatusOK, updated, err)
}

func (a *ledgerAPI) deleteSupplierTransaction(c *gin.Context) {
	err := a.svc.DeleteSupplierTransaction(c.Request.Context(), c.Param("id"))
	a.reply(c, "deleteSupplierTransaction", http.StatusNoContent, nil, err)
}

func (a *ledgerAPI) recordPurchaseInvoice(c *gin.Context) {
	var in models.NewPurchaseInvoice
	if !bind(c, &in) {
		return
	}
	recorded, err := a.svc.RecordPurchaseInvoice(c.Request.Context(), in)
	a.reply(c, "recordPurchaseInvoice", http.StatusCreated, recorded, err)
}

func (a *ledgerAPI) reconcile(c *gin.Context) {
	result, err := a.svc.Reconcile(c.Request.Context())
	a.reply(c, "reconcile", http.StatusOK, result, err)
}

func (a *ledgerAPI) checkBalances(c *gin.Context) {
	drifts, err := a.svc.CheckBalances(c.Request.Context())
	a.reply(c, "checkBalances", http.StatusOK, gin.H{
		"drifts": drifts,
		"count":  len(drifts),
	}, err)
}

func (a *ledgerAPI) purgeOrphans(c *gin.Context) {
	purged, err := a.svc.PurgeOrphans(c.Request.Context())
	a.reply(c, "purgeOrphans", http.StatusOK, gin.H{"purgedTransactionIds": purged}, err)
}
