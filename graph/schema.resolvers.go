package graph

import (
	"context"
	"strings"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/shopspring/decimal"
)

type orderTransactions struct {
	Debt    *models.Transaction `json:"debt"`
	Payment *models.Transaction `json:"payment"`
}

type columnMapping struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func (r *queryResolver) Customers(ctx context.Context) ([]*models.Customer, error) {
	return r.Svc.Customers(ctx)
}

func (r *queryResolver) Customer(ctx context.Context, id string) (*models.Customer, error) {
	return r.Svc.Customer(ctx, id)
}

func (r *queryResolver) CustomerStatement(ctx context.Context, id string) (*models.CustomerStatement, error) {
	return r.Svc.CustomerStatement(ctx, id)
}

func (r *queryResolver) Transactions(ctx context.Context, customerId string) ([]*models.Transaction, error) {
	return r.Svc.Transactions(ctx, customerId)
}

func (r *queryResolver) BreadOrders(ctx context.Context) ([]*models.BreadOrder, error) {
	return r.Svc.BreadOrders(ctx)
}

func (r *queryResolver) BreadOrder(ctx context.Context, id string) (*models.BreadOrder, error) {
	return r.Svc.BreadOrder(ctx, id)
}

// BreadUnitPrice is null until a price has been set.
func (r *queryResolver) BreadUnitPrice(ctx context.Context) (*decimal.Decimal, error) {
	price, ok, err := r.Svc.BreadUnitPrice(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &price, nil
}

func (r *queryResolver) Products(ctx context.Context) ([]*models.Product, error) {
	return r.Svc.Products(ctx)
}

func (r *queryResolver) Product(ctx context.Context, id string) (*models.Product, error) {
	return r.Svc.Product(ctx, id)
}

func (r *queryResolver) ProductByBarcode(ctx context.Context, code string) (*models.Product, error) {
	return r.Svc.FindProductByBarcode(ctx, code)
}

func (r *queryResolver) LowStockProducts(ctx context.Context) ([]*models.Product, error) {
	return r.Svc.LowStockProducts(ctx)
}

func (r *queryResolver) Sales(ctx context.Context) ([]*models.Sale, error) {
	return r.Svc.Sales(ctx)
}

func (r *queryResolver) Sale(ctx context.Context, id string) (*models.Sale, error) {
	return r.Svc.Sale(ctx, id)
}

func (r *queryResolver) Suppliers(ctx context.Context) ([]*models.Supplier, error) {
	return r.Svc.Suppliers(ctx)
}

func (r *queryResolver) Supplier(ctx context.Context, id string) (*models.Supplier, error) {
	return r.Svc.Supplier(ctx, id)
}

func (r *queryResolver) SupplierTransactions(ctx context.Context, supplierId string) ([]*models.SupplierTransaction, error) {
	return r.Svc.SupplierTransactions(ctx, supplierId)
}

func (r *queryResolver) BalanceDrifts(ctx context.Context) ([]workflow.BalanceDrift, error) {
	return r.Svc.CheckBalances(ctx)
}

func (r *mutationResolver) AddCustomer(ctx context.Context, input any) (*models.Customer, error) {
	var in models.NewCustomer
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AddCustomer(ctx, in)
}

func (r *mutationResolver) UpdateCustomer(ctx context.Context, id string, input any) (*models.Customer, error) {
	var patch models.CustomerPatch
	if err := bind(input, &patch); err != nil {
		return nil, err
	}
	return r.Svc.UpdateCustomer(ctx, id, patch)
}

func (r *mutationResolver) AddTransaction(ctx context.Context, input any) (*models.Transaction, error) {
	var in models.NewTransaction
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AddTransaction(ctx, in)
}

func (r *mutationResolver) UpdateTransaction(ctx context.Context, id string, input any) (*models.Transaction, error) {
	var patch models.TransactionPatch
	if err := bind(input, &patch); err != nil {
		return nil, err
	}
	return r.Svc.UpdateTransaction(ctx, id, patch)
}

func (r *mutationResolver) AddBreadOrder(ctx context.Context, input any) (*models.BreadOrder, error) {
	var in models.NewBreadOrder
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AddBreadOrder(ctx, in)
}

func (r *mutationResolver) UpdateBreadOrder(ctx context.Context, id string, input any) (*models.BreadOrder, error) {
	var patch models.BreadOrderPatch
	if err := bind(input, &patch); err != nil {
		return nil, err
	}
	return r.Svc.UpdateBreadOrder(ctx, id, patch)
}

func (r *mutationResolver) SetBreadUnitPrice(ctx context.Context, raw string) (*decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, models.Validation("invalid price %q", raw)
	}
	if err := r.Svc.SetBreadUnitPrice(ctx, price); err != nil {
		return nil, err
	}
	return &price, nil
}

func (r *mutationResolver) AddProduct(ctx context.Context, input any) (*models.Product, error) {
	var in models.NewProduct
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AddProduct(ctx, in)
}

func (r *mutationResolver) UpdateProduct(ctx context.Context, id string, input any) (*models.Product, error) {
	var patch models.ProductPatch
	if err := bind(input, &patch); err != nil {
		return nil, err
	}
	return r.Svc.UpdateProduct(ctx, id, patch)
}

func (r *mutationResolver) AdjustStock(ctx context.Context, input any) (*models.Product, error) {
	var in models.StockAdjustment
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AdjustStock(ctx, in)
}

func (r *mutationResolver) ProcessSale(ctx context.Context, input any) (*models.SaleResult, error) {
	var in models.NewSale
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.ProcessSale(ctx, in)
}

func (r *mutationResolver) AddSupplier(ctx context.Context, input any) (*models.Supplier, error) {
	var in models.NewSupplier
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AddSupplier(ctx, in)
}

func (r *mutationResolver) UpdateSupplier(ctx context.Context, id string, input any) (*models.Supplier, error) {
	var patch models.SupplierPatch
	if err := bind(input, &patch); err != nil {
		return nil, err
	}
	return r.Svc.UpdateSupplier(ctx, id, patch)
}

func (r *mutationResolver) AddSupplierTransaction(ctx context.Context, input any) (*models.SupplierTransaction, error) {
	var in models.NewSupplierTransaction
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.AddSupplierTransaction(ctx, in)
}

func (r *mutationResolver) UpdateSupplierTransaction(ctx context.Context, id string, input any) (*models.SupplierTransaction, error) {
	var patch models.SupplierTransactionPatch
	if err := bind(input, &patch); err != nil {
		return nil, err
	}
	return r.Svc.UpdateSupplierTransaction(ctx, id, patch)
}

func (r *mutationResolver) RecordPurchaseInvoice(ctx context.Context, input any) ([]*models.SupplierTransaction, error) {
	var in models.NewPurchaseInvoice
	if err := bind(input, &in); err != nil {
		return nil, err
	}
	return r.Svc.RecordPurchaseInvoice(ctx, in)
}

// ImportRows runs the spreadsheet import on rows sent inline: the first row of the table
// holds the headers.
func (r *mutationResolver) ImportRows(ctx context.Context, kindName string, rawTable any, rawMapping any) (*workflow.ImportResult, error) {
	kind, err := workflow.ParseImportKind(kindName)
	if err != nil {
		return nil, err
	}
	var table [][]string
	if err := bind(rawTable, &table); err != nil {
		return nil, err
	}
	rows, headers := workflow.RowsFromTable(table)
	mapping := map[string]string{}
	if rawMapping != nil {
		var columns []columnMapping
		if err := bind(rawMapping, &columns); err != nil {
			return nil, err
		}
		for _, c := range columns {
			mapping[strings.TrimSpace(c.Header)] = c.Field
		}
	} else {
		for _, h := range headers {
			mapping[h] = h
		}
	}
	return r.Svc.ImportRows(ctx, kind, rows, mapping)
}

func (r *Resolver) queryFields() map[string]fieldFunc {
	q := &queryResolver{r}
	return map[string]fieldFunc{
		"customers": func(ctx context.Context, _ map[string]any) (any, error) { return q.Customers(ctx) },
		"customer": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Customer(ctx, stringArg(args, "id"))
		},
		"customerStatement": func(ctx context.Context, args map[string]any) (any, error) {
			return q.CustomerStatement(ctx, stringArg(args, "id"))
		},
		"transactions": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Transactions(ctx, stringArg(args, "customerId"))
		},
		"breadOrders": func(ctx context.Context, _ map[string]any) (any, error) { return q.BreadOrders(ctx) },
		"breadOrder": func(ctx context.Context, args map[string]any) (any, error) {
			return q.BreadOrder(ctx, stringArg(args, "id"))
		},
		"breadUnitPrice": func(ctx context.Context, _ map[string]any) (any, error) { return q.BreadUnitPrice(ctx) },
		"products":       func(ctx context.Context, _ map[string]any) (any, error) { return q.Products(ctx) },
		"product": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Product(ctx, stringArg(args, "id"))
		},
		"productByBarcode": func(ctx context.Context, args map[string]any) (any, error) {
			return q.ProductByBarcode(ctx, stringArg(args, "code"))
		},
		"lowStockProducts": func(ctx context.Context, _ map[string]any) (any, error) { return q.LowStockProducts(ctx) },
		"sales":            func(ctx context.Context, _ map[string]any) (any, error) { return q.Sales(ctx) },
		"sale": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Sale(ctx, stringArg(args, "id"))
		},
		"suppliers": func(ctx context.Context, _ map[string]any) (any, error) { return q.Suppliers(ctx) },
		"supplier": func(ctx context.Context, args map[string]any) (any, error) {
			return q.Supplier(ctx, stringArg(args, "id"))
		},
		"supplierTransactions": func(ctx context.Context, args map[string]any) (any, error) {
			return q.SupplierTransactions(ctx, stringArg(args, "supplierId"))
		},
		"balanceDrifts": func(ctx context.Context, _ map[string]any) (any, error) { return q.BalanceDrifts(ctx) },
	}
}

// deleted turns a delete call into a field that answers with the removed id.
func deleted(del func(context.Context, string) error) fieldFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		id := stringArg(args, "id")
		if err := del(ctx, id); err != nil {
			return nil, err
		}
		return id, nil
	}
}

func (r *Resolver) mutationFields() map[string]fieldFunc {
	m := &mutationResolver{r}
	return map[string]fieldFunc{
		"addCustomer": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AddCustomer(ctx, args["input"])
		},
		"updateCustomer": func(ctx context.Context, args map[string]any) (any, error) {
			return m.UpdateCustomer(ctx, stringArg(args, "id"), args["input"])
		},
		"deleteCustomer": deleted(r.Svc.DeleteCustomer),
		"addTransaction": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AddTransaction(ctx, args["input"])
		},
		"updateTransaction": func(ctx context.Context, args map[string]any) (any, error) {
			return m.UpdateTransaction(ctx, stringArg(args, "id"), args["input"])
		},
		"deleteTransaction": deleted(r.Svc.DeleteTransaction),
		"purgeOrphanTransactions": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Svc.PurgeOrphans(ctx)
		},
		"addBreadOrder": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AddBreadOrder(ctx, args["input"])
		},
		"updateBreadOrder": func(ctx context.Context, args map[string]any) (any, error) {
			return m.UpdateBreadOrder(ctx, stringArg(args, "id"), args["input"])
		},
		"deleteBreadOrder": deleted(r.Svc.DeleteBreadOrder),
		"resetBreadOrders": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Svc.ResetBreadOrders(ctx)
		},
		"setBreadUnitPrice": func(ctx context.Context, args map[string]any) (any, error) {
			return m.SetBreadUnitPrice(ctx, stringArg(args, "price"))
		},
		"addProduct": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AddProduct(ctx, args["input"])
		},
		"updateProduct": func(ctx context.Context, args map[string]any) (any, error) {
			return m.UpdateProduct(ctx, stringArg(args, "id"), args["input"])
		},
		"deleteProduct": deleted(r.Svc.DeleteProduct),
		"archiveProduct": func(ctx context.Context, args map[string]any) (any, error) {
			archived, _ := args["archived"].(bool)
			return r.Svc.ArchiveProduct(ctx, stringArg(args, "id"), archived)
		},
		"adjustStock": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AdjustStock(ctx, args["input"])
		},
		"processSale": func(ctx context.Context, args map[string]any) (any, error) {
			return m.ProcessSale(ctx, args["input"])
		},
		"voidSale": deleted(r.Svc.VoidSale),
		"addSupplier": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AddSupplier(ctx, args["input"])
		},
		"updateSupplier": func(ctx context.Context, args map[string]any) (any, error) {
			return m.UpdateSupplier(ctx, stringArg(args, "id"), args["input"])
		},
		"deleteSupplier": deleted(r.Svc.DeleteSupplier),
		"addSupplierTransaction": func(ctx context.Context, args map[string]any) (any, error) {
			return m.AddSupplierTransaction(ctx, args["input"])
		},
		"updateSupplierTransaction": func(ctx context.Context, args map[string]any) (any, error) {
			return m.UpdateSupplierTransaction(ctx, stringArg(args, "id"), args["input"])
		},
		"deleteSupplierTransaction": deleted(r.Svc.DeleteSupplierTransaction),
		"recordPurchaseInvoice": func(ctx context.Context, args map[string]any) (any, error) {
			return m.RecordPurchaseInvoice(ctx, args["input"])
		},
		"reconcile": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Svc.Reconcile(ctx)
		},
		"importRows": func(ctx context.Context, args map[string]any) (any, error) {
			return m.ImportRows(ctx, stringArg(args, "kind"), args["table"], args["mapping"])
		},
	}
}

func (r *Resolver) objectFields() map[string]map[string]objectFieldFunc {
	customer := func(ctx context.Context, obj map[string]any) (any, error) {
		return r.customerById(ctx, stringArg(obj, "customerId"))
	}
	supplier := func(ctx context.Context, obj map[string]any) (any, error) {
		return r.supplierById(ctx, stringArg(obj, "supplierId"))
	}
	return map[string]map[string]objectFieldFunc{
		"Customer": {
			"transactions": func(ctx context.Context, obj map[string]any) (any, error) {
				return r.Svc.Transactions(ctx, stringArg(obj, "id"))
			},
		},
		"Transaction": {"customer": customer},
		"Sale":        {"customer": customer},
		"BreadOrder": {
			"customer": customer,
			"transactions": func(ctx context.Context, obj map[string]any) (any, error) {
				links, err := r.Svc.OrderTransactions(ctx, stringArg(obj, "id"))
				if err != nil {
					return nil, err
				}
				return orderTransactions{Debt: links.Debt, Payment: links.Payment}, nil
			},
		},
		"Product": {"supplier": supplier},
		"Supplier": {
			"transactions": func(ctx context.Context, obj map[string]any) (any, error) {
				return r.Svc.SupplierTransactions(ctx, stringArg(obj, "id"))
			},
		},
		"SupplierTransaction": {"supplier": supplier},
	}
}
