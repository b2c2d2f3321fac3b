package graph

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/workflow"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the parent lookups made while rendering lists, one set per request.
type Loaders struct {
	customerLoader *dataloader.Loader[string, *models.Customer]
	supplierLoader *dataloader.Loader[string, *models.Supplier]
}

type customerReader struct {
	svc *workflow.Service
}

func (r *customerReader) getCustomers(ctx context.Context, ids []string) []*dataloader.Result[*models.Customer] {
	customers, err := r.svc.CustomersByIds(ctx, ids)
	if err != nil {
		return handleError[*models.Customer](len(ids), err)
	}
	return generateLoaderResults(customers)
}

type supplierReader struct {
	svc *workflow.Service
}

func (r *supplierReader) getSuppliers(ctx context.Context, ids []string) []*dataloader.Result[*models.Supplier] {
	suppliers, err := r.svc.SuppliersByIds(ctx, ids)
	if err != nil {
		return handleError[*models.Supplier](len(ids), err)
	}
	return generateLoaderResults(suppliers)
}

func NewLoaders(svc *workflow.Service) *Loaders {
	customerReader := &customerReader{svc: svc}
	supplierReader := &supplierReader{svc: svc}
	return &Loaders{
		customerLoader: dataloader.NewBatchedLoader(customerReader.getCustomers, dataloader.WithWait[string, *models.Customer](time.Millisecond)),
		supplierLoader: dataloader.NewBatchedLoader(supplierReader.getSuppliers, dataloader.WithWait[string, *models.Supplier](time.Millisecond)),
	}
}

func LoaderMiddleware(svc *workflow.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(svc)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders, or nil outside LoaderMiddleware.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults wraps lookups that are already in key order; missing keys stay nil.
func generateLoaderResults[T any](items []*T) []*dataloader.Result[*T] {
	results := make([]*dataloader.Result[*T], len(items))
	for i, item := range items {
		results[i] = &dataloader.Result[*T]{Data: item}
	}
	return results
}

// customerById resolves a customer reference; an empty or unknown id yields nil.
func (r *Resolver) customerById(ctx context.Context, id string) (*models.Customer, error) {
	if id == "" {
		return nil, nil
	}
	if loaders := For(ctx); loaders != nil {
		return loaders.customerLoader.Load(ctx, id)()
	}
	customers, err := r.Svc.CustomersByIds(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return customers[0], nil
}

func (r *Resolver) supplierById(ctx context.Context, id string) (*models.Supplier, error) {
	if id == "" {
		return nil, nil
	}
	if loaders := For(ctx); loaders != nil {
		return loaders.supplierLoader.Load(ctx, id)()
	}
	suppliers, err := r.Svc.SuppliersByIds(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return suppliers[0], nil
}
