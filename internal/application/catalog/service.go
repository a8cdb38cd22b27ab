// Package catalog synchronizes product options and discounts with the query cache.
package catalog

import (
	"context"

	"github.com/erp/crm/internal/api/products"
	"github.com/erp/crm/internal/api/sales"
	"github.com/erp/crm/internal/application/crud"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/catalog"
	"github.com/erp/crm/internal/infrastructure/cache"
)

// Service is the catalog data-synchronization layer
type Service struct {
	api *products.API

	Options   *crud.Collection[catalog.ProductOption, catalog.ProductOptionCreate, catalog.ProductOptionUpdate]
	Discounts *crud.Collection[catalog.Discount, catalog.DiscountCreate, catalog.DiscountUpdate]
}

// NewService wires the products app client to the runner's cache
func NewService(a *products.API, runner *optimistic.Runner) *Service {
	s := &Service{
		api:       a,
		Options:   crud.New(a.Options, runner, "Product option"),
		Discounts: crud.New(a.Discounts, runner, "Discount"),
	}
	return s
}

// Quotes and templates embed option prices and discount amounts, whichever
// record changed.
var (
	optionDependents   = []cache.Key{cache.AllLists(sales.ResourceTemplates), cache.ResourceKey(sales.ResourceQuotes)}
	discountDependents = []cache.Key{cache.ResourceKey(sales.ResourceQuotes)}
)

// CreateOption adds a product option
func (s *Service) CreateOption(ctx context.Context, in catalog.ProductOptionCreate) (*catalog.ProductOption, error) {
	return s.Options.Create(ctx, in, optionDependents...)
}

// UpdateOption patches a product option
func (s *Service) UpdateOption(ctx context.Context, id int64, in catalog.ProductOptionUpdate) (*catalog.ProductOption, error) {
	return s.Options.Update(ctx, id, in, optionDependents...)
}

// DeleteOption removes a product option
func (s *Service) DeleteOption(ctx context.Context, id int64) error {
	return s.Options.Delete(ctx, id, optionDependents...)
}

// CreateDiscount adds a discount code
func (s *Service) CreateDiscount(ctx context.Context, in catalog.DiscountCreate) (*catalog.Discount, error) {
	return s.Discounts.Create(ctx, in, discountDependents...)
}

// UpdateDiscount patches a discount
func (s *Service) UpdateDiscount(ctx context.Context, id int64, in catalog.DiscountUpdate) (*catalog.Discount, error) {
	return s.Discounts.Update(ctx, id, in, discountDependents...)
}

// DeleteDiscount removes a discount
func (s *Service) DeleteDiscount(ctx context.Context, id int64) error {
	return s.Discounts.Delete(ctx, id, discountDependents...)
}

// IncrementDiscountUsage records one redemption. The server decides whether
// the code is still usable, so nothing is applied optimistically.
func (s *Service) IncrementDiscountUsage(ctx context.Context, id int64) (*catalog.Discount, error) {
	return s.Discounts.Run(ctx, id, crud.Action[catalog.Discount]{
		Verb: "increment_usage",
		Call: func(ctx context.Context) (*catalog.Discount, error) {
			return s.api.IncrementDiscountUsage(ctx, id)
		},
		Related:        discountDependents,
		FailureMessage: "Failed to apply discount",
	})
}
