// Package products maps the backend products app: product options and discounts.
package products

import (
	"context"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/domain/catalog"
)

// Cache resource names
const (
	ResourceOptions   = "product-options"
	ResourceDiscounts = "discounts"
)

// API is the products app client
type API struct {
	transport api.Transport

	Options   *api.Resource[catalog.ProductOption, catalog.ProductOptionCreate, catalog.ProductOptionUpdate]
	Discounts *api.Resource[catalog.Discount, catalog.DiscountCreate, catalog.DiscountUpdate]
}

// New creates the products app client
func New(t api.Transport) *API {
	return &API{
		transport: t,
		Options:   api.NewResource[catalog.ProductOption, catalog.ProductOptionCreate, catalog.ProductOptionUpdate](t, ResourceOptions, "/products/options/"),
		Discounts: api.NewResource[catalog.Discount, catalog.DiscountCreate, catalog.DiscountUpdate](t, ResourceDiscounts, "/products/discounts/"),
	}
}

// IncrementDiscountUsage records one redemption of a discount code
func (a *API) IncrementDiscountUsage(ctx context.Context, id int64) (*catalog.Discount, error) {
	return api.Action[catalog.Discount](ctx, a.transport, a.Discounts.ActionPath(id, "increment_usage"), struct{}{})
}
