// Package sales maps the backend sales app: quote templates and event quotes.
package sales

import (
	"context"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/domain/sales"
)

// Cache resource names
const (
	ResourceTemplates = "quote-templates"
	ResourceQuotes    = "quotes"
)

// API is the sales app client
type API struct {
	transport api.Transport

	Templates *api.Resource[sales.QuoteTemplate, sales.QuoteTemplateCreate, sales.QuoteTemplateUpdate]
	Quotes    *api.Resource[sales.EventQuote, sales.EventQuoteCreate, sales.EventQuoteUpdate]
}

// New creates the sales app client
func New(t api.Transport) *API {
	return &API{
		transport: t,
		Templates: api.NewResource[sales.QuoteTemplate, sales.QuoteTemplateCreate, sales.QuoteTemplateUpdate](t, ResourceTemplates, "/sales/quote-templates/"),
		Quotes:    api.NewResource[sales.EventQuote, sales.EventQuoteCreate, sales.EventQuoteUpdate](t, ResourceQuotes, "/sales/quotes/"),
	}
}

// DuplicateTemplate copies a template; the copy is returned
func (a *API) DuplicateTemplate(ctx context.Context, id int64) (*sales.QuoteTemplate, error) {
	return api.Action[sales.QuoteTemplate](ctx, a.transport, a.Templates.ActionPath(id, "duplicate"), struct{}{})
}

// SendQuote emails a quote to the client
func (a *API) SendQuote(ctx context.Context, id int64) (*sales.EventQuote, error) {
	return api.Action[sales.EventQuote](ctx, a.transport, a.Quotes.ActionPath(id, "send"), struct{}{})
}

// AcceptQuote marks a quote as accepted
func (a *API) AcceptQuote(ctx context.Context, id int64) (*sales.EventQuote, error) {
	return api.Action[sales.EventQuote](ctx, a.transport, a.Quotes.ActionPath(id, "accept"), struct{}{})
}

// RejectQuote marks a quote as rejected
func (a *API) RejectQuote(ctx context.Context, id int64, req sales.RejectQuoteRequest) (*sales.EventQuote, error) {
	return api.Action[sales.EventQuote](ctx, a.transport, a.Quotes.ActionPath(id, "reject"), req)
}

// DuplicateQuote creates a new version of a quote; the copy is returned
func (a *API) DuplicateQuote(ctx context.Context, id int64) (*sales.EventQuote, error) {
	return api.Action[sales.EventQuote](ctx, a.transport, a.Quotes.ActionPath(id, "duplicate"), struct{}{})
}
