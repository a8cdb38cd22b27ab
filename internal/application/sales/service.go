// Package sales synchronizes quote templates and event quotes with the query cache.
package sales

import (
	"context"

	salesapi "github.com/erp/crm/internal/api/sales"
	"github.com/erp/crm/internal/application/crud"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/sales"
	"github.com/erp/crm/internal/infrastructure/cache"
)

// ResourceEvents is the cache resource of event records; an event shows the
// status and total of its current quote.
const ResourceEvents = "events"

// Service is the sales data-synchronization layer
type Service struct {
	api *salesapi.API

	Templates *crud.Collection[sales.QuoteTemplate, sales.QuoteTemplateCreate, sales.QuoteTemplateUpdate]
	Quotes    *crud.Collection[sales.EventQuote, sales.EventQuoteCreate, sales.EventQuoteUpdate]
}

// NewService wires the sales app client to the runner's cache
func NewService(a *salesapi.API, runner *optimistic.Runner) *Service {
	s := &Service{
		api:       a,
		Templates: crud.New(a.Templates, runner, "Quote template"),
		Quotes:    crud.New(a.Quotes, runner, "Quote"),
	}
	s.Quotes.Related = func(q *sales.EventQuote) []cache.Key {
		return []cache.Key{cache.DetailKey(ResourceEvents, q.Event)}
	}
	return s
}

// CreateTemplate adds a quote template
func (s *Service) CreateTemplate(ctx context.Context, in sales.QuoteTemplateCreate) (*sales.QuoteTemplate, error) {
	return s.Templates.Create(ctx, in)
}

// UpdateTemplate patches a quote template
func (s *Service) UpdateTemplate(ctx context.Context, id int64, in sales.QuoteTemplateUpdate) (*sales.QuoteTemplate, error) {
	return s.Templates.Update(ctx, id, in)
}

// DeleteTemplate removes a quote template
func (s *Service) DeleteTemplate(ctx context.Context, id int64) error {
	return s.Templates.Delete(ctx, id)
}

// DuplicateTemplate copies a template. The copy only exists once the server
// answers, so template lists are invalidated rather than patched.
func (s *Service) DuplicateTemplate(ctx context.Context, id int64) (*sales.QuoteTemplate, error) {
	return s.Templates.Run(ctx, id, crud.Action[sales.QuoteTemplate]{
		Verb: "duplicate",
		Call: func(ctx context.Context) (*sales.QuoteTemplate, error) {
			return s.api.DuplicateTemplate(ctx, id)
		},
		SuccessMessage: "Template duplicated successfully",
	})
}

// CreateQuote drafts a quote for an event
func (s *Service) CreateQuote(ctx context.Context, in sales.EventQuoteCreate) (*sales.EventQuote, error) {
	return s.Quotes.Create(ctx, in, cache.DetailKey(ResourceEvents, in.Event))
}

// UpdateQuote patches a draft quote. Line totals are recomputed by the
// server, so only the fields sent are merged optimistically.
func (s *Service) UpdateQuote(ctx context.Context, id int64, in sales.EventQuoteUpdate) (*sales.EventQuote, error) {
	return s.Quotes.Update(ctx, id, in)
}

// DeleteQuote removes a quote
func (s *Service) DeleteQuote(ctx context.Context, id int64) error {
	return s.Quotes.Delete(ctx, id, cache.ResourceKey(ResourceEvents))
}

// SendQuote emails a quote to the client
func (s *Service) SendQuote(ctx context.Context, id int64) (*sales.EventQuote, error) {
	return s.transition(ctx, id, "send", sales.QuoteStatusSent, "Quote sent successfully",
		func(ctx context.Context) (*sales.EventQuote, error) { return s.api.SendQuote(ctx, id) })
}

// AcceptQuote records the client's acceptance
func (s *Service) AcceptQuote(ctx context.Context, id int64) (*sales.EventQuote, error) {
	return s.transition(ctx, id, "accept", sales.QuoteStatusAccepted, "Quote accepted",
		func(ctx context.Context) (*sales.EventQuote, error) { return s.api.AcceptQuote(ctx, id) })
}

// RejectQuote records the client's rejection
func (s *Service) RejectQuote(ctx context.Context, id int64, req sales.RejectQuoteRequest) (*sales.EventQuote, error) {
	return s.Quotes.Run(ctx, id, crud.Action[sales.EventQuote]{
		Verb:       "reject",
		Payload:    req,
		Optimistic: crud.Status[sales.QuoteStatus]{Status: sales.QuoteStatusRejected},
		Call: func(ctx context.Context) (*sales.EventQuote, error) {
			return s.api.RejectQuote(ctx, id, req)
		},
		SuccessMessage: "Quote rejected",
	})
}

// DuplicateQuote creates a new version of a quote
func (s *Service) DuplicateQuote(ctx context.Context, id int64) (*sales.EventQuote, error) {
	return s.Quotes.Run(ctx, id, crud.Action[sales.EventQuote]{
		Verb: "duplicate",
		Call: func(ctx context.Context) (*sales.EventQuote, error) {
			return s.api.DuplicateQuote(ctx, id)
		},
		SuccessMessage: "Quote duplicated successfully",
	})
}

func (s *Service) transition(ctx context.Context, id int64, verb string, status sales.QuoteStatus, success string,
	call func(ctx context.Context) (*sales.EventQuote, error)) (*sales.EventQuote, error) {
	return s.Quotes.Run(ctx, id, crud.Action[sales.EventQuote]{
		Verb:           verb,
		Optimistic:     crud.Status[sales.QuoteStatus]{Status: status},
		Call:           call,
		SuccessMessage: success,
	})
}
