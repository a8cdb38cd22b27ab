// Package sales holds quote templates and the quotes issued for events.
package sales

import (
	"time"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// QuoteStatus is the server-side state of an event quote
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
	QuoteStatusExpired  QuoteStatus = "expired"
)

// QuoteTemplate is a reusable set of products used to seed quotes
type QuoteTemplate struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	EventType   *int64              `json:"event_type"`
	Items       []QuoteTemplateItem `json:"products"`
	Terms       string              `json:"terms_and_conditions"`
	IsActive    bool                `json:"is_active"`
}

// EntityID implements shared.Entity
func (t QuoteTemplate) EntityID() int64 { return t.ID }

// QuoteTemplateItem references a product option with a default quantity
type QuoteTemplateItem struct {
	Product  int64 `json:"product"`
	Quantity int   `json:"quantity"`
}

// QuoteTemplateCreate is the payload for creating a quote template
type QuoteTemplateCreate struct {
	Name        string              `json:"name" validate:"required,max=200"`
	Description string              `json:"description,omitempty" validate:"max=2000"`
	EventType   *int64              `json:"event_type,omitempty" validate:"omitempty,gt=0"`
	Items       []QuoteTemplateItem `json:"products" validate:"dive"`
	Terms       string              `json:"terms_and_conditions,omitempty"`
	IsActive    bool                `json:"is_active"`
}

// QuoteTemplateUpdate carries only the fields being changed
type QuoteTemplateUpdate struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=2000"`
	Items       *[]QuoteTemplateItem `json:"products,omitempty"`
	Terms       *string              `json:"terms_and_conditions,omitempty"`
	IsActive    *bool                `json:"is_active,omitempty"`
}

// EventQuote is a priced offer for an event; totals come from the backend
type EventQuote struct {
	ID             int64           `json:"id"`
	Event          int64           `json:"event"`
	Template       *int64          `json:"template"`
	Number         string          `json:"quote_number"`
	Version        int             `json:"version"`
	Status         QuoteStatus     `json:"status"`
	Items          []QuoteLine     `json:"items"`
	Discount       *int64          `json:"discount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total_amount"`
	ValidUntil     *shared.Date    `json:"valid_until"`
	Notes          string          `json:"notes"`
	SentAt         *time.Time      `json:"sent_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EntityID implements shared.Entity
func (q EventQuote) EntityID() int64 { return q.ID }

// QuoteLine is one priced product on a quote
type QuoteLine struct {
	ID        int64           `json:"id"`
	Product   int64           `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// QuoteLineInput is one line of a quote create/update payload
type QuoteLineInput struct {
	Product  int64 `json:"product" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

// EventQuoteCreate is the payload for creating a quote
type EventQuoteCreate struct {
	Event      int64            `json:"event" validate:"required,gt=0"`
	Template   *int64           `json:"template,omitempty" validate:"omitempty,gt=0"`
	Items      []QuoteLineInput `json:"items" validate:"dive"`
	Discount   *int64           `json:"discount,omitempty" validate:"omitempty,gt=0"`
	ValidUntil *shared.Date     `json:"valid_until,omitempty"`
	Notes      string           `json:"notes,omitempty" validate:"max=2000"`
}

// EventQuoteUpdate carries only the fields being changed
type EventQuoteUpdate struct {
	Items      *[]QuoteLineInput            `json:"items,omitempty" validate:"omitempty,dive"`
	Discount   shared.Optional[int64]       `json:"discount,omitzero" validate:"omitempty,gt=0"`
	ValidUntil shared.Optional[shared.Date] `json:"valid_until,omitzero"`
	Notes      *string                      `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// RejectQuoteRequest records why a client turned a quote down
type RejectQuoteRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}
