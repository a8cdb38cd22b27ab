package finance

import (
	"time"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the server-side state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusIssued  InvoiceStatus = "issued"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Invoice totals are always computed by the backend
type Invoice struct {
	ID         int64           `json:"id"`
	Number     string          `json:"invoice_number"`
	Event      int64           `json:"event"`
	Status     InvoiceStatus   `json:"status"`
	IssueDate  shared.Date     `json:"issue_date"`
	DueDate    shared.Date     `json:"due_date"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total_amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Lines      []InvoiceLine   `json:"line_items"`
	Notes      string          `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EntityID implements shared.Entity
func (i Invoice) EntityID() int64 { return i.ID }

// InvoiceLine is a single billed line
type InvoiceLine struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     *int64          `json:"tax_rate"`
	Total       decimal.Decimal `json:"total"`
}

// InvoiceLineInput is one line of an invoice create payload
type InvoiceLineInput struct {
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	TaxRate     *int64          `json:"tax_rate,omitempty" validate:"omitempty,gt=0"`
}

// InvoiceCreate is the payload for creating a draft invoice
type InvoiceCreate struct {
	Event   int64              `json:"event" validate:"required,gt=0"`
	DueDate shared.Date        `json:"due_date" validate:"required"`
	Lines   []InvoiceLineInput `json:"line_items" validate:"required,min=1,dive"`
	Notes   string             `json:"notes,omitempty" validate:"max=2000"`
}

// InvoiceUpdate carries only the fields being changed
type InvoiceUpdate struct {
	DueDate *shared.Date `json:"due_date,omitempty"`
	Notes   *string      `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// SendInvoiceRequest optionally overrides the recipient
type SendInvoiceRequest struct {
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Message string `json:"message,omitempty" validate:"max=2000"`
}
