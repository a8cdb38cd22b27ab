// Package finance holds the payment, invoice and payment configuration records
// exposed by the backend's payments app.
package finance

import (
	"time"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the server-side state of a payment
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment is a single payment owed or received against an event
type Payment struct {
	ID             int64           `json:"id"`
	Event          int64           `json:"event"`
	Invoice        *int64          `json:"invoice"`
	Installment    *int64          `json:"installment"`
	Method         *int64          `json:"payment_method"`
	Amount         decimal.Decimal `json:"amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Status         PaymentStatus   `json:"status"`
	DueDate        shared.Date     `json:"due_date"`
	PaidAt         *time.Time      `json:"paid_on"`
	Reference      string          `json:"reference_number"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EntityID implements shared.Entity
func (p Payment) EntityID() int64 { return p.ID }

// PaymentCreate is the payload for creating a payment
type PaymentCreate struct {
	Event       int64           `json:"event" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	DueDate     shared.Date     `json:"due_date" validate:"required"`
	Invoice     *int64          `json:"invoice,omitempty" validate:"omitempty,gt=0"`
	Installment *int64          `json:"installment,omitempty" validate:"omitempty,gt=0"`
	Method      *int64          `json:"payment_method,omitempty" validate:"omitempty,gt=0"`
	Notes       string          `json:"notes,omitempty" validate:"max=2000"`
}

// PaymentUpdate carries only the fields being changed
type PaymentUpdate struct {
	Amount    *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0"`
	DueDate   *shared.Date     `json:"due_date,omitempty"`
	Status    *PaymentStatus   `json:"status,omitempty" validate:"omitempty,oneof=pending processing completed failed refunded partially_refunded"`
	Method    *int64           `json:"payment_method,omitempty" validate:"omitempty,gt=0"`
	Reference *string          `json:"reference_number,omitempty" validate:"omitempty,max=100"`
	Notes     *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ProcessPaymentRequest asks the backend to charge a payment through a gateway
type ProcessPaymentRequest struct {
	Gateway int64  `json:"gateway" validate:"required,gt=0"`
	Method  int64  `json:"payment_method" validate:"required,gt=0"`
	Token   string `json:"token,omitempty"`
}

// RefundRequest asks the backend to refund all or part of a payment
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reason string          `json:"reason" validate:"required,max=500"`
}
