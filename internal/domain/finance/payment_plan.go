package finance

import (
	"github.com/erp/crm/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InstallmentStatus is the server-side state of an installment
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

// PaymentPlan splits an event's balance into scheduled installments
type PaymentPlan struct {
	ID           int64           `json:"id"`
	Event        int64           `json:"event"`
	Name         string          `json:"name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Installments []Installment   `json:"installments"`
}

// EntityID implements shared.Entity
func (p PaymentPlan) EntityID() int64 { return p.ID }

// Installment is one scheduled part of a payment plan
type Installment struct {
	ID      int64             `json:"id"`
	Number  int               `json:"installment_number"`
	Amount  decimal.Decimal   `json:"amount"`
	DueDate shared.Date       `json:"due_date"`
	Status  InstallmentStatus `json:"status"`
	Payment *int64            `json:"payment"`
}

// InstallmentInput describes one installment of a new plan
type InstallmentInput struct {
	Amount  decimal.Decimal `json:"amount" validate:"required,gt=0"`
	DueDate shared.Date     `json:"due_date" validate:"required"`
}

// PaymentPlanCreate is the payload for creating a payment plan
type PaymentPlanCreate struct {
	Event        int64              `json:"event" validate:"required,gt=0"`
	Name         string             `json:"name" validate:"required,max=100"`
	Installments []InstallmentInput `json:"installments" validate:"required,min=1,dive"`
}

// PaymentPlanUpdate carries only the fields being changed
type PaymentPlanUpdate struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}
