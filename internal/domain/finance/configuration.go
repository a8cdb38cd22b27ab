package finance

import (
	"github.com/erp/crm/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentMethod is an accepted way of paying (card, bank transfer, cash)
type PaymentMethod struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Gateway  *int64 `json:"gateway"`
	IsActive bool   `json:"is_active"`
}

// EntityID implements shared.Entity
func (m PaymentMethod) EntityID() int64 { return m.ID }

// PaymentMethodInput is used for both create and update of a payment method
type PaymentMethodInput struct {
	Name     *string                `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Code     *string                `json:"code,omitempty" validate:"omitempty,min=1,max=50"`
	Gateway  shared.Optional[int64] `json:"gateway,omitzero" validate:"omitempty,gt=0"`
	IsActive *bool                  `json:"is_active,omitempty"`
}

// PaymentGateway is a configured payment processor
type PaymentGateway struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	IsActive  bool   `json:"is_active"`
	IsSandbox bool   `json:"is_sandbox"`
}

// EntityID implements shared.Entity
func (g PaymentGateway) EntityID() int64 { return g.ID }

// PaymentGatewayInput is used for both create and update of a gateway
type PaymentGatewayInput struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Provider  *string `json:"provider,omitempty" validate:"omitempty,oneof=stripe paypal square manual"`
	IsActive  *bool   `json:"is_active,omitempty"`
	IsSandbox *bool   `json:"is_sandbox,omitempty"`
}

// TaxRate is a named percentage applied by the backend to taxable lines
type TaxRate struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	Region    string          `json:"region"`
	IsDefault bool            `json:"is_default"`
	IsActive  bool            `json:"is_active"`
}

// EntityID implements shared.Entity
func (t TaxRate) EntityID() int64 { return t.ID }

// TaxRateInput is used for both create and update of a tax rate
type TaxRateInput struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Rate      *decimal.Decimal `json:"rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Region    *string          `json:"region,omitempty" validate:"omitempty,max=100"`
	IsDefault *bool            `json:"is_default,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
}
