// Package catalog holds the sellable product options and discount codes.
package catalog

import (
	"github.com/erp/crm/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// OptionType groups product options in the catalog
type OptionType string

const (
	OptionTypeProduct OptionType = "product"
	OptionTypeService OptionType = "service"
	OptionTypePackage OptionType = "package"
)

// ProductOption is something that can be added to a quote
type ProductOption struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        OptionType      `json:"type"`
	BasePrice   decimal.Decimal `json:"base_price"`
	TaxRate     *int64          `json:"tax_rate"`
	IsTaxable   bool            `json:"is_taxable"`
	IsActive    bool            `json:"is_active"`
}

// EntityID implements shared.Entity
func (o ProductOption) EntityID() int64 { return o.ID }

// ProductOptionCreate is the payload for creating a product option
type ProductOptionCreate struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
	Type        OptionType      `json:"type" validate:"required,oneof=product service package"`
	BasePrice   decimal.Decimal `json:"base_price" validate:"gte=0"`
	TaxRate     *int64          `json:"tax_rate,omitempty" validate:"omitempty,gt=0"`
	IsTaxable   bool            `json:"is_taxable"`
	IsActive    bool            `json:"is_active"`
}

// ProductOptionUpdate carries only the fields being changed. TaxRate can be
// cleared with shared.Null.
type ProductOptionUpdate struct {
	Name        *string                `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string                `json:"description,omitempty" validate:"omitempty,max=2000"`
	BasePrice   *decimal.Decimal       `json:"base_price,omitempty" validate:"omitempty,gte=0"`
	TaxRate     shared.Optional[int64] `json:"tax_rate,omitzero" validate:"omitempty,gt=0"`
	IsTaxable   *bool                  `json:"is_taxable,omitempty"`
	IsActive    *bool                  `json:"is_active,omitempty"`
}

// DiscountType selects how Value is interpreted
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Discount is a promotional code applied by the backend to quotes
type Discount struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	DiscountType DiscountType    `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
	MaxUses      *int            `json:"max_uses"`
	CurrentUses  int             `json:"current_uses"`
	ValidFrom    *shared.Date    `json:"valid_from"`
	ValidUntil   *shared.Date    `json:"valid_until"`
	IsActive     bool            `json:"is_active"`
}

// EntityID implements shared.Entity
func (d Discount) EntityID() int64 { return d.ID }

// DiscountCreate is the payload for creating a discount
type DiscountCreate struct {
	Code         string          `json:"code" validate:"required,alphanum,max=50"`
	Name         string          `json:"name" validate:"required,max=200"`
	DiscountType DiscountType    `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal `json:"value" validate:"required,gt=0"`
	MaxUses      *int            `json:"max_uses,omitempty" validate:"omitempty,gt=0"`
	ValidFrom    *shared.Date    `json:"valid_from,omitempty"`
	ValidUntil   *shared.Date    `json:"valid_until,omitempty"`
	IsActive     bool            `json:"is_active"`
}

// DiscountUpdate carries only the fields being changed
type DiscountUpdate struct {
	Code       *string                      `json:"code,omitempty" validate:"omitempty,alphanum,max=50"`
	Name       *string                      `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Value      *decimal.Decimal             `json:"value,omitempty" validate:"omitempty,gt=0"`
	MaxUses    shared.Optional[int]         `json:"max_uses,omitzero" validate:"omitempty,gt=0"`
	ValidFrom  shared.Optional[shared.Date] `json:"valid_from,omitzero"`
	ValidUntil shared.Optional[shared.Date] `json:"valid_until,omitzero"`
	IsActive   *bool                        `json:"is_active,omitempty"`
}
