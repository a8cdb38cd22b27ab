// Package payments maps the backend payments app: payments, invoices,
// payment methods, gateways, tax rates and payment plans.
package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/domain/finance"
)

// Cache resource names
const (
	ResourcePayments = "payments"
	ResourceInvoices = "invoices"
	ResourceMethods  = "payment-methods"
	ResourceGateways = "payment-gateways"
	ResourceTaxRates = "tax-rates"
	ResourcePlans    = "payment-plans"
)

// API is the payments app client
type API struct {
	transport api.Transport

	Payments *api.Resource[finance.Payment, finance.PaymentCreate, finance.PaymentUpdate]
	Invoices *api.Resource[finance.Invoice, finance.InvoiceCreate, finance.InvoiceUpdate]
	Methods  *api.Resource[finance.PaymentMethod, finance.PaymentMethodInput, finance.PaymentMethodInput]
	Gateways *api.Resource[finance.PaymentGateway, finance.PaymentGatewayInput, finance.PaymentGatewayInput]
	TaxRates *api.Resource[finance.TaxRate, finance.TaxRateInput, finance.TaxRateInput]
	Plans    *api.Resource[finance.PaymentPlan, finance.PaymentPlanCreate, finance.PaymentPlanUpdate]
}

// New creates the payments app client
func New(t api.Transport) *API {
	return &API{
		transport: t,
		Payments:  api.NewResource[finance.Payment, finance.PaymentCreate, finance.PaymentUpdate](t, ResourcePayments, "/payments/payments/"),
		Invoices:  api.NewResource[finance.Invoice, finance.InvoiceCreate, finance.InvoiceUpdate](t, ResourceInvoices, "/payments/invoices/"),
		Methods:   api.NewResource[finance.PaymentMethod, finance.PaymentMethodInput, finance.PaymentMethodInput](t, ResourceMethods, "/payments/methods/"),
		Gateways:  api.NewResource[finance.PaymentGateway, finance.PaymentGatewayInput, finance.PaymentGatewayInput](t, ResourceGateways, "/payments/gateways/"),
		TaxRates:  api.NewResource[finance.TaxRate, finance.TaxRateInput, finance.TaxRateInput](t, ResourceTaxRates, "/payments/tax-rates/"),
		Plans:     api.NewResource[finance.PaymentPlan, finance.PaymentPlanCreate, finance.PaymentPlanUpdate](t, ResourcePlans, "/payments/plans/"),
	}
}

// ProcessPayment charges a payment through a gateway
func (a *API) ProcessPayment(ctx context.Context, id int64, req finance.ProcessPaymentRequest) (*finance.Payment, error) {
	return api.Action[finance.Payment](ctx, a.transport, a.Payments.ActionPath(id, "process"), req)
}

// RefundPayment refunds all or part of a payment
func (a *API) RefundPayment(ctx context.Context, id int64, req finance.RefundRequest) (*finance.Payment, error) {
	return api.Action[finance.Payment](ctx, a.transport, a.Payments.ActionPath(id, "refund"), req)
}

// IssueInvoice moves a draft invoice to issued
func (a *API) IssueInvoice(ctx context.Context, id int64) (*finance.Invoice, error) {
	return api.Action[finance.Invoice](ctx, a.transport, a.Invoices.ActionPath(id, "issue"), struct{}{})
}

// MarkInvoicePaid records full payment of an invoice
func (a *API) MarkInvoicePaid(ctx context.Context, id int64) (*finance.Invoice, error) {
	return api.Action[finance.Invoice](ctx, a.transport, a.Invoices.ActionPath(id, "mark_paid"), struct{}{})
}

// SendInvoice emails the invoice to the client
func (a *API) SendInvoice(ctx context.Context, id int64, req finance.SendInvoiceRequest) (*finance.Invoice, error) {
	return api.Action[finance.Invoice](ctx, a.transport, a.Invoices.ActionPath(id, "send"), req)
}

// MarkInstallmentPaid records payment of installment number n of a plan
func (a *API) MarkInstallmentPaid(ctx context.Context, planID int64, n int) (*finance.PaymentPlan, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid installment number %d", n)
	}
	path := a.Plans.ActionPath(planID, "installments/"+strconv.Itoa(n)+"/mark_paid")
	return api.Action[finance.PaymentPlan](ctx, a.transport, path, struct{}{})
}
