// Package finance synchronizes payments, invoices, payment configuration and
// payment plans with the query cache.
package finance

import (
	"context"
	"fmt"

	"github.com/erp/crm/internal/api/payments"
	"github.com/erp/crm/internal/application/crud"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/finance"
	"github.com/erp/crm/internal/infrastructure/cache"
)

// ResourceEvents is the cache resource of event records, which embed payment
// and invoice totals.
const ResourceEvents = "events"

// Service is the finance data-synchronization layer
type Service struct {
	api *payments.API

	Payments *crud.Collection[finance.Payment, finance.PaymentCreate, finance.PaymentUpdate]
	Invoices *crud.Collection[finance.Invoice, finance.InvoiceCreate, finance.InvoiceUpdate]
	Methods  *crud.Collection[finance.PaymentMethod, finance.PaymentMethodInput, finance.PaymentMethodInput]
	Gateways *crud.Collection[finance.PaymentGateway, finance.PaymentGatewayInput, finance.PaymentGatewayInput]
	TaxRates *crud.Collection[finance.TaxRate, finance.TaxRateInput, finance.TaxRateInput]
	Plans    *crud.Collection[finance.PaymentPlan, finance.PaymentPlanCreate, finance.PaymentPlanUpdate]
}

// NewService wires the payments app client to the runner's cache
func NewService(a *payments.API, runner *optimistic.Runner) *Service {
	s := &Service{
		api:      a,
		Payments: crud.New(a.Payments, runner, "Payment"),
		Invoices: crud.New(a.Invoices, runner, "Invoice"),
		Methods:  crud.New(a.Methods, runner, "Payment method"),
		Gateways: crud.New(a.Gateways, runner, "Payment gateway"),
		TaxRates: crud.New(a.TaxRates, runner, "Tax rate"),
		Plans:    crud.New(a.Plans, runner, "Payment plan"),
	}

	s.Payments.Related = func(p *finance.Payment) []cache.Key {
		keys := []cache.Key{eventKey(p.Event)}
		if p.Invoice != nil {
			keys = append(keys, cache.DetailKey(payments.ResourceInvoices, *p.Invoice))
			keys = append(keys, cache.AllLists(payments.ResourceInvoices))
		}
		if p.Installment != nil {
			keys = append(keys, cache.ResourceKey(payments.ResourcePlans))
		}
		return keys
	}
	s.Invoices.Related = func(inv *finance.Invoice) []cache.Key {
		return []cache.Key{eventKey(inv.Event)}
	}
	s.Plans.Related = func(p *finance.PaymentPlan) []cache.Key {
		return []cache.Key{eventKey(p.Event)}
	}
	return s
}

func eventKey(id int64) cache.Key {
	return cache.DetailKey(ResourceEvents, id)
}

// CreatePayment records a new payment. The owning event is known from the
// input, so its cached detail is invalidated even if the request fails.
func (s *Service) CreatePayment(ctx context.Context, in finance.PaymentCreate) (*finance.Payment, error) {
	return s.Payments.Create(ctx, in, eventKey(in.Event))
}

// UpdatePayment patches a payment
func (s *Service) UpdatePayment(ctx context.Context, id int64, in finance.PaymentUpdate) (*finance.Payment, error) {
	return s.Payments.Update(ctx, id, in)
}

// DeletePayment removes a payment
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	return s.Payments.Delete(ctx, id, cache.ResourceKey(ResourceEvents))
}

// ProcessPayment charges a payment through a gateway; the cached status moves
// to processing until the server answers.
func (s *Service) ProcessPayment(ctx context.Context, id int64, req finance.ProcessPaymentRequest) (*finance.Payment, error) {
	return s.Payments.Run(ctx, id, crud.Action[finance.Payment]{
		Verb:       "process",
		Payload:    req,
		Optimistic: crud.Status[finance.PaymentStatus]{Status: finance.PaymentStatusProcessing},
		Call: func(ctx context.Context) (*finance.Payment, error) {
			return s.api.ProcessPayment(ctx, id, req)
		},
		SuccessMessage: "Payment processed successfully",
	})
}

// RefundPayment refunds all or part of a payment. The refunded amount is
// computed by the server, so nothing is patched optimistically.
func (s *Service) RefundPayment(ctx context.Context, id int64, req finance.RefundRequest) (*finance.Payment, error) {
	return s.Payments.Run(ctx, id, crud.Action[finance.Payment]{
		Verb:    "refund",
		Payload: req,
		Call: func(ctx context.Context) (*finance.Payment, error) {
			return s.api.RefundPayment(ctx, id, req)
		},
		SuccessMessage: "Refund issued successfully",
	})
}

// CreateInvoice creates a draft invoice
func (s *Service) CreateInvoice(ctx context.Context, in finance.InvoiceCreate) (*finance.Invoice, error) {
	return s.Invoices.Create(ctx, in, eventKey(in.Event))
}

// UpdateInvoice patches a draft invoice
func (s *Service) UpdateInvoice(ctx context.Context, id int64, in finance.InvoiceUpdate) (*finance.Invoice, error) {
	return s.Invoices.Update(ctx, id, in)
}

// DeleteInvoice removes a draft invoice
func (s *Service) DeleteInvoice(ctx context.Context, id int64) error {
	return s.Invoices.Delete(ctx, id, cache.ResourceKey(ResourceEvents))
}

// IssueInvoice moves a draft invoice to issued
func (s *Service) IssueInvoice(ctx context.Context, id int64) (*finance.Invoice, error) {
	return s.invoiceTransition(ctx, id, "issue", finance.InvoiceStatusIssued, "Invoice issued successfully",
		func(ctx context.Context) (*finance.Invoice, error) { return s.api.IssueInvoice(ctx, id) })
}

// MarkInvoicePaid records full payment of an invoice. Payments against the
// invoice are settled server side, so payment lists are refreshed too.
func (s *Service) MarkInvoicePaid(ctx context.Context, id int64) (*finance.Invoice, error) {
	return s.invoiceTransition(ctx, id, "mark_paid", finance.InvoiceStatusPaid, "Invoice marked as paid",
		func(ctx context.Context) (*finance.Invoice, error) { return s.api.MarkInvoicePaid(ctx, id) },
		cache.AllLists(payments.ResourcePayments))
}

// SendInvoice emails an invoice to the client
func (s *Service) SendInvoice(ctx context.Context, id int64, req finance.SendInvoiceRequest) (*finance.Invoice, error) {
	return s.Invoices.Run(ctx, id, crud.Action[finance.Invoice]{
		Verb:       "send",
		Payload:    req,
		Optimistic: crud.Status[finance.InvoiceStatus]{Status: finance.InvoiceStatusSent},
		Call: func(ctx context.Context) (*finance.Invoice, error) {
			return s.api.SendInvoice(ctx, id, req)
		},
		SuccessMessage: "Invoice sent successfully",
	})
}

func (s *Service) invoiceTransition(ctx context.Context, id int64, verb string, status finance.InvoiceStatus, success string,
	call func(ctx context.Context) (*finance.Invoice, error), related ...cache.Key) (*finance.Invoice, error) {
	return s.Invoices.Run(ctx, id, crud.Action[finance.Invoice]{
		Verb:           verb,
		Optimistic:     crud.Status[finance.InvoiceStatus]{Status: status},
		Call:           call,
		Related:        related,
		SuccessMessage: success,
	})
}

// UpdatePaymentMethod patches a payment method
func (s *Service) UpdatePaymentMethod(ctx context.Context, id int64, in finance.PaymentMethodInput) (*finance.PaymentMethod, error) {
	return s.Methods.Update(ctx, id, in)
}

// UpdatePaymentGateway patches a payment gateway; methods embed gateway data
func (s *Service) UpdatePaymentGateway(ctx context.Context, id int64, in finance.PaymentGatewayInput) (*finance.PaymentGateway, error) {
	return s.Gateways.Update(ctx, id, in, cache.AllLists(payments.ResourceMethods))
}

// UpdateTaxRate patches a tax rate. Invoice totals are computed with it, so
// every cached invoice is refreshed.
func (s *Service) UpdateTaxRate(ctx context.Context, id int64, in finance.TaxRateInput) (*finance.TaxRate, error) {
	return s.TaxRates.Update(ctx, id, in, cache.ResourceKey(payments.ResourceInvoices))
}

// CreatePaymentPlan schedules installments for an event
func (s *Service) CreatePaymentPlan(ctx context.Context, in finance.PaymentPlanCreate) (*finance.PaymentPlan, error) {
	return s.Plans.Create(ctx, in, eventKey(in.Event))
}

// MarkInstallmentPaid records payment of installment n of a plan. The backend
// creates the matching payment, so payment lists are invalidated as well.
func (s *Service) MarkInstallmentPaid(ctx context.Context, planID int64, n int) (*finance.PaymentPlan, error) {
	if n < 1 {
		return nil, fmt.Errorf("installment number must be positive, got %d", n)
	}
	return s.Plans.Run(ctx, planID, crud.Action[finance.PaymentPlan]{
		Verb: "mark_installment_paid",
		Call: func(ctx context.Context) (*finance.PaymentPlan, error) {
			return s.api.MarkInstallmentPaid(ctx, planID, n)
		},
		Related:        []cache.Key{cache.AllLists(payments.ResourcePayments)},
		SuccessMessage: fmt.Sprintf("Installment %d marked as paid", n),
		FailureMessage: "Failed to mark installment as paid",
	})
}
