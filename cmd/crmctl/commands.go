package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/erp/crm/internal/application/crud"
	"github.com/erp/crm/internal/domain/catalog"
	"github.com/erp/crm/internal/domain/finance"
	"github.com/erp/crm/internal/domain/identity"
	"github.com/erp/crm/internal/domain/sales"
	"github.com/erp/crm/internal/domain/shared"
)

type runFunc func(ctx context.Context, a *app, args []string) (any, error)

// command is one "<resource> <verb>" entry point
type command struct {
	name    string
	args    string
	summary string
	run     runFunc
}

var commands = []command{
	{"login", "<email>", "Sign in; the password is read from stdin", login},
	{"logout", "", "Forget the stored session", logout},
	{"whoami", "", "Show the signed-in user and token expiry", whoami},

	{"payments list", "[-page n] [filters]", "List payments", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.finance.Payments, args)
	}},
	{"payments get", "<id>", "Show a payment", func(ctx context.Context, a *app, args []string) (any, error) {
		return get(ctx, a.finance.Payments, args)
	}},
	{"payments create", "<json>", "Record a payment", withBody(func(ctx context.Context, a *app, in finance.PaymentCreate) (*finance.Payment, error) {
		return a.finance.CreatePayment(ctx, in)
	})},
	{"payments update", "<id> <json>", "Change a payment", withIDBody(func(ctx context.Context, a *app, id int64, in finance.PaymentUpdate) (*finance.Payment, error) {
		return a.finance.UpdatePayment(ctx, id, in)
	})},
	{"payments delete", "<id>", "Delete a payment", withIDOnly(func(ctx context.Context, a *app, id int64) error {
		return a.finance.DeletePayment(ctx, id)
	})},
	{"payments process", "<id> <json>", "Charge a payment through a gateway", withIDBody(func(ctx context.Context, a *app, id int64, in finance.ProcessPaymentRequest) (*finance.Payment, error) {
		return a.finance.ProcessPayment(ctx, id, in)
	})},
	{"payments refund", "<id> <json>", "Refund all or part of a payment", withIDBody(func(ctx context.Context, a *app, id int64, in finance.RefundRequest) (*finance.Payment, error) {
		return a.finance.RefundPayment(ctx, id, in)
	})},

	{"invoices list", "[-page n] [filters]", "List invoices", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.finance.Invoices, args)
	}},
	{"invoices get", "<id>", "Show an invoice", func(ctx context.Context, a *app, args []string) (any, error) {
		return get(ctx, a.finance.Invoices, args)
	}},
	{"invoices issue", "<id>", "Issue a draft invoice", withID(func(ctx context.Context, a *app, id int64) (*finance.Invoice, error) {
		return a.finance.IssueInvoice(ctx, id)
	})},
	{"invoices mark-paid", "<id>", "Mark an invoice as paid", withID(func(ctx context.Context, a *app, id int64) (*finance.Invoice, error) {
		return a.finance.MarkInvoicePaid(ctx, id)
	})},
	{"invoices send", "<id> [json]", "Email an invoice to the client", sendInvoice},

	{"methods list", "[-page n] [filters]", "List payment methods", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.finance.Methods, args)
	}},
	{"gateways list", "[-page n] [filters]", "List payment gateways", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.finance.Gateways, args)
	}},
	{"tax-rates list", "[-page n] [filters]", "List tax rates", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.finance.TaxRates, args)
	}},
	{"tax-rates update", "<id> <json>", "Change a tax rate", withIDBody(func(ctx context.Context, a *app, id int64, in finance.TaxRateInput) (*finance.TaxRate, error) {
		return a.finance.UpdateTaxRate(ctx, id, in)
	})},
	{"plans list", "[-page n] [filters]", "List payment plans", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.finance.Plans, args)
	}},
	{"plans get", "<id>", "Show a payment plan and its installments", func(ctx context.Context, a *app, args []string) (any, error) {
		return get(ctx, a.finance.Plans, args)
	}},

	{"options list", "[-page n] [filters]", "List product options", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.catalog.Options, args)
	}},
	{"options update", "<id> <json>", "Change a product option", withIDBody(func(ctx context.Context, a *app, id int64, in catalog.ProductOptionUpdate) (*catalog.ProductOption, error) {
		return a.catalog.UpdateOption(ctx, id, in)
	})},
	{"discounts list", "[-page n] [filters]", "List discounts", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.catalog.Discounts, args)
	}},
	{"discounts get", "<id>", "Show a discount", func(ctx context.Context, a *app, args []string) (any, error) {
		return get(ctx, a.catalog.Discounts, args)
	}},
	{"discounts update", "<id> <json>", "Change a discount", withIDBody(func(ctx context.Context, a *app, id int64, in catalog.DiscountUpdate) (*catalog.Discount, error) {
		return a.catalog.UpdateDiscount(ctx, id, in)
	})},
	{"discounts delete", "<id>", "Delete a discount", withIDOnly(func(ctx context.Context, a *app, id int64) error {
		return a.catalog.DeleteDiscount(ctx, id)
	})},
	{"discounts use", "<id>", "Count one use of a discount", withID(func(ctx context.Context, a *app, id int64) (*catalog.Discount, error) {
		return a.catalog.IncrementDiscountUsage(ctx, id)
	})},

	{"templates list", "[-page n] [filters]", "List quote templates", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.sales.Templates, args)
	}},
	{"templates duplicate", "<id>", "Copy a quote template", withID(func(ctx context.Context, a *app, id int64) (*sales.QuoteTemplate, error) {
		return a.sales.DuplicateTemplate(ctx, id)
	})},
	{"quotes list", "[-page n] [filters]", "List event quotes", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.sales.Quotes, args)
	}},
	{"quotes get", "<id>", "Show a quote", func(ctx context.Context, a *app, args []string) (any, error) {
		return get(ctx, a.sales.Quotes, args)
	}},
	{"quotes send", "<id>", "Email a quote to the client", withID(func(ctx context.Context, a *app, id int64) (*sales.EventQuote, error) {
		return a.sales.SendQuote(ctx, id)
	})},
	{"quotes accept", "<id>", "Record the client's acceptance", withID(func(ctx context.Context, a *app, id int64) (*sales.EventQuote, error) {
		return a.sales.AcceptQuote(ctx, id)
	})},
	{"quotes reject", "<id> <json>", "Record the client's rejection", withIDBody(func(ctx context.Context, a *app, id int64, in sales.RejectQuoteRequest) (*sales.EventQuote, error) {
		return a.sales.RejectQuote(ctx, id, in)
	})},
	{"quotes duplicate", "<id>", "Create a new version of a quote", withID(func(ctx context.Context, a *app, id int64) (*sales.EventQuote, error) {
		return a.sales.DuplicateQuote(ctx, id)
	})},

	{"admins list", "[-page n] [filters]", "List admin users", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.users.Admins, args)
	}},
	{"admins activate", "<id>", "Re-enable an admin user", withID(func(ctx context.Context, a *app, id int64) (*identity.AdminUser, error) {
		return a.users.ActivateAdmin(ctx, id)
	})},
	{"admins deactivate", "<id>", "Disable an admin user", withID(func(ctx context.Context, a *app, id int64) (*identity.AdminUser, error) {
		return a.users.DeactivateAdmin(ctx, id)
	})},
	{"invitations list", "[-page n] [filters]", "List admin invitations", func(ctx context.Context, a *app, args []string) (any, error) {
		return list(ctx, a.users.Invitations, args)
	}},
	{"invitations create", "<json>", "Invite an admin by email", withBody(func(ctx context.Context, a *app, in identity.InvitationCreate) (*identity.AdminInvitation, error) {
		return a.users.Invite(ctx, in)
	})},
	{"invitations accept", "<json>", "Complete registration with an invitation token", withBody(func(ctx context.Context, a *app, in identity.InvitationAccept) (*identity.AdminUser, error) {
		return a.users.AcceptInvitation(ctx, in)
	})},
	{"invitations resend", "<id>", "Email a pending invitation again", withID(func(ctx context.Context, a *app, id int64) (*identity.AdminInvitation, error) {
		return a.users.ResendInvitation(ctx, id)
	})},
	{"invitations revoke", "<id>", "Revoke a pending invitation", withIDOnly(func(ctx context.Context, a *app, id int64) error {
		return a.users.RevokeInvitation(ctx, id)
	})},

	{"watch", "[resource] [-page n] [filters]", "Follow remote invalidations, reprinting a list when it changes", watch},
}

// lookup resolves the command named by the leading arguments
func lookup(args []string) (command, []string, error) {
	if len(args) >= 2 {
		name := args[0] + " " + args[1]
		for _, c := range commands {
			if c.name == name {
				return c, args[2:], nil
			}
		}
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c, args[1:], nil
		}
	}
	return command{}, nil, fmt.Errorf("unknown command %q", strings.Join(args[:min(2, len(args))], " "))
}

func login(ctx context.Context, a *app, args []string) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("usage: crmctl login <email>")
	}
	password, err := readLine(a.stdin)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	user, err := a.sessions.Login(ctx, identity.Credentials{Email: args[0], Password: password})
	if err != nil {
		return nil, err
	}
	a.console.Success(ctx, "Signed in as "+user.FullName())
	return user, nil
}

func logout(ctx context.Context, a *app, args []string) (any, error) {
	if err := a.sessions.Logout(ctx); err != nil {
		return nil, err
	}
	a.console.Success(ctx, "Signed out")
	return nil, nil
}

func whoami(ctx context.Context, a *app, args []string) (any, error) {
	return a.sessions.WhoAmI(ctx)
}

func sendInvoice(ctx context.Context, a *app, args []string) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errors.New("usage: crmctl invoices send <id> [json]")
	}
	id, err := parseID(args[0])
	if err != nil {
		return nil, err
	}
	var req finance.SendInvoiceRequest
	if len(args) == 2 {
		if req, err = decode[finance.SendInvoiceRequest](a, args[1]); err != nil {
			return nil, err
		}
	}
	return a.finance.SendInvoice(ctx, id, req)
}

func list[T shared.Entity, C, U any](ctx context.Context, c *crud.Collection[T, C, U], args []string) (any, error) {
	params, err := parseListArgs(args)
	if err != nil {
		return nil, err
	}
	res, err := c.List(ctx, params)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func get[T shared.Entity, C, U any](ctx context.Context, c *crud.Collection[T, C, U], args []string) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("expected a single <id> argument")
	}
	id, err := parseID(args[0])
	if err != nil {
		return nil, err
	}
	res, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func withID[T any](fn func(ctx context.Context, a *app, id int64) (*T, error)) runFunc {
	return func(ctx context.Context, a *app, args []string) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("expected a single <id> argument")
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, id)
	}
}

func withIDOnly(fn func(ctx context.Context, a *app, id int64) error) runFunc {
	return func(ctx context.Context, a *app, args []string) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("expected a single <id> argument")
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, a, id)
	}
}

func withBody[T, P any](fn func(ctx context.Context, a *app, in P) (*T, error)) runFunc {
	return func(ctx context.Context, a *app, args []string) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("expected a single <json> argument")
		}
		in, err := decode[P](a, args[0])
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, in)
	}
}

func withIDBody[T, P any](fn func(ctx context.Context, a *app, id int64, in P) (*T, error)) runFunc {
	return func(ctx context.Context, a *app, args []string) (any, error) {
		if len(args) != 2 {
			return nil, errors.New("expected <id> and <json> arguments")
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		in, err := decode[P](a, args[1])
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, id, in)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseListArgs reads "-page n" and field=value filters in any order
func parseListArgs(args []string) (shared.ListParams, error) {
	params := shared.NewListParams(1)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "="); strings.HasPrefix(arg, "-") {
			if name != "page" {
				return params, fmt.Errorf("unknown list flag %q", arg)
			}
			if !ok {
				if i+1 >= len(args) {
					return params, errors.New("-page needs a value")
				}
				i++
				value = args[i]
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return params, fmt.Errorf("invalid page %q", value)
			}
			params.Page = n
			continue
		}

		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return params, fmt.Errorf("invalid filter %q, want field=value", arg)
		}
		params = params.With(key, value)
	}
	return params, nil
}

// decode parses a JSON payload argument; "-" reads it from stdin
func decode[T any](a *app, raw string) (T, error) {
	var v T
	var r io.Reader = strings.NewReader(raw)
	if raw == "-" {
		r = a.stdin
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("invalid payload: %w", err)
	}
	return v, nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}
