package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/erp/crm/internal/application/crud"
	"github.com/erp/crm/internal/application/livesync"
	"github.com/erp/crm/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// pageView keeps one list page on screen
type pageView struct {
	resource string
	fetch    func(ctx context.Context, params shared.ListParams) (any, error)
	reset    func() int
}

func viewOf[T shared.Entity, C, U any](c *crud.Collection[T, C, U]) pageView {
	return pageView{
		resource: c.Name(),
		fetch: func(ctx context.Context, params shared.ListParams) (any, error) {
			res, err := c.List(ctx, params)
			if err != nil {
				return nil, err
			}
			return res.Data, nil
		},
		reset: c.Reset,
	}
}

// views maps command resource names onto their list pages
func (a *app) views() map[string]pageView {
	return map[string]pageView{
		"payments":    viewOf(a.finance.Payments),
		"invoices":    viewOf(a.finance.Invoices),
		"methods":     viewOf(a.finance.Methods),
		"gateways":    viewOf(a.finance.Gateways),
		"tax-rates":   viewOf(a.finance.TaxRates),
		"plans":       viewOf(a.finance.Plans),
		"options":     viewOf(a.catalog.Options),
		"discounts":   viewOf(a.catalog.Discounts),
		"templates":   viewOf(a.sales.Templates),
		"quotes":      viewOf(a.sales.Quotes),
		"admins":      viewOf(a.users.Admins),
		"invitations": viewOf(a.users.Invitations),
	}
}

// watch subscribes to invalidations published by other clients. With a
// resource it prints the list page and reprints it whenever the page is
// invalidated remotely; without one it prints every message received.
func watch(ctx context.Context, a *app, args []string) (any, error) {
	if a.live == nil {
		return nil, errors.New("watch needs cache.broadcast_enabled = true and a reachable redis")
	}

	var view *pageView
	params := shared.NewListParams(1)
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") && !strings.Contains(args[0], "=") {
		views := a.views()
		v, ok := views[args[0]]
		if !ok {
			names := make([]string, 0, len(views))
			for name := range views {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, fmt.Errorf("cannot watch %q, want one of %s", args[0], strings.Join(names, ", "))
		}
		view = &v
		args = args[1:]
	}
	if len(args) > 0 {
		if view == nil {
			return nil, errors.New("list arguments need a resource")
		}
		var err error
		if params, err = parseListArgs(args); err != nil {
			return nil, err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			return a.metrics.Serve(ctx, addr, a.cfg.Metrics.Path, a.log)
		})
	}

	changed := make(chan struct{}, 1)
	g.Go(func() error {
		return a.live.Listen(ctx, func(c livesync.Change) {
			if view == nil {
				if err := a.out.Print(c); err != nil {
					a.log.Warn("printing invalidation", zap.Error(err))
				}
				return
			}
			if c.Touches(view.resource) {
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		})
	})

	if view != nil {
		g.Go(func() error {
			for {
				page, err := view.fetch(ctx, params)
				switch {
				case ctx.Err() != nil:
					return nil
				case err != nil:
					a.console.alert(err)
				default:
					if err := a.out.Print(page); err != nil {
						return err
					}
				}

				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					// Drop the stale page so the next read waits for fresh data
					view.reset()
				}
			}
		})
	}

	return nil, g.Wait()
}
