// Package crud binds a REST collection to the query cache: list and detail
// reads go through the cache and writes run as optimistic mutations.
package crud

import (
	"context"
	"strings"

	"github.com/erp/crm/internal/api"
	"github.com/erp/crm/internal/application/optimistic"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/cache"
)

// Collection is the synchronized view of one backend resource
type Collection[T shared.Entity, C any, U any] struct {
	resource *api.Resource[T, C, U]
	runner   *optimistic.Runner
	label    string

	// Related returns keys of other resources that embed or aggregate a record.
	// They are taken from the cached record before a write, so they are
	// invalidated whether the write succeeds or fails, and from the server's
	// answer after a successful one.
	Related func(rec *T) []cache.Key
}

// New creates a collection. label is the human name used in notifications,
// e.g. "Payment".
func New[T shared.Entity, C any, U any](resource *api.Resource[T, C, U], runner *optimistic.Runner, label string) *Collection[T, C, U] {
	return &Collection[T, C, U]{resource: resource, runner: runner, label: label}
}

// Name returns the cache resource name
func (c *Collection[T, C, U]) Name() string {
	return c.resource.Name()
}

// API returns the underlying resource client
func (c *Collection[T, C, U]) API() *api.Resource[T, C, U] {
	return c.resource
}

// Runner returns the mutation runner
func (c *Collection[T, C, U]) Runner() *optimistic.Runner {
	return c.runner
}

// ListKey returns the cache key of one list page
func (c *Collection[T, C, U]) ListKey(params shared.ListParams) cache.Key {
	return cache.ListKey(c.Name(), params)
}

// DetailKey returns the cache key of one record
func (c *Collection[T, C, U]) DetailKey(id int64) cache.Key {
	return cache.DetailKey(c.Name(), id)
}

// List reads one page through the cache
func (c *Collection[T, C, U]) List(ctx context.Context, params shared.ListParams) (cache.Result[shared.Page[T]], error) {
	return cache.Query(ctx, c.runner.Cache(), c.ListKey(params), func(ctx context.Context) (shared.Page[T], error) {
		page, err := c.resource.List(ctx, params)
		if err != nil {
			return shared.Page[T]{}, err
		}
		return *page, nil
	})
}

// Get reads one record through the cache
func (c *Collection[T, C, U]) Get(ctx context.Context, id int64) (cache.Result[T], error) {
	return cache.Query(ctx, c.runner.Cache(), c.DetailKey(id), func(ctx context.Context) (T, error) {
		rec, err := c.resource.Get(ctx, id)
		if err != nil {
			var zero T
			return zero, err
		}
		return *rec, nil
	})
}

// Reset drops every cached page and record of the collection so the next
// read waits on the server instead of showing stale data.
func (c *Collection[T, C, U]) Reset() int {
	return c.runner.Cache().Remove(cache.ResourceKey(c.Name()))
}

// Create posts a new record. Nothing is written optimistically since the
// server assigns the id; every list page is invalidated on settle.
func (c *Collection[T, C, U]) Create(ctx context.Context, in C, related ...cache.Key) (*T, error) {
	return optimistic.Execute(ctx, c.runner, optimistic.Mutation[*T]{
		Name:     c.Name() + ".create",
		Payload:  in,
		Affected: []cache.Key{cache.AllLists(c.Name())},
		Request: func(ctx context.Context) (*T, error) {
			return c.resource.Create(ctx, in)
		},
		Detail:         c.detailOf,
		Dependents:     c.dependents(related, nil),
		SuccessMessage: c.label + " created successfully",
		FailureMessage: "Failed to create " + c.lower(),
	})
}

// Update patches a record, optimistically merging the changed fields into
// the cached detail and every cached list page.
func (c *Collection[T, C, U]) Update(ctx context.Context, id int64, in U, related ...cache.Key) (*T, error) {
	prior := c.cachedRelations(id)
	return optimistic.Execute(ctx, c.runner, optimistic.Mutation[*T]{
		Name:    c.Name() + ".update",
		Payload: in,
		Patches: []optimistic.Patch{
			optimistic.UpdateInLists(c.Name(), id, in),
			optimistic.UpdateDetail(c.Name(), id, in),
		},
		Request: func(ctx context.Context) (*T, error) {
			return c.resource.Update(ctx, id, in)
		},
		Detail:         c.detailOf,
		Dependents:     c.dependents(related, prior),
		SuccessMessage: c.label + " updated successfully",
		FailureMessage: "Failed to update " + c.lower(),
	})
}

// Delete removes a record, optimistically dropping it from every cached list page
func (c *Collection[T, C, U]) Delete(ctx context.Context, id int64, related ...cache.Key) error {
	prior := c.cachedRelations(id)
	_, err := optimistic.Execute(ctx, c.runner, optimistic.Mutation[struct{}]{
		Name:     c.Name() + ".delete",
		Affected: []cache.Key{c.DetailKey(id)},
		Patches:  []optimistic.Patch{optimistic.RemoveFromLists(c.Name(), id)},
		Request: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.resource.Delete(ctx, id)
		},
		Removes: []cache.Key{c.DetailKey(id)},
		Dependents: func(struct{}) []cache.Key {
			return append(append([]cache.Key(nil), related...), prior...)
		},
		SuccessMessage: c.label + " deleted successfully",
		FailureMessage: "Failed to delete " + c.lower(),
	})
	return err
}

// Action describes a state transition endpoint on a single record
type Action[T any] struct {
	// Verb names the action in logs and metrics, e.g. "send"
	Verb string
	// Payload is validated before the request; nil skips validation
	Payload any
	// Optimistic is merged into the cached record and list pages, e.g. a new status
	Optimistic any
	Call       func(ctx context.Context) (*T, error)
	// Related keys are invalidated on settle in addition to the record's own keys
	Related        []cache.Key
	SuccessMessage string
	FailureMessage string
}

// Run executes a resource action against record id
func (c *Collection[T, C, U]) Run(ctx context.Context, id int64, a Action[T]) (*T, error) {
	var patches []optimistic.Patch
	if a.Optimistic != nil {
		patches = []optimistic.Patch{
			optimistic.UpdateInLists(c.Name(), id, a.Optimistic),
			optimistic.UpdateDetail(c.Name(), id, a.Optimistic),
		}
	}

	prior := c.cachedRelations(id)

	failure := a.FailureMessage
	if failure == "" {
		failure = "Failed to " + strings.ReplaceAll(a.Verb, "_", " ") + " " + c.lower()
	}

	return optimistic.Execute(ctx, c.runner, optimistic.Mutation[*T]{
		Name:     c.Name() + "." + a.Verb,
		Payload:  a.Payload,
		Affected: []cache.Key{cache.AllLists(c.Name()), c.DetailKey(id)},
		Patches:  patches,
		Request:  a.Call,
		Detail: func(out *T) (cache.Key, bool) {
			if out == nil {
				return cache.Key{}, false
			}
			// Actions such as duplicate answer with a different record
			return c.DetailKey((*out).EntityID()), true
		},
		Dependents:     c.dependents(a.Related, prior),
		SuccessMessage: a.SuccessMessage,
		FailureMessage: failure,
	})
}

func (c *Collection[T, C, U]) detailOf(out *T) (cache.Key, bool) {
	if out == nil {
		return cache.Key{}, false
	}
	return c.DetailKey((*out).EntityID()), true
}

func (c *Collection[T, C, U]) dependents(static, prior []cache.Key) func(*T) []cache.Key {
	return func(out *T) []cache.Key {
		keys := append(append([]cache.Key(nil), static...), prior...)
		if out != nil && c.Related != nil {
			keys = append(keys, c.Related(out)...)
		}
		return keys
	}
}

// cachedRelations returns the Related keys of record id as the cache knows it
// right now, or nil when the record is not cached.
func (c *Collection[T, C, U]) cachedRelations(id int64) []cache.Key {
	if c.Related == nil {
		return nil
	}
	rec, ok := c.cached(id)
	if !ok {
		return nil
	}
	return c.Related(rec)
}

// cached looks record id up in its detail entry, then in cached list pages
func (c *Collection[T, C, U]) cached(id int64) (*T, bool) {
	w := c.runner.Cache()
	if rec, ok, err := cache.Get[T](w, c.DetailKey(id)); err == nil && ok {
		return &rec, true
	}
	for _, key := range w.Keys(cache.AllLists(c.Name())) {
		page, ok, err := cache.Get[shared.Page[T]](w, key)
		if err != nil || !ok {
			continue
		}
		for i := range page.Results {
			if page.Results[i].EntityID() == id {
				return &page.Results[i], true
			}
		}
	}
	return nil, false
}

func (c *Collection[T, C, U]) lower() string {
	return strings.ToLower(c.label)
}

// Status is the optimistic body of a status transition
type Status[S ~string] struct {
	Status S `json:"status"`
}
