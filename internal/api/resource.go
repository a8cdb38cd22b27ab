// Package api maps backend REST resources onto typed Go calls. API modules
// are pure request/response mappers: they never touch the cache.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/httpclient"
)

// Transport executes API requests. *httpclient.Client implements it.
type Transport interface {
	Do(ctx context.Context, req httpclient.Request) (*httpclient.Response, error)
	DoJSON(ctx context.Context, req httpclient.Request, out any) error
}

// Resource is a standard list/detail REST collection.
// T is the record, C the create payload and U the partial update payload.
type Resource[T any, C any, U any] struct {
	transport Transport
	name      string
	base      string
}

// NewResource creates a collection rooted at base, e.g. "/payments/payments/".
// name is the cache resource name used by services.
func NewResource[T any, C any, U any](t Transport, name, base string) *Resource[T, C, U] {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Resource[T, C, U]{transport: t, name: name, base: base}
}

// Name returns the resource name
func (r *Resource[T, C, U]) Name() string {
	return r.name
}

// Path returns the collection path
func (r *Resource[T, C, U]) Path() string {
	return r.base
}

// DetailPath returns the path of a single record
func (r *Resource[T, C, U]) DetailPath(id int64) string {
	return r.base + strconv.FormatInt(id, 10) + "/"
}

// ActionPath returns the path of a detail action such as "send"
func (r *Resource[T, C, U]) ActionPath(id int64, action string) string {
	return r.DetailPath(id) + strings.Trim(action, "/") + "/"
}

// List fetches one page
func (r *Resource[T, C, U]) List(ctx context.Context, params shared.ListParams) (*shared.Page[T], error) {
	var page shared.Page[T]
	err := r.transport.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   r.base,
		Query:  params.Query(),
	}, &page)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.name, err)
	}
	if page.Results == nil {
		page.Results = []T{}
	}
	return &page, nil
}

// Get fetches a single record
func (r *Resource[T, C, U]) Get(ctx context.Context, id int64) (*T, error) {
	var out T
	if err := r.transport.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   r.DetailPath(id),
	}, &out); err != nil {
		return nil, fmt.Errorf("get %s %d: %w", r.name, id, err)
	}
	return &out, nil
}

// Create posts a new record
func (r *Resource[T, C, U]) Create(ctx context.Context, in C) (*T, error) {
	var out T
	if err := r.transport.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   r.base,
		Body:   in,
	}, &out); err != nil {
		return nil, fmt.Errorf("create %s: %w", r.name, err)
	}
	return &out, nil
}

// Update patches the changed fields of a record
func (r *Resource[T, C, U]) Update(ctx context.Context, id int64, in U) (*T, error) {
	var out T
	if err := r.transport.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPatch,
		Path:   r.DetailPath(id),
		Body:   in,
	}, &out); err != nil {
		return nil, fmt.Errorf("update %s %d: %w", r.name, id, err)
	}
	return &out, nil
}

// Delete removes a record
func (r *Resource[T, C, U]) Delete(ctx context.Context, id int64) error {
	if _, err := r.transport.Do(ctx, httpclient.Request{
		Method: http.MethodDelete,
		Path:   r.DetailPath(id),
	}); err != nil {
		return fmt.Errorf("delete %s %d: %w", r.name, id, err)
	}
	return nil
}

// Action posts body to a detail action and decodes the reply into Out
func Action[Out any](ctx context.Context, t Transport, path string, body any) (*Out, error) {
	var out Out
	if err := t.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	}, &out); err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return &out, nil
}

// None is the payload type of collections that do not accept creates or updates
type None struct{}
