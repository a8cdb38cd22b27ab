package shared

import (
	"net/url"
	"sort"
	"strconv"
)

// Page is the paginated list envelope returned by every list endpoint
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// HasNext reports whether another page is available
func (p *Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// Entity is implemented by every server record that can be patched inside a cached list
type Entity interface {
	EntityID() int64
}

// ListParams holds page-number pagination and resource specific filters
type ListParams struct {
	Page    int
	Filters map[string]string
}

// NewListParams returns params for the given page with no filters
func NewListParams(page int) ListParams {
	return ListParams{Page: page}
}

// With returns a copy of p with an extra filter
func (p ListParams) With(key, value string) ListParams {
	filters := make(map[string]string, len(p.Filters)+1)
	for k, v := range p.Filters {
		filters[k] = v
	}
	filters[key] = value
	p.Filters = filters
	return p
}

// PageNumber returns the effective page, defaulting to 1
func (p ListParams) PageNumber() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// Query encodes the params as URL query values
func (p ListParams) Query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.PageNumber()))
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := p.Filters[k]; v != "" {
			q.Set(k, v)
		}
	}
	return q
}
