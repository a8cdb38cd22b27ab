// Package cache implements the client-side query cache shared by every
// data-synchronization service.
//
// Key schema:
//
//	<resource>/list?page=<n>&<filters>   one page of a paginated list
//	<resource>/detail/<id>               a single record
//
// A key with empty fields is a pattern: ResourceKey("payments") matches every
// payments entry, AllLists("payments") every cached page of every filter set.
package cache

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/erp/crm/internal/domain/shared"
)

// Scope distinguishes list pages from single records
type Scope string

const (
	ScopeList   Scope = "list"
	ScopeDetail Scope = "detail"
)

// Key identifies a cache entry or, when partially filled, a set of entries
type Key struct {
	Resource string `json:"resource"`
	Scope    Scope  `json:"scope,omitempty"`
	ID       string `json:"id,omitempty"`
	Page     int    `json:"page,omitempty"`
	Filters  string `json:"filters,omitempty"`
}

// ResourceKey matches every entry of a resource
func ResourceKey(resource string) Key {
	return Key{Resource: resource}
}

// AllLists matches every cached list page of a resource
func AllLists(resource string) Key {
	return Key{Resource: resource, Scope: ScopeList}
}

// ListKey identifies one page of a list for a given filter set
func ListKey(resource string, params shared.ListParams) Key {
	return Key{
		Resource: resource,
		Scope:    ScopeList,
		Page:     params.PageNumber(),
		Filters:  encodeFilters(params.Filters),
	}
}

// FilteredLists matches every page of a list for a given filter set
func FilteredLists(resource string, filters map[string]string) Key {
	return Key{Resource: resource, Scope: ScopeList, Filters: encodeFilters(filters)}
}

// DetailKey identifies a single record
func DetailKey(resource string, id int64) Key {
	return Key{Resource: resource, Scope: ScopeDetail, ID: strconv.FormatInt(id, 10)}
}

// String renders the key using the documented schema
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Resource)
	if k.Scope == "" {
		return b.String()
	}
	b.WriteByte('/')
	b.WriteString(string(k.Scope))
	switch k.Scope {
	case ScopeDetail:
		if k.ID != "" {
			b.WriteByte('/')
			b.WriteString(k.ID)
		}
	case ScopeList:
		var q []string
		if k.Page > 0 {
			q = append(q, "page="+strconv.Itoa(k.Page))
		}
		if k.Filters != "" {
			q = append(q, k.Filters)
		}
		if len(q) > 0 {
			b.WriteByte('?')
			b.WriteString(strings.Join(q, "&"))
		}
	}
	return b.String()
}

// IsPattern reports whether the key can match more than one entry
func (k Key) IsPattern() bool {
	switch k.Scope {
	case ScopeDetail:
		return k.ID == ""
	case ScopeList:
		return k.Page == 0
	default:
		return true
	}
}

// Matches reports whether other falls under the pattern k.
// Empty fields in k match anything; an exact key matches only itself.
func (k Key) Matches(other Key) bool {
	if !k.IsPattern() {
		return k == other
	}
	if k.Resource != other.Resource {
		return false
	}
	if k.Scope != "" && k.Scope != other.Scope {
		return false
	}
	if k.ID != "" && k.ID != other.ID {
		return false
	}
	if k.Page != 0 && k.Page != other.Page {
		return false
	}
	if k.Filters != "" && k.Filters != other.Filters {
		return false
	}
	return true
}

func encodeFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k, v := range filters {
		if k == "page" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(filters[k]))
	}
	return strings.Join(parts, "&")
}
