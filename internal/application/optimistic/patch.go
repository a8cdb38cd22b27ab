package optimistic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/erp/crm/internal/infrastructure/cache"
)

// PatchFunc computes a new cache value from the old one. It must not mutate old.
type PatchFunc func(old json.RawMessage) (json.RawMessage, error)

// Patch is an optimistic write to one key or to every key matching a pattern
type Patch struct {
	Key   cache.Key
	Apply PatchFunc
}

// UpdateInLists merges the set fields of patch into record id on every cached list page
func UpdateInLists(resource string, id int64, patch any) Patch {
	return Patch{Key: cache.AllLists(resource), Apply: MergeIntoList(id, patch)}
}

// UpdateDetail merges the set fields of patch into the cached record id
func UpdateDetail(resource string, id int64, patch any) Patch {
	return Patch{Key: cache.DetailKey(resource, id), Apply: MergeIntoRecord(patch)}
}

// RemoveFromLists drops record id from every cached list page
func RemoveFromLists(resource string, id int64) Patch {
	return Patch{Key: cache.AllLists(resource), Apply: RemoveFromList(id)}
}

// MergeIntoRecord overlays the JSON fields of patch onto a record.
// Update payloads leave unset fields out, so only changed fields are written;
// an explicit null overwrites the cached value.
func MergeIntoRecord(patch any) PatchFunc {
	return func(old json.RawMessage) (json.RawMessage, error) {
		fields, err := patchFields(patch)
		if err != nil {
			return nil, err
		}
		return mergeObject(old, fields)
	}
}

// MergeIntoList overlays patch onto the element of a page's results whose id matches
func MergeIntoList(id int64, patch any) PatchFunc {
	return func(old json.RawMessage) (json.RawMessage, error) {
		fields, err := patchFields(patch)
		if err != nil {
			return nil, err
		}
		return mapResults(old, func(item json.RawMessage) (json.RawMessage, bool, error) {
			if !hasID(item, id) {
				return item, true, nil
			}
			merged, err := mergeObject(item, fields)
			return merged, true, err
		})
	}
}

// RemoveFromList drops every element with the given id and adjusts count
func RemoveFromList(id int64) PatchFunc {
	return func(old json.RawMessage) (json.RawMessage, error) {
		return mapResults(old, func(item json.RawMessage) (json.RawMessage, bool, error) {
			return item, !hasID(item, id), nil
		})
	}
}

func patchFields(patch any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("patch must encode to an object: %w", err)
	}
	return fields, nil
}

func mergeObject(old json.RawMessage, fields map[string]json.RawMessage) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(old, &obj); err != nil {
		return nil, fmt.Errorf("decode cached record: %w", err)
	}
	for k, v := range fields {
		obj[k] = v
	}
	return json.Marshal(obj)
}

// mapResults rewrites the results array of a page envelope. fn returns the
// new item and whether to keep it.
func mapResults(old json.RawMessage, fn func(json.RawMessage) (json.RawMessage, bool, error)) (json.RawMessage, error) {
	var page map[string]json.RawMessage
	if err := json.Unmarshal(old, &page); err != nil {
		return nil, fmt.Errorf("decode cached page: %w", err)
	}

	var items []json.RawMessage
	if raw, ok := page["results"]; ok && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode cached results: %w", err)
		}
	}

	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		next, keep, err := fn(item)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, next)
		}
	}

	results, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	page["results"] = results

	if removed := len(items) - len(out); removed > 0 {
		if raw, ok := page["count"]; ok {
			var count int
			if err := json.Unmarshal(raw, &count); err == nil {
				count -= removed
				if count < 0 {
					count = 0
				}
				page["count"], _ = json.Marshal(count)
			}
		}
	}
	return json.Marshal(page)
}

func hasID(item json.RawMessage, id int64) bool {
	var rec struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(item, &rec); err != nil || rec.ID == nil {
		return false
	}
	return *rec.ID == id
}
