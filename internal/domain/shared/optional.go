package shared

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Optional is a partial-update field that is either left out, set to a
// value, or cleared to null. Tag it with `omitzero` so an unset field is
// not sent at all.
type Optional[T any] struct {
	value T
	set   bool
	null  bool
}

// Some sets the field to v
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Null clears the field on the server
func Null[T any]() Optional[T] {
	return Optional[T]{set: true, null: true}
}

// IsZero reports whether the field is left out of the update
func (o Optional[T]) IsZero() bool { return !o.set }

// IsNull reports whether the field is explicitly cleared
func (o Optional[T]) IsNull() bool { return o.set && o.null }

// Get returns the value and whether one is set
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set && !o.null
}

// MarshalJSON implements json.Marshaler
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if v, ok := o.Get(); ok {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler. A present null decodes as Null.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// optionalValue exposes the set value to validator tags; unset and null
// fields validate as empty.
func optionalValue[T any](field reflect.Value) interface{} {
	o, ok := field.Interface().(Optional[T])
	if !ok {
		return nil
	}
	if v, ok := o.Get(); ok {
		return v
	}
	return nil
}
