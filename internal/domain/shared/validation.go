package shared

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names so errors line up with server payloads
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		// Compare decimals numerically so gt/gte/lte tags work on money fields
		validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(Date); ok && !d.IsZero() {
				return d.String()
			}
			return ""
		}, Date{})
		validate.RegisterCustomTypeFunc(optionalValue[int64], Optional[int64]{})
		validate.RegisterCustomTypeFunc(optionalValue[int], Optional[int]{})
		validate.RegisterCustomTypeFunc(optionalValue[Date], Optional[Date]{})
	})
	return validate
}

// Validate checks v against its `validate` struct tags and returns an
// APIError of kind validation describing every failed field.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(map[string][]string{"non_field_errors": {err.Error()}})
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := fieldPath(fe)
		fields[name] = append(fields[name], describe(fe))
	}
	return NewValidationError(fields)
}

// fieldPath strips the top level struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "gt":
		return "Ensure this value is greater than " + fe.Param() + "."
	case "gte", "min":
		return "Ensure this value is at least " + fe.Param() + "."
	case "lte", "max":
		return "Ensure this value is at most " + fe.Param() + "."
	case "oneof":
		return "Must be one of: " + fe.Param() + "."
	default:
		return "Invalid value (" + fe.Tag() + ")."
	}
}
