// Package validation checks request structs declared with `validate` tags
// and reports every failed rule as a Violation addressed by its JSON path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Violation is one failed rule on one field
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Violations is the ordered list of every rule a value failed
type Violations []Violation

func (v Violations) Error() string {
	msgs := make([]string, len(v))
	for i, violation := range v {
		msgs[i] = violation.Message
	}
	return strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// Struct validates s and returns nil when every rule holds. Violations are
// reported in field declaration order, slice elements in index order.
func Struct(s interface{}) Violations {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Violations{{Rule: "invalid", Message: err.Error()}}
	}

	out := make(Violations, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fieldPath(fe.Namespace())
		out = append(out, Violation{
			Field:   path,
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: message(path, fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(path string, fe validator.FieldError) string {
	kind := fe.Kind()
	isLen := kind == reflect.String || kind == reflect.Slice || kind == reflect.Map

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "min":
		if kind == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", path, fe.Param())
		}
		if isLen {
			return fmt.Sprintf("%s must contain at least %s item(s)", path, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "max":
		if kind == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", path, fe.Param())
		}
		if isLen {
			return fmt.Sprintf("%s must contain at most %s item(s)", path, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", path, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", path, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", path, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", path, fe.Param())
	case "alphanum":
		return fmt.Sprintf("%s must contain only letters and digits", path)
	default:
		return fmt.Sprintf("%s failed the %s rule", path, fe.Tag())
	}
}
