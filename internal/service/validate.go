package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// decimal.Decimal is a struct; expose it as a number so gt/gte tags apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the validate tags on req and reports every failing
// field as a single ErrInvalid.
func validateStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", store.ErrInvalid, strings.Join(parts, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "min":
		return field + " must have at least " + fe.Param() + " characters or items"
	case "max":
		return field + " must have at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	}
	return field + " is invalid"
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalid, fmt.Sprintf(format, args...))
}

// Fractional digits quantities and money amounts may carry.
const (
	maxQuantityScale = 3
	maxMoneyScale    = 2
)

func checkQuantityScale(field string, qty decimal.Decimal) error {
	if !qty.Equal(qty.Truncate(maxQuantityScale)) {
		return invalidf("%s supports at most %d decimal places", field, maxQuantityScale)
	}
	return nil
}

func checkMoneyScale(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(maxMoneyScale)) {
		return invalidf("%s supports at most %d decimal places", field, maxMoneyScale)
	}
	return nil
}
