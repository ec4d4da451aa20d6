package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
)

var (
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return ValidCurrency(fl.Field().String())
		})
	})
	return validate
}

// Struct validates v against its `validate` tags and returns an apperr validation
// error naming the offending fields.
func Struct(v interface{}) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("invalid input")
	}

	details := make(map[string]interface{}, len(fieldErrs))
	first := ""
	for _, fe := range fieldErrs {
		msg := describe(fe)
		details[fe.Field()] = msg
		if first == "" {
			first = msg
		}
	}
	e := apperr.Validation(first)
	e.Details = details
	return e
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return field + " must be at least " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "max", "lte":
		return field + " must be at most " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "currency":
		return field + " must be a 3-letter ISO currency code"
	case "uuid", "uuid4":
		return field + " must be a UUID"
	default:
		return field + " is invalid"
	}
}

// ValidClientID accepts UUIDs, the correlation id format clients generate.
func ValidClientID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func ValidCurrency(code string) bool {
	return currencyRe.MatchString(code)
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
