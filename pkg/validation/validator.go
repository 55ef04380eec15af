package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError is a single violated rule
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error is returned when a payload fails validation
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation
func (e *Error) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err is or wraps an *Error
func IsValidationError(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// Struct validates v against its `validate:` tags
func Struct(v interface{}) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	return convert(err, "")
}

// Var validates a single value against tag, reporting violations under field
func Var(field string, value interface{}, tag string) error {
	err := instance().Var(value, tag)
	if err == nil {
		return nil
	}
	return convert(err, field)
}

func convert(err error, field string) error {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) {
		return err
	}

	out := &Error{Fields: make([]FieldError, 0, len(violations))}
	for _, v := range violations {
		name := field
		if name == "" {
			name = fieldPath(v)
		}
		out.Fields = append(out.Fields, FieldError{
			Field:   name,
			Rule:    v.Tag(),
			Message: message(v),
		})
	}
	return out
}

// fieldPath strips the top-level struct name from the namespace so nested
// and slice fields read as "permissions[1]" or "users[0].email"
func fieldPath(v validator.FieldError) string {
	ns := v.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return v.Field()
}

func message(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(v.Param(), " ", ", ")
	case "min":
		if v.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", v.Param())
		}
		return "must be at least " + v.Param()
	case "max":
		if v.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", v.Param())
		}
		return "must be at most " + v.Param()
	case "gt":
		return "must be greater than " + v.Param()
	case "gte":
		return "must be greater than or equal to " + v.Param()
	case "lt":
		return "must be less than " + v.Param()
	case "lte":
		return "must be at most " + v.Param()
	case "dive":
		return "is invalid"
	default:
		return fmt.Sprintf("failed %q rule", v.Tag())
	}
}
