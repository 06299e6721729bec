// Package validation checks user-entered structs against their validate tags.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// Message returns a human-readable description of the failure.
func (f FieldError) Message() string {
	switch f.Tag {
	case "required":
		return f.Field + " is required"
	case "min", "max":
		if f.Field == "port" {
			return "port must be between 1 and 65535"
		}
		return f.Field + " failed on " + f.Tag + "=" + f.Param
	}
	if f.Param != "" {
		return f.Field + " failed on " + f.Tag + "=" + f.Param
	}
	return f.Field + " failed on " + f.Tag
}

// Errors collects every failure of one struct.
type Errors []FieldError

func (v Errors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = f.Message()
	}
	return strings.Join(parts, "; ")
}

// Struct validates s. Failures are returned as Errors; field names follow
// the json tags.
func Struct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		failures := make(Errors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, FieldError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}
	return err
}

// IsValidationError reports whether err carries field failures.
func IsValidationError(err error) bool {
	var v Errors
	return errors.As(err, &v)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" || name == "-" {
				return fld.Name
			}
			if comma := strings.Index(name, ","); comma != -1 {
				name = name[:comma]
			}
			return name
		})
	})
	return validate
}
