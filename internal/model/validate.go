package model

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// formValidate is shared; validator.Validate caches struct metadata and is
// safe for concurrent use.
var formValidate = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "amount" accepts what parseAmount accepts.
	if err := v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, ok := parseAmount(fl.Field().String())
		return ok
	}); err != nil {
		panic(err)
	}
	return v
}

// validateStruct runs tag validation and converts the result to a
// *ValidationError, using each field's json name.
func validateStruct(v any) error {
	err := formValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var ve ValidationError
	for _, fe := range verrs {
		ve.Errors = append(ve.Errors, FieldError{Field: jsonName(fe), Message: tagMessage(fe)})
	}
	return &ve
}

func jsonName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Source":
		return "source"
	case "Target":
		return "target"
	case "Amount":
		return "amount"
	}
	return strings.ToLower(fe.Field())
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "amount":
		return "must be a number"
	case "gte":
		return "must not be negative"
	}
	return "failed " + fe.Tag()
}
