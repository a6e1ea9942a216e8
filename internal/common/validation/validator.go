// Package validation checks request payloads with go-playground/validator
// struct tags.
package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"link-router/internal/common/errors"
)

// Validator validates structs and reports failures by their JSON field names.
type Validator struct {
	validator *validator.Validate
}

// FieldError describes a single failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// New creates a validator.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validator: v}
}

// Struct validates s. Failures come back as a validation AppError naming
// every failed field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	fields := v.Fields(err)
	if len(fields) == 0 {
		return errors.ValidationError(err.Error())
	}

	messages := make([]string, len(fields))
	for i, f := range fields {
		messages[i] = f.Message
	}
	return errors.ValidationError(strings.Join(messages, "; "))
}

// Fields extracts the per-field failures from a validator error.
func (v *Validator) Fields(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return fields
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
