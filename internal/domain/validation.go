package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or missing fields. It is never retried.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid collection"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s %s", fe.Field, fe.Message))
	}
	return "invalid collection: " + strings.Join(parts, "; ")
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks a record that is about to be submitted or queued.
func Validate(r *CollectionRecord) error {
	return toValidationError(validate.Struct(r))
}

// ValidateDraft skips required fields but still rejects out-of-range values.
func ValidateDraft(r *CollectionRecord) error {
	type check struct {
		field string
		value any
		tag   string
	}

	checks := []check{
		{"latitude", r.Latitude, "gte=-90,lte=90"},
		{"longitude", r.Longitude, "gte=-180,lte=180"},
		{"weight", r.Weight, "gte=0"},
	}
	if r.Accuracy != nil {
		checks = append(checks, check{"accuracy", *r.Accuracy, "gte=0"})
	}
	if r.MoistureContent != nil {
		checks = append(checks, check{"moistureContent", *r.MoistureContent, "gte=0,lte=100"})
	}
	if r.QualityGrade != "" {
		checks = append(checks, check{"qualityGrade", string(r.QualityGrade), "oneof=premium standard commercial low"})
	}

	out := &ValidationError{}
	for _, c := range checks {
		var verrs validator.ValidationErrors
		if err := validate.Var(c.value, c.tag); errors.As(err, &verrs) {
			out.Errors = append(out.Errors, FieldError{Field: c.field, Message: describe(verrs[0])})
		}
	}
	if len(out.Errors) > 0 {
		return out
	}
	return nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, FieldError{
			Field:   fe.Field(),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
