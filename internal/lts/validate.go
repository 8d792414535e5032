package lts

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/signalnine/matbench/internal/models"
)

// SchemaValidationError reports the first payload field violating the
// schema. Field is the dotted JSON path of the field.
type SchemaValidationError struct {
	Schema string
	Field  string
	Tag    string
	Param  string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	rule := e.Tag
	if e.Param != "" {
		rule += "=" + e.Param
	}
	return fmt.Sprintf("payload does not match schema %s: field %s fails %q", e.Schema, e.Field, rule)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks p against the validation tags of the payload model.
func Validate(p *models.Payload) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating payload: %w", err)
	}
	fe := verrs[0]
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	return &SchemaValidationError{
		Schema: p.Metadata.SchemaName,
		Field:  field,
		Tag:    fe.Tag(),
		Param:  fe.Param(),
		Err:    err,
	}
}
