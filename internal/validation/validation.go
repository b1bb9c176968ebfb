// Package validation adapts go-playground/validator to echo.
package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator implements echo.Validator. Field names in errors are taken from
// json tags so they match the request body.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return &Validator{validate: v}
}

// Validate checks i against its validate tags. Failures are returned as
// validator.ValidationErrors listing every offending field.
func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}
