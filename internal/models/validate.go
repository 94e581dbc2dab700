package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate holds the field rules declared in the validate struct tags. Failures are reported
// under their JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// check runs the tag rules of v and wraps the first failure in ErrInvalid, prefixed with kind.
func check(kind string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return Invalid("%s: %v", kind, err)
	}
	return Invalid("%s %s", kind, describe(reflect.TypeOf(v), fields[0]))
}

func describe(t reflect.Type, fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, paramName(t, fe.Param()))
	case "len":
		return fmt.Sprintf("%s must have %s characters", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s is before %s", field, paramName(t, fe.Param()))
	}
	return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
}

// paramName maps a Go field name used as a tag parameter to its JSON name.
func paramName(t reflect.Type, goName string) string {
	if f, ok := t.FieldByName(goName); ok {
		return jsonName(f)
	}
	return goName
}
