package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(useJSONTagNames)
	return v
}

// Report fields by 'json' tag instead of struct field name
// Look at documentation of 'RegisterTagNameFunc' for more details
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func fieldErrorMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return "Value is too short (minimum " + fieldError.Param() + ")"
	case "max":
		return "Value is too long (maximum " + fieldError.Param() + ")"
	default:
		return "Invalid value"
	}
}
