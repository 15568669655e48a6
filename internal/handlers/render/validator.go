package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("slug", validateSlug)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Merchant and reward ids look like "cafe-aurora" or "free_coffee"
// Empty values pass, combine with "required" when needed
func validateSlug(fl validator.FieldLevel) bool {
	value := fl.Field().String()

	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case (c == '-' || c == '_') && i > 0:
		default:
			return false
		}
	}

	return true
}

// Check value against validation tag outside of request binding
func ValidateVar(value any, tag string) error {
	return validate.Var(value, tag)
}
