// Package validation configures the struct validator shared by services:
// JSON field names in errors, English messages and the notblank rule.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// NotBlankTag rejects strings made only of whitespace.
const NotBlankTag = "notblank"

// Translator renders English validation messages.
var Translator ut.Translator

func init() {
	locale := en.New()
	Translator, _ = ut.New(locale, locale).GetTranslator("en")
}

// New returns a validator reporting fields by their JSON name, with English
// translations and the notblank rule registered.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	_ = entranslations.RegisterDefaultTranslations(v, Translator)

	_ = v.RegisterValidation(NotBlankTag, notBlank)
	_ = v.RegisterTranslation(NotBlankTag, Translator,
		func(t ut.Translator) error { return t.Add(NotBlankTag, "{0} cannot be blank", true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(NotBlankTag, fe.Field())
			return msg
		})
	return v
}

// Messages maps every failed field of err to a message. Validators built by
// New produce English sentences; others fall back to "tag=param". It
// returns nil when err is not a validation failure.
func Messages(err error) map[string]string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if msg := fe.Translate(Translator); msg != fe.Error() {
			out[fe.Field()] = msg
			continue
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Field()] = rule
	}
	return out
}

func jsonName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	return strings.TrimSpace(field.String()) != ""
}
