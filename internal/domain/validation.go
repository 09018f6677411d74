package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// jsonTagParts is the number of parts when splitting a JSON tag by comma.
const jsonTagParts = 2

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// payloadValidator returns the shared validator. Field names in errors use
// the JSON tag so they match what API callers sent.
func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", jsonTagParts)[0]
			if name == "-" {
				return ""
			}

			return name
		})

		_ = validate.RegisterValidation("notempty", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})

	return validate
}

// validationMessages maps the tags used on inbound payloads to messages.
var validationMessages = map[string]string{
	"required": "is required",
	"notempty": "is required",
	"email":    "must be a valid email address",
	"url":      "must be a valid URL",
}

// validateStruct validates v and converts failures into a *ValidationError.
func validateStruct(v any) error {
	err := payloadValidator().Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &UnclassifiedError{Cause: err}
	}

	fieldErrors := make(FieldErrors, len(validationErrs))
	for _, fe := range validationErrs {
		fieldErrors.Add(fieldPath(fe.Namespace()), validationMessage(fe))
	}

	return &ValidationError{FieldErrors: fieldErrors}
}

// fieldPath converts "OAuthSignIn.user.email" to "user.email".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}

	return namespace
}

// validationMessage returns a human-readable message for a validation error.
func validationMessage(fe validator.FieldError) string {
	tag := fe.Tag()
	param := fe.Param()

	switch tag {
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	}

	if msg, ok := validationMessages[tag]; ok {
		return msg
	}

	return "failed validation: " + tag
}
