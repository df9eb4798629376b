package http

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/http/httpguts"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// registration only fails on an empty tag or nil func
		_ = v.RegisterValidation("http_method", validateMethod)
		validate = v
	})
	return validate
}

// Validate checks the request description and returns a validation *Error
// naming the first offending field.
func (r *Request) Validate() error {
	if r == nil {
		return NewValidationError("request cannot be nil", "request")
	}
	if err := requestValidator().Struct(r); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return NewValidationError(getErrorMessage(fe), strings.ToLower(fe.Field()))
		}
		return NewValidationError(err.Error(), "")
	}
	return nil
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s cannot be empty", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must not be negative", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "http_method":
		return fmt.Sprintf("%s %q is not a valid HTTP method token", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed validation", fe.Field())
	}
}

// validateMethod accepts any RFC 9110 method token, so extension methods
// such as PROPFIND or PURGE pass alongside the standard verbs.
func validateMethod(fl validator.FieldLevel) bool {
	return httpguts.ValidHeaderFieldName(fl.Field().String())
}
