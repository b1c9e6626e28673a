// internal/common/utils/validator.go
// Input validation using struct tags

package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Global validator instance
var validate = validator.New()

// ValidateStruct validates a struct based on its tags
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err != nil {
		var messages []string
		for _, err := range err.(validator.ValidationErrors) {
			messages = append(messages, formatFieldError(err))
		}
		return errors.New(strings.Join(messages, ", "))
	}
	return nil
}

// formatFieldError converts validator errors to human-readable messages
func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
