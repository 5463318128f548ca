package livedash

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/livefir/livedash/internal/address"
	"github.com/livefir/livedash/internal/menu"
)

var (
	// ErrNotReady is returned by Register when the control's menu item,
	// page or group is not known yet. Nothing was registered; registering
	// again once the configuration exists succeeds.
	ErrNotReady = menu.ErrNotReady

	// ErrInvalidTemplate is returned when a dynamic page expression has no
	// {x} placeholder.
	ErrInvalidTemplate = menu.ErrInvalidTemplate

	// ErrNoInstances is returned when a dynamic page expands to nothing.
	ErrNoInstances = menu.ErrNoInstances

	// ErrInstanceMismatch is returned when a dynamic page's instance names
	// and numbers differ in count.
	ErrInstanceMismatch = menu.ErrInstanceMismatch

	// ErrInvalidConfig wraps registration options that fail validation.
	ErrInvalidConfig = errors.New("livedash: invalid control configuration")

	// ErrAddressMismatch is returned when a message for a dynamic control
	// has a topic that does not match the control's topic pattern.
	ErrAddressMismatch = address.ErrNoMatch

	// ErrClosed is returned when a closed registration receives input.
	ErrClosed = errors.New("livedash: registration closed")
)

// HookError reports a failing or panicking hook. The message that triggered
// it was dropped.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("livedash: %s hook: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field-specific error
func NewFieldError(field string, err error) FieldError {
	return FieldError{Field: field, Message: err.Error()}
}

// MultiError is a collection of field errors (implements error interface)
type MultiError []FieldError

func (m MultiError) Error() string {
	if len(m) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(m))
	for _, err := range m {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidationToMultiError converts go-playground/validator errors to MultiError
func ValidationToMultiError(err error) MultiError {
	var fieldErrors MultiError

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fieldErrors
	}

	for _, e := range validationErrs {
		fieldName := strings.ToLower(e.Namespace())

		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", e.Field())
		case "min":
			message = fmt.Sprintf("%s must have at least %s entries", e.Field(), e.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of %s", e.Field(), e.Param())
		default:
			message = fmt.Sprintf("%s is invalid", e.Field())
		}

		fieldErrors = append(fieldErrors, FieldError{
			Field:   fieldName,
			Message: message,
		})
	}

	return fieldErrors
}
