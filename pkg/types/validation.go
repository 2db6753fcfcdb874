package types

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldErrors maps a failing struct field to the error surfaced to callers.
var fieldErrors = map[string]error{
	"Name":      ErrUserNameRequired,
	"SessionID": ErrSessionRequired,
	"Event":     ErrEventRequired,
	"Order":     ErrInvalidOrder,
}

// Validate ensures the user carries the fields the registry requires.
func (u *User) Validate() error {
	u.Name = strings.TrimSpace(u.Name)
	return validateStruct(u)
}

// Validate ensures the activity carries an event and an owning session.
func (a *Activity) Validate() error {
	return validateStruct(a)
}

// ValidateName returns err when name is blank.
func ValidateName(name string, err error) error {
	if strings.TrimSpace(name) == "" {
		return err
	}
	return nil
}

// ValidateRequest validates an arbitrary request struct with validator tags and
// maps the first failure to a ValidationError.
func ValidateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return NewValidationError(fieldErrs[0].Field() + " is " + fieldErrs[0].Tag())
		}
		return NewValidationError(err.Error())
	}
	return nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		if mapped, ok := fieldErrors[fieldErrs[0].StructField()]; ok {
			return mapped
		}
		return NewValidationError(fieldErrs[0].Error())
	}
	return NewValidationError(err.Error())
}
