package auth

import (
	"chatto/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Credentials struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

// ValidateCredentials reports which field is malformed.
func ValidateCredentials(c Credentials) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		if invalid[0].Field() == "Email" {
			return errors.ErrInvalidEmail
		}
		return errors.ErrInvalidPassword
	}
	return err
}
