package recall

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func instance() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that the candidate carries every required field.
// The returned error wraps ErrValidation and names the failing fields.
func (c Candidate) Validate() error {
	if err := instance().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			names := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				names = append(names, fe.Field())
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(names, ","))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Validate checks the alert preference email.
func (p AlertPreference) Validate() error {
	if err := instance().Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
