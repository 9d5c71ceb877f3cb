package contextutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct checks a struct against its `validate` tags and returns an
// INVALID_INPUT AppError describing every failed field.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return WrapError(err, "validation error")
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return NewAppErrorWithCause(ErrorCodeInvalidInput, SeverityWarn, ErrInvalidInput.Message, strings.Join(problems, "; "), err)
}

// ValidateRange rejects values outside [lo, hi] with INVALID_INPUT.
func ValidateRange(field string, value, lo, hi float64) error {
	if err := validate.Var(value, fmt.Sprintf("gte=%v,lte=%v", lo, hi)); err != nil {
		return InvalidInputf("%s must be between %v and %v, got %v", field, lo, hi, value)
	}
	return nil
}
