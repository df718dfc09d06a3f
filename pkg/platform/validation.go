package platform

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"factory-planner/pkg/units"
)

// Validator is a wrapper around go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the planner's custom rules.
func NewValidator() *Validator {
	v := validator.New()
	// plantime accepts a positive time such as "1sec", "0.5min" or "60".
	_ = v.RegisterValidation("plantime", func(fl validator.FieldLevel) bool {
		t, err := units.ParseTime(fl.Field().String())
		return err == nil && t.IsPositive()
	})
	return &Validator{validate: v}
}

// Validate validates a struct using validation tags
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

func (v *Validator) formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, fmt.Sprintf(
				"field '%s' failed validation: %s (value: '%v')",
				e.Namespace(),
				e.Tag(),
				e.Value(),
			))
		}
		return fmt.Errorf("validation failed:\n  %s", strings.Join(messages, "\n  "))
	}
	return err
}

// ValidateConfig validates the entire configuration
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
