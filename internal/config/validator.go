package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers PDP-specific validation rules. Must
// run before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("pdp_dsn", validatePDPDSN); err != nil {
		return fmt.Errorf("failed to register pdp_dsn validator: %w", err)
	}
	return nil
}

// validatePDPDSN checks that a connection string carries a scheme. Both
// DATABASE_URL and REDIS_URL are handed verbatim to their drivers
// (sqlx/pq and go-redis), which do the real parsing.
func validatePDPDSN(fl validator.FieldLevel) bool {
	return strings.Contains(fl.Field().String(), "://")
}

// Validate checks the Config against its struct tags and custom rules,
// returning one readable message per failing field.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, e := range verrs {
		msgs[i] = describeFieldError(e)
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "pdp_dsn":
		return fmt.Sprintf("%s must be a connection string with a scheme (e.g. postgres://..., redis://...)", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
