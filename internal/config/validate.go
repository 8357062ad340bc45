package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report keys as they are spelled in the config file
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks if the configuration is valid. Every problem is reported.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var errs error
	for _, fe := range fieldErrs {
		errs = multierr.Append(errs, fieldError(fe))
	}
	return errs
}

func fieldError(fe validator.FieldError) error {
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("missing %q", key)
	case "url":
		return fmt.Errorf("%q must be a URL, got %q", key, fe.Value())
	case "oneof":
		return fmt.Errorf("%q must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Errorf("%q must be greater than %s", key, fe.Param())
	case "gte":
		return fmt.Errorf("%q must be at least %s", key, fe.Param())
	default:
		return fmt.Errorf("%q failed %s validation", key, fe.Tag())
	}
}
