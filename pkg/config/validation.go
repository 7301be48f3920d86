package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// Validator is implemented by configuration structs with checks beyond
// required tags. Load calls it last. A returned *sserr.Error passes through
// unchanged; any other error is wrapped as [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, isSSErr := sserr.AsError(err); isSSErr {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateRequired reports the first zero field tagged required:"true",
// naming it by its dotted path (e.g. "Token.SigningKey").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if isNested(field) {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") != "true" || !field.IsZero() {
			continue
		}

		err := sserr.Newf(sserr.CodeValidationRequired,
			"config: required field %q is empty", fieldPath)
		if env := sf.Tag.Get("env"); env != "" {
			err = err.WithDetail("env", env)
		}
		return err
	}
	return nil
}
