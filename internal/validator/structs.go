package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
)

var (
	structValidator *playground.Validate
	once            sync.Once
)

func instance() *playground.Validate {
	once.Do(func() {
		structValidator = playground.New(playground.WithRequiredStructEnabled())
		structValidator.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
	})
	return structValidator
}

// Struct checks the `validate` tags of a request struct and returns a
// message describing the first failing field.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors playground.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err
	}

	fe := fieldErrors[0]
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "email":
		return fmt.Errorf("%s must be a valid email", field)
	case "min":
		return fmt.Errorf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "hexcolor":
		return fmt.Errorf("%s must be a hex color", field)
	case "url":
		return fmt.Errorf("%s must be a URL", field)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
