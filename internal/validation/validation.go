// Package validation checks request structs with go-playground/validator and
// reports failures as a list of readable problems.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/go-playground/validator/v10"
)

// Error lists the problems found in user input before any store call.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Invalid builds an *Error from problems.
func Invalid(problems ...string) error {
	return &Error{Problems: problems}
}

// Is reports whether err is an *Error.
func Is(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(initValidator)
	return validate
}

func initValidator() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = validate.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		return model.IsTimeSlot(fl.Field().String())
	})
	_ = validate.RegisterValidation("querytype", func(fl validator.FieldLevel) bool {
		return model.IsQueryType(fl.Field().String())
	})
}

// Struct runs struct tags and converts failures into an *Error.
func Struct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate input: %w", err)
	}

	problems := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		problems = append(problems, prettyError(e))
	}
	return Invalid(problems...)
}

func prettyError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "email":
		return e.Field() + " must be a valid email"
	case "timeslot":
		return e.Field() + " must be one of the offered time slots"
	case "querytype":
		return e.Field() + " must be one of the offered query types"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	default:
		return e.Error()
	}
}
