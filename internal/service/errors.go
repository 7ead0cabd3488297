package service

import (
	"errors"

	"github.com/Freeeeeet/tutorlink/internal/validation"
)

// Доменные ошибки. Всё остальное считается сбоем хранилища.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSessionExpired    = errors.New("session request has expired")
	ErrAlreadyRated      = errors.New("session already rated by this party")
	ErrSessionNotOver    = errors.New("session has not taken place yet")
	ErrEmptyMessage      = errors.New("empty message")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
)

// ValidationError lists the problems found in user input before any store call.
type ValidationError = validation.Error

func invalid(problems ...string) error {
	return validation.Invalid(problems...)
}

func validateStruct(v any) error {
	return validation.Struct(v)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	return validation.Is(err)
}
