package repository

import "errors"

var (
	// ErrNotFound возвращается командами, не затронувшими ни одной строки
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate нарушение уникальности (например, email)
	ErrDuplicate = errors.New("duplicate record")
)
