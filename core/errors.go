package core

import "errors"

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("not authorized")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("already exists")
)
