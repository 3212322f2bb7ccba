package domain

import "errors"

// Repository sentinel errors. Services translate them into pkg/errors AppErrors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("concurrent modification")
)
