package types

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrExternal       = errors.New("external service failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrCancelled      = errors.New("analysis cancelled")
	ErrAlreadyRunning = errors.New("analysis already running")
)
