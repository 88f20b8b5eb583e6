package models

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUserNotFound        = wrapNotFound("user not found")
	ErrImageNotFound       = wrapNotFound("image not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAlreadyFinalized    = errors.New("transaction already finalized")
	ErrPersistence         = errors.New("persistence failure")
	ErrExternalService     = errors.New("external service failure")
)

type notFoundError struct{ msg string }

func wrapNotFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return ErrNotFound }
