package model

import "errors"

var (
	// ErrInvalidMode is returned when a request names an unknown conversation mode.
	ErrInvalidMode = errors.New("invalid conversation mode")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")
)
