package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("participant not found")
	ErrStorage       = errors.New("storage failure")
	ErrNotConfigured = errors.New("store is not configured")
)
