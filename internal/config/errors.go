package config

import "errors"

var (
	// ErrInvalidConfig marks a setting keystudy cannot run with, such as a
	// zero body limit or an unknown log format.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a config file or environment layer that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
