package config

import "errors"

var (
	// ErrInvalidConfig wraps every validation failure; Validate joins them.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading the YAML file or environment.
	ErrLoadConfig = errors.New("load config failed")
)
