package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidYAML indicates the overlay file failed to parse.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrMissingRequiredField indicates a required setting is unset.
	ErrMissingRequiredField = errors.New("missing required setting")

	// ErrInvalidValue indicates a setting holds an unusable value.
	ErrInvalidValue = errors.New("invalid setting value")
)

// ConfigurationError reports every problem found during validation in one
// pass so operators can fix their environment in one round trip. Entries
// are named by environment variable.
type ConfigurationError struct {
	Missing []string // unset required variables
	Invalid []string // "VAR: reason" entries
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid: %s", strings.Join(e.Invalid, "; ")))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Unwrap() error {
	if len(e.Missing) > 0 {
		return ErrMissingRequiredField
	}
	return ErrInvalidValue
}

// Empty reports whether validation found nothing wrong.
func (e *ConfigurationError) Empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// LoadError wraps overlay loading failures with file context.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
