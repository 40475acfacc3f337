package emissions

import "fmt"

type constError string

func (e constError) Error() string { return string(e) }

const (
	// ErrInvalidInput is returned for negative or non-finite calculator input
	ErrInvalidInput = constError("invalid input")

	// ErrConfiguration is matched by every *ConfigurationError
	ErrConfiguration = constError("invalid coefficient table")
)

// ConfigurationError reports a malformed coefficient table field
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

// Is lets errors.Is match ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func invalidInput(name string, v float64) error {
	return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", ErrInvalidInput, name, v)
}
