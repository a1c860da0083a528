package operation

import (
	"fmt"

	"github.com/menta2k/magickplan/pkg/types"
)

// ConfigurationError reports an invalid or missing operation setting
type ConfigurationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s configuration: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("invalid %s configuration: %s %s", e.Op, e.Field, e.Reason)
}

// MissingPrerequisiteError reports that an operation ran before its requirement was resolved
type MissingPrerequisiteError struct {
	Op          string
	Requirement types.Requirement
}

func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("%s requires %q on the incoming image state", e.Op, e.Requirement)
}

func invalid(op, field, reason string) error {
	return &ConfigurationError{Op: op, Field: field, Reason: reason}
}

func positive(op, field string, v int) error {
	if v <= 0 {
		return invalid(op, field, fmt.Sprintf("must be positive, got %d", v))
	}
	return nil
}

func checkState(op string, state types.ImageState) error {
	if state.Width <= 0 || state.Height <= 0 {
		return fmt.Errorf("%s: image state has non-positive size %dx%d", op, state.Width, state.Height)
	}
	return nil
}
