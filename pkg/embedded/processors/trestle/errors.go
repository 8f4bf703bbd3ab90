package trestle

import (
	"fmt"

	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
)

// ConfigError represents a node configuration validation error. It matches
// runtime.ErrInvalidConfig.
type ConfigError struct {
	NodeID  string
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("node %s: config error [%s]: %s", e.NodeID, e.Field, e.Message)
	}
	return fmt.Sprintf("node %s: config error: %s", e.NodeID, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == runtime.ErrInvalidConfig }

func NewConfigError(nodeID, field, message string, err error) *ConfigError {
	return &ConfigError{NodeID: nodeID, Field: field, Message: message, Err: err}
}
