package runtime

import (
	"errors"
	"fmt"

	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
)

// Common errors used throughout the runtime.
var (
	// ErrNoExecutor is returned when no creator is registered for a plugin type.
	ErrNoExecutor = errors.New("no executor registered for plugin type")

	// ErrInvalidConfig is returned when the node configuration is invalid.
	ErrInvalidConfig = errors.New("invalid node configuration")

	// ErrIncompleteBatch is returned when a batch ends without a result for every item.
	ErrIncompleteBatch = errors.New("batch finished without a result for every item")
)

// ProcessingError wraps an item failure with the node and item it happened in.
type ProcessingError struct {
	// NodeId is the ID of the node that caused the error
	NodeId string
	// NodeLabel is the human-readable name of the node
	NodeLabel string
	// PluginType is the type of the node
	PluginType string
	// ItemIndex is the index of the item being processed (-1 if not tied to an item)
	ItemIndex int
	// Phase indicates which phase of processing failed
	Phase string
	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	node := fmt.Sprintf("processing error in node %s (%s) [%s]", e.NodeLabel, e.NodeId, e.PluginType)
	if e.ItemIndex >= 0 {
		return fmt.Sprintf("%s at item %d during %s: %v", node, e.ItemIndex, e.Phase, e.Cause)
	}
	return fmt.Sprintf("%s during %s: %v", node, e.Phase, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError creates a new processing error.
func NewProcessingError(nodeId, nodeLabel, pluginType string, itemIndex int, phase string, cause error) *ProcessingError {
	return &ProcessingError{
		NodeId:     nodeId,
		NodeLabel:  nodeLabel,
		PluginType: pluginType,
		ItemIndex:  itemIndex,
		Phase:      phase,
		Cause:      cause,
	}
}

// ItemIndexOf returns the item index carried by err, or -1.
func ItemIndexOf(err error) int {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.ItemIndex
	}
	return -1
}

func errorMessage(err error) string {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		err = pe.Cause
	}
	return sdkerrors.Message(err)
}

// IsPermanentError determines if an error is permanent, i.e. resending the same
// input would fail the same way.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrNoExecutor) ||
		sdkerrors.IsConfiguration(err)
}
