package runtime

import (
	"context"
	"encoding/json"
)

// Item is one element of the input batch. Nodes treat it as read-only.
type Item map[string]interface{}

// EmbeddedNodeConfig represents the configuration for a node instance.
type EmbeddedNodeConfig struct {
	// NodeId is the unique identifier for this node
	NodeId string `json:"nodeId"`
	// Label is the human-readable name for this node
	Label string `json:"label"`
	// PluginType identifies which processor handles this node
	PluginType string `json:"pluginType"`
	// NodeConfig contains the node-specific configuration
	NodeConfig NodeConfig `json:"nodeConfig"`
}

// NodeConfig contains the detailed configuration for a node.
type NodeConfig struct {
	// NodeId is the unique identifier (matches parent EmbeddedNodeConfig.NodeId)
	NodeId string `json:"node_id"`
	// WorkflowId is the ID of the workflow this node belongs to
	WorkflowId string `json:"workflow_id"`
	// Config contains the node-specific configuration as raw JSON
	Config json.RawMessage `json:"config"`
}

// ProcessInput contains all data needed for a node to process one item.
type ProcessInput struct {
	// Ctx is the context for cancellation and timeouts
	Ctx context.Context
	// Data is the item being processed
	Data map[string]interface{}
	// Config is the node-specific configuration (parsed from NodeConfig.Config)
	Config map[string]interface{}
	// RawConfig is the original raw JSON configuration
	RawConfig json.RawMessage
	// NodeId is the ID of the node being processed
	NodeId string
	// PluginType is the type of processor handling this node
	PluginType string
	// Label is the human-readable name of the node
	Label string
	// ItemIndex is the current iteration index (-1 if not iterating)
	ItemIndex int
	// TotalItems is the total number of items in iteration (0 if not iterating)
	TotalItems int
}

// ProcessOutput contains the result of single-item processing.
type ProcessOutput struct {
	// Data is the output data from the node
	Data map[string]interface{}
	// Error is set if processing failed
	Error error
}

// ItemResult is the outcome of one input item. PairedItem always holds the
// index of the item it came from.
type ItemResult struct {
	Success      bool        `json:"success"`
	Payload      interface{} `json:"payload,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	PairedItem   int         `json:"pairedItem"`

	// Err is the underlying failure; it is not serialized.
	Err error `json:"-"`

	cancelled bool
}

// BatchItem represents a single item to be processed in concurrent execution.
type BatchItem struct {
	// Index is the original position in the batch (for result ordering)
	Index int
	// Data is the item data to process
	Data Item
}
