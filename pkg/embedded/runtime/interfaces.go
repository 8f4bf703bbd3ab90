package runtime

import "context"

// EmbeddedNode is the interface that all node processors must implement.
type EmbeddedNode interface {
	// Process executes the node's logic for a single item.
	Process(input ProcessInput) ProcessOutput

	// NodeId returns the unique identifier of this node instance.
	NodeId() string

	// PluginType returns the type of plugin this node represents.
	PluginType() string
}

// BatchNode is implemented by nodes that can execute a whole batch against a host.
type BatchNode interface {
	EmbeddedNode

	// Execute processes every input item of ec and returns one result per item.
	Execute(ctx context.Context, ec ExecuteContext) ([]ItemResult, error)
}

// EmbeddedNodeFactory creates nodes from configuration.
// It acts as a registry for node creators.
type EmbeddedNodeFactory interface {
	// Create creates a node from its configuration.
	// Returns an error if the plugin type is not registered or creation fails.
	Create(config EmbeddedNodeConfig) (EmbeddedNode, error)

	// Register registers a creator function for a plugin type.
	Register(pluginType string, creator NodeCreator)

	// HasCreator checks if a creator exists for a plugin type.
	HasCreator(pluginType string) bool

	// RegisteredTypes returns all registered plugin types.
	RegisteredTypes() []string
}

// NodeCreator is a function that creates a node from configuration.
type NodeCreator func(config EmbeddedNodeConfig) (EmbeddedNode, error)

// ExecuteContext is the host collaborator a node executes against.
type ExecuteContext interface {
	// InputItems returns the ordered input batch.
	InputItems() []Item

	// GetNodeParameter resolves a parameter for the item at itemIndex.
	// fallback is returned when the host has no value for name.
	GetNodeParameter(name string, itemIndex int, fallback interface{}) interface{}

	// ContinueOnFail reports whether item failures become error results.
	ContinueOnFail() bool
}

// ItemProcessor processes a single batch item.
// Used by the worker pool for concurrent processing.
type ItemProcessor interface {
	// ProcessItem processes a single item and returns the result.
	ProcessItem(ctx context.Context, item BatchItem) ItemResult
}

// ItemProcessorFunc adapts a function to ItemProcessor.
type ItemProcessorFunc func(ctx context.Context, item BatchItem) ItemResult

// ProcessItem calls f.
func (f ItemProcessorFunc) ProcessItem(ctx context.Context, item BatchItem) ItemResult {
	return f(ctx, item)
}

// Identity describes the node a batch runs for. BaseNode implements it.
type Identity interface {
	NodeId() string
	PluginType() string
	Label() string
}

// Metrics summarizes the item outcomes of one batch. It is reported on the
// batch log line and span.
type Metrics struct {
	// TotalItemsProcessed is the count of items processed
	TotalItemsProcessed int64
	// TotalErrors is the count of processing errors
	TotalErrors int64
	// ProcessingTimeNs is the total processing time in nanoseconds
	ProcessingTimeNs int64
	// ConcurrentWorkers is the number of workers used
	ConcurrentWorkers int
}
