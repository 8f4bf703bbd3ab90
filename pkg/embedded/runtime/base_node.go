package runtime

// BaseNode provides common functionality for nodes.
// Embed this in your node implementations.
type BaseNode struct {
	nodeId     string
	pluginType string
	label      string
}

// NewBaseNode creates a new base node from configuration. Nodes parse
// NodeConfig.Config into their own typed configuration.
func NewBaseNode(config EmbeddedNodeConfig) BaseNode {
	return BaseNode{
		nodeId:     config.NodeId,
		pluginType: config.PluginType,
		label:      config.Label,
	}
}

// NodeId returns the node ID.
func (n *BaseNode) NodeId() string {
	return n.nodeId
}

// PluginType returns the plugin type.
func (n *BaseNode) PluginType() string {
	return n.pluginType
}

// Label returns the node label.
func (n *BaseNode) Label() string {
	return n.label
}

// SuccessOutput creates a successful ProcessOutput with the given data.
func SuccessOutput(data map[string]interface{}) ProcessOutput {
	return ProcessOutput{
		Data:  data,
		Error: nil,
	}
}

// ErrorOutput creates a failed ProcessOutput with the given error.
func ErrorOutput(err error) ProcessOutput {
	return ProcessOutput{
		Data:  nil,
		Error: err,
	}
}

// SuccessResult creates a successful ItemResult for the item at index.
func SuccessResult(index int, payload interface{}) ItemResult {
	return ItemResult{
		Success:    true,
		Payload:    payload,
		PairedItem: index,
	}
}

// ErrorResult creates a failed ItemResult for the item at index.
func ErrorResult(index int, err error) ItemResult {
	return ItemResult{
		Success:      false,
		ErrorMessage: errorMessage(err),
		PairedItem:   index,
		Err:          err,
	}
}
