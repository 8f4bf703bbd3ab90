package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
	"github.com/wehubfusion/trestle/pkg/message"
)

// DefaultPluginType is used when a request names no plugin type.
const DefaultPluginType = "plugin-trestle"

// NodeProcessor executes batch requests against nodes built by a factory.
type NodeProcessor struct {
	factory runtime.EmbeddedNodeFactory
}

// NewNodeProcessor creates a processor that builds one node per request.
func NewNodeProcessor(factory runtime.EmbeddedNodeFactory) *NodeProcessor {
	return &NodeProcessor{factory: factory}
}

// Process builds the requested node and runs it over the request items.
// Node creation and batch aborts are reported on the response; the returned
// error is always nil.
func (p *NodeProcessor) Process(ctx context.Context, req *message.BatchRequest) (*message.BatchResponse, error) {
	start := time.Now()
	resp := message.NewBatchResponse(req)

	pluginType := req.PluginType
	if pluginType == "" {
		pluginType = DefaultPluginType
	}
	node, err := p.factory.Create(runtime.EmbeddedNodeConfig{
		NodeId:     req.NodeID,
		Label:      req.Label,
		PluginType: pluginType,
		NodeConfig: runtime.NodeConfig{
			NodeId:     req.NodeID,
			WorkflowId: workflowID(req),
			Config:     req.Configuration,
		},
	})
	if err != nil {
		return resp.WithError(fmt.Errorf("failed to create node: %w", err)), nil
	}

	batchNode, ok := node.(runtime.BatchNode)
	if !ok {
		return resp.WithError(fmt.Errorf("plugin type '%s' does not support batch execution", pluginType)), nil
	}

	ec := runtime.NewStaticContext(req.Items, nil, req.ContinueOnFail)
	for i, params := range req.ItemParameters {
		for name, value := range params {
			ec.SetItemParameter(i, name, value)
		}
	}

	results, err := batchNode.Execute(ctx, ec)
	return resp.WithResults(results).WithError(err).WithDuration(time.Since(start)), nil
}

func workflowID(req *message.BatchRequest) string {
	if req.Workflow == nil {
		return ""
	}
	return req.Workflow.WorkflowID
}
