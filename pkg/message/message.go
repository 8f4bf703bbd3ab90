// Package message defines the batch request and response exchanged with the
// Trestle worker over NATS request/reply.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
)

// Workflow represents workflow execution information
type Workflow struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
}

// BatchRequest asks the worker to run one node over a batch of items.
type BatchRequest struct {
	// CorrelationID ties the response to this request. One is generated when empty.
	CorrelationID string `json:"correlationId,omitempty"`

	// Workflow contains workflow execution information
	Workflow *Workflow `json:"workflow,omitempty"`

	// NodeID identifies the node instance
	NodeID string `json:"nodeId"`

	// PluginType selects the node; empty means plugin-trestle
	PluginType string `json:"pluginType,omitempty"`

	// Label is the human-readable node name
	Label string `json:"label,omitempty"`

	// Configuration is the node configuration
	Configuration json.RawMessage `json:"configuration,omitempty"`

	// Items is the ordered input batch
	Items []runtime.Item `json:"items"`

	// ItemParameters holds host-resolved parameters; entry i applies to Items[i] only
	ItemParameters []map[string]interface{} `json:"itemParameters,omitempty"`

	// ContinueOnFail turns item failures into error results
	ContinueOnFail bool `json:"continueOnFail"`

	// Metadata holds additional key-value pairs for the request
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is the timestamp when the request was created
	CreatedAt string `json:"createdAt"`
}

// BatchResponse carries the results of a BatchRequest.
type BatchResponse struct {
	CorrelationID string `json:"correlationId"`
	NodeID        string `json:"nodeId,omitempty"`

	// Results holds one entry per input item, in input order. It is empty when
	// the batch was aborted.
	Results []runtime.ItemResult `json:"results"`

	// Error is set when the batch was aborted
	Error string `json:"error,omitempty"`

	// ItemIndex is the failing item when the abort is tied to one
	ItemIndex *int `json:"itemIndex,omitempty"`

	DurationMs int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

// NewBatchRequest creates a request with a fresh correlation ID.
func NewBatchRequest(nodeID string, configuration json.RawMessage, items []runtime.Item) *BatchRequest {
	return &BatchRequest{
		CorrelationID: uuid.NewString(),
		NodeID:        nodeID,
		Configuration: configuration,
		Items:         items,
		Metadata:      make(map[string]string),
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
}

// WithContinueOnFail sets the failure policy
func (r *BatchRequest) WithContinueOnFail(continueOnFail bool) *BatchRequest {
	r.ContinueOnFail = continueOnFail
	return r
}

// WithWorkflow adds workflow information to the request
func (r *BatchRequest) WithWorkflow(workflowID, runID string) *BatchRequest {
	r.Workflow = &Workflow{WorkflowID: workflowID, RunID: runID}
	return r
}

// WithMetadata adds metadata to the request
func (r *BatchRequest) WithMetadata(key, value string) *BatchRequest {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// EnsureCorrelationID assigns a correlation ID if the request has none and returns it.
func (r *BatchRequest) EnsureCorrelationID() string {
	if r.CorrelationID == "" {
		r.CorrelationID = uuid.NewString()
	}
	return r.CorrelationID
}

// Validate checks the request shape.
func (r *BatchRequest) Validate() error {
	if r.NodeID == "" {
		return fmt.Errorf("nodeId is required")
	}
	if r.Items == nil {
		return fmt.Errorf("items is required")
	}
	if len(r.ItemParameters) > len(r.Items) {
		return fmt.Errorf("itemParameters has %d entries for %d items", len(r.ItemParameters), len(r.Items))
	}
	return nil
}

// ToBytes serializes the request to JSON bytes
func (r *BatchRequest) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// RequestFromBytes deserializes a request from JSON bytes
func RequestFromBytes(data []byte) (*BatchRequest, error) {
	var req BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// NewBatchResponse creates an empty response for req.
func NewBatchResponse(req *BatchRequest) *BatchResponse {
	resp := &BatchResponse{
		Results:   []runtime.ItemResult{},
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if req != nil {
		resp.CorrelationID = req.CorrelationID
		resp.NodeID = req.NodeID
	}
	return resp
}

// WithResults sets the results
func (r *BatchResponse) WithResults(results []runtime.ItemResult) *BatchResponse {
	if results == nil {
		results = []runtime.ItemResult{}
	}
	r.Results = results
	return r
}

// WithError records an aborted batch. Results are cleared.
func (r *BatchResponse) WithError(err error) *BatchResponse {
	if err == nil {
		return r
	}
	r.Results = []runtime.ItemResult{}
	r.Error = err.Error()
	if idx := runtime.ItemIndexOf(err); idx >= 0 {
		r.ItemIndex = &idx
	}
	return r
}

// WithDuration records how long the batch took
func (r *BatchResponse) WithDuration(d time.Duration) *BatchResponse {
	r.DurationMs = d.Milliseconds()
	return r
}

// Failed reports whether the batch was aborted.
func (r *BatchResponse) Failed() bool {
	return r.Error != ""
}

// ToBytes serializes the response to JSON bytes
func (r *BatchResponse) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// ResponseFromBytes deserializes a response from JSON bytes
func ResponseFromBytes(data []byte) (*BatchResponse, error) {
	var resp BatchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
