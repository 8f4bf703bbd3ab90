// Package trestle implements the Trestle phone and contact verification node.
package trestle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/wehubfusion/trestle/pkg/concurrency"
	"github.com/wehubfusion/trestle/pkg/credentials"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
	"github.com/wehubfusion/trestle/pkg/trestleapi"
)

const (
	// PluginType is the plugin type the node registers under.
	PluginType = "plugin-trestle"

	// TracerName is the instrumentation scope of the node's batch and item spans.
	TracerName = "trestle/processors/trestle"
)

// Node calls the Trestle API once per input item.
type Node struct {
	runtime.BaseNode

	cfg         Config
	transport   trestleapi.Transport
	endpoints   trestleapi.Endpoints
	creds       credentials.Provider
	limiter     *concurrency.Limiter
	batchConfig *runtime.BatchConfig
	logger      *zap.Logger
	executor    *runtime.BatchExecutor
}

// Option configures a Node.
type Option func(*Node)

// WithTransport replaces the resty-backed client.
func WithTransport(t trestleapi.Transport) Option {
	return func(n *Node) { n.transport = t }
}

// WithEndpoints overrides the API endpoints.
func WithEndpoints(e trestleapi.Endpoints) Option {
	return func(n *Node) { n.endpoints = e }
}

// WithCredentials sets the credential provider. Defaults to the environment.
func WithCredentials(p credentials.Provider) Option {
	return func(n *Node) { n.creds = p }
}

// WithLimiter gates every outbound call on a shared limiter.
func WithLimiter(l *concurrency.Limiter) Option {
	return func(n *Node) { n.limiter = l }
}

// WithBatchConfig overrides how items are dispatched.
func WithBatchConfig(cfg runtime.BatchConfig) Option {
	return func(n *Node) { n.batchConfig = &cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewTrestleNode is the runtime.NodeCreator for PluginType.
func NewTrestleNode(config runtime.EmbeddedNodeConfig) (runtime.EmbeddedNode, error) {
	return New(config)
}

// Creator returns a runtime.NodeCreator that applies opts to every node it creates.
func Creator(opts ...Option) runtime.NodeCreator {
	return func(config runtime.EmbeddedNodeConfig) (runtime.EmbeddedNode, error) {
		return New(config, opts...)
	}
}

// New creates a node from its configuration.
func New(config runtime.EmbeddedNodeConfig, opts ...Option) (*Node, error) {
	if config.PluginType != PluginType {
		return nil, fmt.Errorf("invalid plugin type: expected '%s', got '%s'", PluginType, config.PluginType)
	}
	cfg, err := ParseConfig(config.NodeId, config.NodeConfig.Config)
	if err != nil {
		return nil, err
	}

	n := &Node{
		BaseNode:  runtime.NewBaseNode(config),
		cfg:       cfg,
		endpoints: trestleapi.EndpointsFromEnv(),
		creds:     credentials.EnvProvider{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.transport == nil {
		n.transport = trestleapi.NewClient(trestleapi.WithLogger(n.logger))
	}

	batchConfig := runtime.DefaultBatchConfig()
	if n.batchConfig != nil {
		batchConfig = *n.batchConfig
	}
	if cfg.Workers > 0 {
		batchConfig = batchConfig.WithWorkers(cfg.Workers)
	}
	n.executor = runtime.NewBatchExecutor(batchConfig,
		runtime.WithBatchLimiter(n.limiter),
		runtime.WithBatchLogger(n.logger),
		runtime.WithBatchTracer(otel.Tracer(TracerName)),
	)

	return n, nil
}

// Execute runs the configured operation for every input item of ec.
//
// The credential is fetched once per batch; failing to get it aborts the batch
// whatever the continue-on-fail setting.
func (n *Node) Execute(ctx context.Context, ec runtime.ExecuteContext) ([]runtime.ItemResult, error) {
	items := ec.InputItems()
	if len(items) == 0 {
		return []runtime.ItemResult{}, nil
	}

	cred, err := n.creds.GetCredentials(ctx, credentials.TrestleAPIName)
	if err != nil {
		return nil, runtime.NewProcessingError(n.NodeId(), n.Label(), n.PluginType(), -1, "credentials", err)
	}

	n.logger.Debug("executing trestle batch",
		zap.String("node_id", n.NodeId()),
		zap.Int("items", len(items)),
		zap.Bool("continue_on_fail", ec.ContinueOnFail()))

	return n.executor.Run(ctx, n, items, ec.ContinueOnFail(), func(ctx context.Context, index int, item runtime.Item) (interface{}, error) {
		req, err := n.BuildRequest(ec, index, cred)
		if err != nil {
			return nil, err
		}
		raw, err := n.transport.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		return trestleapi.DecodePayload(raw)
	})
}

// BuildRequest resolves the parameters of item index and builds its request.
func (n *Node) BuildRequest(ec runtime.ExecuteContext, index int, cred *credentials.TrestleAPI) (*trestleapi.Request, error) {
	items := ec.InputItems()
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("item index %d out of range [0,%d)", index, len(items))
	}
	p := itemParams{ec: ec, cfg: n.cfg, index: index, item: items[index]}

	resource := p.str("resource", n.cfg.Resource)
	operation := p.str("operation", n.cfg.Operation)

	switch {
	case resource == ResourcePhoneValidation && operation == OperationValidate:
		params, err := p.phoneValidation()
		if err != nil {
			return nil, err
		}
		return trestleapi.NewPhoneValidationRequest(n.endpoints, params, cred), nil

	case resource == ResourceRealContact && operation == OperationVerify:
		params, err := p.realContact()
		if err != nil {
			return nil, err
		}
		return trestleapi.NewRealContactRequest(n.endpoints, params, cred), nil

	default:
		return nil, sdkerrors.NewConfigurationError("The operation '%s' is not supported for resource '%s'", operation, resource)
	}
}

// Process handles a single item. input.RawConfig, when present, replaces the
// node configuration for this call.
func (n *Node) Process(input runtime.ProcessInput) runtime.ProcessOutput {
	cfg := n.cfg
	if len(input.RawConfig) > 0 {
		parsed, err := ParseConfig(n.NodeId(), input.RawConfig)
		if err != nil {
			return runtime.ErrorOutput(err)
		}
		cfg = parsed
	}

	ctx := input.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	ec := runtime.NewStaticContext([]runtime.Item{runtime.Item(input.Data)}, cfg.Params(), false)
	results, err := n.Execute(ctx, ec)
	if err != nil {
		return runtime.ErrorOutput(err)
	}
	if len(results) != 1 {
		return runtime.ErrorOutput(runtime.ErrIncompleteBatch)
	}

	if data, ok := results[0].Payload.(map[string]interface{}); ok {
		return runtime.SuccessOutput(data)
	}
	return runtime.SuccessOutput(map[string]interface{}{"result": results[0].Payload})
}

var _ runtime.BatchNode = (*Node)(nil)
