package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/trestle/pkg/concurrency"
	"github.com/wehubfusion/trestle/pkg/embedded/processors"
	"github.com/wehubfusion/trestle/pkg/embedded/processors/trestle"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
	"github.com/wehubfusion/trestle/pkg/message"
	"github.com/wehubfusion/trestle/pkg/runner"
)

// errBatchAborted is returned after an aborted batch response has been printed.
var errBatchAborted = errors.New("batch aborted")

type runOptions struct {
	nodeID         string
	config         string
	items          string
	params         string
	continueOnFail bool
	workers        int
}

func runCmd(g *globals) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch against the Trestle API and print the results",
		Long: `Run executes the Trestle node once over a batch of items and prints the
batch response as JSON. --config, --items and --item-params accept inline JSON,
@path to read a file, or - to read stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.nodeID, "node-id", "trestle", "node identifier reported in errors")
	cmd.Flags().StringVar(&opts.config, "config", "{}", "node configuration JSON")
	cmd.Flags().StringVar(&opts.items, "items", "[{}]", "input items JSON array")
	cmd.Flags().StringVar(&opts.params, "item-params", "", "per-item parameter overrides JSON array")
	cmd.Flags().BoolVar(&opts.continueOnFail, "continue-on-fail", false, "turn item failures into error results")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "items processed in parallel (0 uses TRESTLE_BATCH_WORKERS)")

	return cmd
}

func runBatch(cmd *cobra.Command, g *globals, opts *runOptions) error {
	configJSON, err := readInput(cmd.InOrStdin(), opts.config)
	if err != nil {
		return fmt.Errorf("--config: %w", err)
	}
	req := message.NewBatchRequest(opts.nodeID, json.RawMessage(configJSON), nil).
		WithContinueOnFail(opts.continueOnFail)
	req.PluginType = trestle.PluginType

	itemsJSON, err := readInput(cmd.InOrStdin(), opts.items)
	if err != nil {
		return fmt.Errorf("--items: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &req.Items); err != nil {
		return fmt.Errorf("--items: invalid JSON array: %w", err)
	}
	if req.Items == nil {
		req.Items = []runtime.Item{}
	}
	if opts.params != "" {
		paramsJSON, err := readInput(cmd.InOrStdin(), opts.params)
		if err != nil {
			return fmt.Errorf("--item-params: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &req.ItemParameters); err != nil {
			return fmt.Errorf("--item-params: invalid JSON array: %w", err)
		}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	cc := concurrency.LoadConfig()
	batchConfig := runtime.DefaultBatchConfig().WithWorkers(cc.BatchWorkers)
	if opts.workers > 0 {
		batchConfig = batchConfig.WithWorkers(opts.workers)
	}
	limiter := concurrency.NewLimiter(cc.MaxConcurrent)
	factory := processors.NewProcessorRegistry(
		trestle.WithLogger(g.logger),
		trestle.WithLimiter(limiter),
		trestle.WithBatchConfig(batchConfig),
	)

	resp, err := runner.NewNodeProcessor(factory).Process(cmd.Context(), req)
	if err != nil {
		return err
	}
	g.logger.Debug("Limiter stats", limiterFields(limiter)...)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if resp.Failed() {
		return fmt.Errorf("%w: %s", errBatchAborted, resp.Error)
	}
	return nil
}

// limiterFields describes how much the shared limiter was used.
func limiterFields(l *concurrency.Limiter) []zap.Field {
	m := l.GetMetrics()
	return []zap.Field{
		zap.Int("capacity", l.Capacity()),
		zap.Int64("acquired", m.TotalAcquired),
		zap.Int64("peak_concurrent", m.PeakConcurrent),
		zap.Duration("avg_wait", l.GetAverageWaitTime()),
	}
}

// readInput resolves an inline JSON value, @file or - for stdin.
func readInput(stdin io.Reader, value string) ([]byte, error) {
	switch {
	case value == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(value, "@"):
		return os.ReadFile(strings.TrimPrefix(value, "@"))
	default:
		return []byte(value), nil
	}
}
