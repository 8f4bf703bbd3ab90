package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/trestle/internal/nats"
	"github.com/wehubfusion/trestle/pkg/concurrency"
	"github.com/wehubfusion/trestle/pkg/embedded/processors"
	"github.com/wehubfusion/trestle/pkg/embedded/processors/trestle"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
	"github.com/wehubfusion/trestle/pkg/runner"
)

type serveOptions struct {
	subject string
	queue   string
	timeout time.Duration
	workers int
}

func serveCmd(g *globals) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve batch requests over NATS request/reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), g.logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.subject, "subject", "trestle.batch", "request subject")
	cmd.Flags().StringVar(&opts.queue, "queue", "trestle-workers", "queue group shared by workers")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "maximum time for one batch")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent batches (0 uses TRESTLE_RUNNER_WORKERS)")

	return cmd
}

func serve(ctx context.Context, logger *zap.Logger, opts *serveOptions) error {
	undo := concurrency.InitializeForKubernetes(logger)
	defer undo()

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("TRESTLE_ENV"),
			Release:     "trestle@" + Version,
		})
		if err != nil {
			logger.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc := concurrency.LoadConfig()
	logger.Info("Concurrency configured", zap.String("config", cc.String()))
	workers := cc.RunnerWorkers
	if opts.workers > 0 {
		workers = opts.workers
	}

	conn, err := natsconn.Connect(ctx, natsconn.ConfigFromEnv(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := natsconn.Close(conn); err != nil {
			logger.Warn("Error closing NATS connection", zap.Error(err))
		}
	}()

	limiter := concurrency.NewLimiter(cc.MaxConcurrent)
	factory := processors.NewProcessorRegistry(
		trestle.WithLogger(logger),
		trestle.WithLimiter(limiter),
		trestle.WithBatchConfig(runtime.DefaultBatchConfig().WithWorkers(cc.BatchWorkers)),
	)

	r, err := runner.NewRunner(conn, runner.NewNodeProcessor(factory), opts.subject, opts.queue,
		workers, opts.timeout, logger, runner.TracingConfigFromEnv("trestle", Version))
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("Error closing runner", zap.Error(err))
		}
	}()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Runner stopped", limiterFields(limiter)...)
	return nil
}
