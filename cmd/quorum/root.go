package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-quorum/infrastructure/middleware"
	"github.com/ahrav/go-quorum/infrastructure/store"
	"github.com/ahrav/go-quorum/internal/application"
	"github.com/ahrav/go-quorum/internal/ports"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	metricsOut string
	logLevel   string
}

// env is what a subcommand needs once flags are parsed.
type env struct {
	cfg      application.ReviewConfig
	logger   *slog.Logger
	metrics  *middleware.PrometheusMetrics
	registry *prometheus.Registry
	store    *store.JSONStore
	out      io.Writer
	flags    *globalFlags
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "quorum",
		Short:         "Multi-batch code review consensus and finding lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to the YAML review config")
	root.PersistentFlags().StringVar(&flags.metricsOut, "metrics-out", "", "write Prometheus metrics in text format to this file on exit")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newRunBatchesCmd(flags),
		newMergeCmd(flags),
		newReconcileCmd(flags),
	)
	return root
}

// setup loads configuration and builds the shared collaborators.
func setup(cmd *cobra.Command, flags *globalFlags) (*env, error) {
	cfg, err := application.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	registry := prometheus.NewRegistry()
	return &env{
		cfg:      cfg,
		logger:   logger,
		metrics:  middleware.NewPrometheusMetrics(registry),
		registry: registry,
		store:    store.NewJSONStore(cfg.Store.Path, cfg.Store.RetryAttempts, logger),
		out:      cmd.OutOrStdout(),
		flags:    flags,
	}, nil
}

// service builds a ReviewService around runner, which may be nil.
func (e *env) service(runner ports.ReviewRunner) (*application.ReviewService, error) {
	return application.NewReviewService(e.cfg, runner, e.store,
		application.WithLogger(e.logger),
		application.WithMetrics(e.metrics),
	)
}

// flushMetrics writes the registry to --metrics-out when set.
func (e *env) flushMetrics() {
	if e.flags.metricsOut == "" {
		return
	}
	if err := prometheus.WriteToTextfile(e.flags.metricsOut, e.registry); err != nil {
		e.logger.Warn("write metrics", "path", e.flags.metricsOut, "error", err)
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
