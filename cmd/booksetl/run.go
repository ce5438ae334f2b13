package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/metrics"
	"github.com/aluiziolira/go-books-etl/models"
	"github.com/aluiziolira/go-books-etl/parser"
	"github.com/aluiziolira/go-books-etl/pipeline"
	"github.com/aluiziolira/go-books-etl/scraper"
	"github.com/aluiziolira/go-books-etl/sink"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect, normalize and load one batch of books.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			result, runErr := runOnce(cmd.Context(), cfg, logger)
			if result != nil {
				printSummary(cmd.OutOrStdout(), result, cfg, runErr)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.Int("target", 0, "Stop after collecting this many unique books")
	flags.Int("pages", 0, "Maximum number of search pages to fetch")
	flags.String("query", "", "Search query")
	flags.String("export", "", "Also write validated books to this file")
	flags.String("format", "", "Export format: csv, json, or dual")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	flags.String("pushgateway", "", "Push metrics to this Pushgateway after the run")
	a.bind(cmd, "scraper.target_count", "target")
	a.bind(cmd, "scraper.max_pages", "pages")
	a.bind(cmd, "scraper.query", "query")
	a.bind(cmd, "export.file", "export")
	a.bind(cmd, "export.format", "format")
	a.bind(cmd, "metrics.addr", "metrics-addr")
	a.bind(cmd, "metrics.pushgateway_url", "pushgateway")
	return cmd
}

func runOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*models.RunResult, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	m := metrics.New()
	stopMetrics := serveMetrics(cfg.Metrics.Addr, m, logger)
	defer stopMetrics()

	conn, err := sink.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	writer, err := sink.NewWriter(conn, cfg.Database.Table, cfg.Database.BatchSize, logger, m)
	if err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	defer func() {
		if err := writer.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("close database connection", zap.Error(err))
		}
	}()

	collector, err := scraper.NewCollector(cfg.Scraper,
		scraper.WithLogger(logger),
		scraper.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	normalizer := parser.NewNormalizer(logger, m)

	opts := pipeline.Options{
		TargetCount:    cfg.Scraper.TargetCount,
		MaxPages:       cfg.Scraper.MaxPages,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Job:            cfg.Metrics.Job,
	}
	if cfg.Export.File != "" {
		opts.Export = func(runID string) (pipeline.OutputWriter, error) {
			return pipeline.NewExportWriter(cfg.Export.Format, cfg.Export.File, runID)
		}
	}

	return pipeline.New(collector, normalizer, writer, opts, logger, m).Run(ctx)
}

// serveMetrics exposes the registry on addr until the returned func is called.
func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server enabled", zap.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
}
