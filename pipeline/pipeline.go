// Package pipeline runs the collect, normalize and load stages end to end.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/logging"
	"github.com/aluiziolira/go-books-etl/metrics"
	"github.com/aluiziolira/go-books-etl/models"
)

const (
	defaultJob  = "books_etl"
	pushTimeout = 10 * time.Second
)

// Collector gathers raw listings.
type Collector interface {
	Collect(ctx context.Context, targetCount, maxPages int) (*models.CollectResult, error)
}

// Normalizer validates raw listings.
type Normalizer interface {
	Normalize(raw []models.RawBook) (*models.NormalizeResult, error)
}

// Sink persists validated books.
type Sink interface {
	EnsureSchema(ctx context.Context) error
	Write(ctx context.Context, books []models.Book) (*models.WriteResult, error)
}

// ExportFunc opens the archive writer for a run.
type ExportFunc func(runID string) (OutputWriter, error)

// Options tune a Pipeline.
type Options struct {
	TargetCount    int
	MaxPages       int
	Export         ExportFunc // nil disables export
	PushgatewayURL string
	Job            string
}

// Pipeline executes runs. It keeps no state between runs.
type Pipeline struct {
	collector  Collector
	normalizer Normalizer
	sink       Sink
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// New wires the three stages into a pipeline.
func New(collector Collector, normalizer Normalizer, sink Sink, opts Options, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if opts.Job == "" {
		opts.Job = defaultJob
	}
	return &Pipeline{
		collector:  collector,
		normalizer: normalizer,
		sink:       sink,
		opts:       opts,
		logger:     logging.OrNop(logger).Named("pipeline"),
		metrics:    m,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run performs one run: ensure schema, collect, normalize, export, write.
// The returned summary is filled as far as the run got, also on failure.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	result := &models.RunResult{
		RunID:     p.newID(),
		StartTime: p.now(),
	}
	logger := p.logger.With(zap.String("run_id", result.RunID))
	logger.Info("run started",
		zap.Int("target_count", p.opts.TargetCount),
		zap.Int("max_pages", p.opts.MaxPages),
	)

	err := p.run(ctx, logger, result)
	result.EndTime = p.now()

	status := "success"
	if err != nil {
		status = "failure"
	}
	p.metrics.ObserveRun(status, result.Duration(), result.EndTime)
	p.push(ctx, logger)

	if err != nil {
		logger.Error("run failed", zap.Error(err), zap.Duration("duration", result.Duration()))
		return result, err
	}
	logger.Info("run finished",
		zap.Int("collected", result.Collected),
		zap.Int("valid", result.Valid),
		zap.Int("inserted", result.Inserted),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *zap.Logger, result *models.RunResult) error {
	if err := p.sink.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	collected, err := p.collector.Collect(ctx, p.opts.TargetCount, p.opts.MaxPages)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	result.Collected = len(collected.Books)
	result.Pages = collected.Pages
	result.FetchErrors = collected.FetchErrors
	result.Duplicates = collected.Duplicates
	logger.Info("collected books",
		zap.Int("books", result.Collected),
		zap.Int("pages", result.Pages),
		zap.Int("fetch_errors", result.FetchErrors),
	)

	normalized, err := p.normalizer.Normalize(collected.Books)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	result.Valid = len(normalized.Books)
	result.Rejected = normalized.Rejected

	if err := p.export(result.RunID, normalized.Books, logger); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	written, err := p.sink.Write(ctx, normalized.Books)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	result.Inserted = written.Inserted
	result.Skipped = written.Skipped
	return nil
}

func (p *Pipeline) export(runID string, books []models.Book, logger *zap.Logger) error {
	if p.opts.Export == nil {
		return nil
	}
	writer, err := p.opts.Export(runID)
	if err != nil {
		return err
	}
	if err := writer.Write(books); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Validate(); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	logger.Info("exported books", zap.Int("books", len(books)))
	return nil
}

// push sends metrics even when ctx was cancelled, so interrupted runs are
// still visible.
func (p *Pipeline) push(ctx context.Context, logger *zap.Logger) {
	if p.opts.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := p.metrics.Push(pushCtx, p.opts.PushgatewayURL, p.opts.Job); err != nil {
		logger.Warn("failed to push metrics", zap.Error(err))
	}
}
