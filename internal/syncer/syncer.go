// Package syncer drives the scrape, persist and publish pipeline.
//
// Live mode walks a contiguous range of question ids: each page is fetched, parsed,
// upserted and mirrored before the next id is touched. Batch mode republishes every
// stored record through the publisher's admission gate.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/question-sync/internal/logging"
	"github.com/JakeFAU/question-sync/internal/metrics"
	"github.com/JakeFAU/question-sync/internal/publisher"
	"github.com/JakeFAU/question-sync/internal/question"
	"github.com/JakeFAU/question-sync/internal/telemetry"
)

// Run modes reported in logs, metrics and reports.
const (
	ModeLive  = "live"
	ModeBatch = "batch"
)

// Per-identifier outcomes recorded in metrics.
const (
	outcomeSynced        = "synced"
	outcomeNotFound      = "not_found"
	outcomeFetchFailed   = "fetch_failed"
	outcomeExtractFailed = "extract_failed"
	outcomeStoreFailed   = "store_failed"
	outcomePublishFailed = "publish_failed"
)

var (
	// ErrInvalidRange is returned when a live run is asked for an empty or non-positive range.
	ErrInvalidRange = errors.New("invalid question range")
	// ErrNoFetcher is returned when a live run starts without a page fetcher.
	ErrNoFetcher = errors.New("no fetcher configured")
	// ErrNoBaseURL is returned when a live run starts without a source URL.
	ErrNoBaseURL = errors.New("source base url not configured")
)

// Publisher is the subset of publisher.Publisher the orchestrator needs.
type Publisher interface {
	question.Publisher
	PublishAll(ctx context.Context, records []question.Record, chunker question.Chunker) publisher.Summary
}

// Config controls orchestrator behavior.
type Config struct {
	// BaseURL is the question page prefix; the id is appended as the last path segment.
	BaseURL string
	// PacingDelay is slept between consecutive identifiers in live mode.
	PacingDelay time.Duration
	// FetchAttempts bounds tries per page, first included. Zero means one.
	FetchAttempts int
	// RetryBaseDelay seeds the exponential backoff between fetch attempts.
	RetryBaseDelay time.Duration
}

// Deps groups the collaborators of an Orchestrator. Fetcher may be nil for batch-only use.
type Deps struct {
	Fetcher   question.Fetcher
	Extractor question.Extractor
	Store     question.Store
	Chunker   question.Chunker
	Publisher Publisher
	Clock     question.Clock
	IDs       question.IDGenerator
}

// Report summarizes one run.
type Report struct {
	RunID          string
	Mode           string
	StartedAt      time.Time
	FinishedAt     time.Time
	Processed      int
	NotFound       int
	FetchFailed    int
	ExtractFailed  int
	Stored         int
	StoreFailed    int
	Published      int
	PublishFailed  int
	PublishSkipped int
}

// Orchestrator sequences fetch, extract, store and publish.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	retry  *RetryPolicy
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		retry:  NewRetryPolicy(cfg.FetchAttempts, cfg.RetryBaseDelay, 10*cfg.RetryBaseDelay),
		logger: logger.Named("syncer"),
	}
}

// PageURL returns the page address for a question id.
func (o *Orchestrator) PageURL(id int) string {
	return fmt.Sprintf("%s/%d", strings.TrimRight(o.cfg.BaseURL, "/"), id)
}

// RunLive processes ids start..end inclusive in ascending order. Per-identifier failures
// are logged and counted; only context cancellation aborts the run early.
func (o *Orchestrator) RunLive(ctx context.Context, start, end int) (Report, error) {
	if o.deps.Fetcher != nil {
		defer o.deps.Fetcher.Close()
	}
	if start < 1 || end < start {
		return Report{Mode: ModeLive}, fmt.Errorf("%w: %d..%d", ErrInvalidRange, start, end)
	}
	if o.deps.Fetcher == nil {
		return Report{Mode: ModeLive}, ErrNoFetcher
	}
	if strings.TrimSpace(o.cfg.BaseURL) == "" {
		return Report{Mode: ModeLive}, ErrNoBaseURL
	}

	report, logger, err := o.begin(ModeLive)
	if err != nil {
		return report, err
	}
	logger.Info("live run started", zap.Int("start", start), zap.Int("end", end))
	if !o.deps.Publisher.Enabled() {
		logger.Info("workspace publishing disabled; records will only be stored")
	}

	for id := start; id <= end; id++ {
		if err := ctx.Err(); err != nil {
			return o.finish(report, logger, err)
		}
		if err := o.processOne(ctx, id, &report, logger.With(zap.Int("question_id", id))); err != nil {
			return o.finish(report, logger, err)
		}
		if id < end {
			if err := o.deps.Clock.Sleep(ctx, o.cfg.PacingDelay); err != nil {
				return o.finish(report, logger, err)
			}
		}
	}
	return o.finish(report, logger, nil)
}

// processOne handles a single identifier. It only returns an error when ctx is done.
func (o *Orchestrator) processOne(ctx context.Context, id int, report *Report, logger *zap.Logger) error {
	ctx, span := telemetry.Tracer().Start(ctx, "question.sync")
	defer span.End()
	span.SetAttributes(attribute.Int("question.id", id))

	url := o.PageURL(id)
	html, err := o.fetch(ctx, url, logger)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.FetchFailed++
		metrics.ObserveQuestion(ModeLive, outcomeFetchFailed)
		span.SetStatus(codes.Error, "fetch failed")
		logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return nil
	}

	record, err := o.deps.Extractor.Extract(html, id)
	switch {
	case errors.Is(err, question.ErrNotFound):
		report.NotFound++
		metrics.ObserveQuestion(ModeLive, outcomeNotFound)
		logger.Debug("no question at id")
		return nil
	case err != nil:
		report.ExtractFailed++
		metrics.ObserveQuestion(ModeLive, outcomeExtractFailed)
		span.SetStatus(codes.Error, "extract failed")
		logger.Warn("page extraction failed", zap.Error(err))
		return nil
	}
	report.Processed++

	outcome := outcomeSynced
	if err := o.deps.Store.Upsert(ctx, record); err != nil {
		report.StoreFailed++
		outcome = outcomeStoreFailed
		logger.Error("record upsert failed", zap.Error(err))
	} else {
		report.Stored++
		logger.Info("record stored", zap.String("title", record.Title))
	}

	enabled := o.deps.Publisher.Enabled()
	var blocks []question.Block
	if enabled {
		blocks = o.deps.Chunker.Chunk(record)
	}
	err = o.deps.Publisher.Publish(ctx, record, blocks)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.PublishFailed++
		if outcome == outcomeSynced {
			outcome = outcomePublishFailed
		}
	case !enabled:
		report.PublishSkipped++
	default:
		report.Published++
	}
	span.SetAttributes(attribute.String("question.outcome", outcome))
	metrics.ObserveQuestion(ModeLive, outcome)
	return nil
}

// fetch retrieves url, retrying failures the policy considers transient.
func (o *Orchestrator) fetch(ctx context.Context, url string, logger *zap.Logger) (string, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		html, err := o.deps.Fetcher.Fetch(ctx, url)
		metrics.ObserveFetch(time.Since(start))
		if err == nil {
			return html, nil
		}
		if !o.retry.ShouldRetry(err, attempt) || ctx.Err() != nil {
			return "", err
		}
		wait := o.retry.Backoff(attempt)
		logger.Debug("retrying page fetch", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		if sleepErr := o.deps.Clock.Sleep(ctx, wait); sleepErr != nil {
			return "", sleepErr
		}
	}
}

// RunBatch republishes every stored record. A failure to read the store ends the run;
// individual publish failures are only counted.
func (o *Orchestrator) RunBatch(ctx context.Context) (Report, error) {
	report, logger, err := o.begin(ModeBatch)
	if err != nil {
		return report, err
	}

	records, err := o.deps.Store.FetchAll(ctx)
	if err != nil {
		return o.finish(report, logger, fmt.Errorf("load records: %w", err))
	}
	report.Processed = len(records)
	logger.Info("batch run started", zap.Int("records", len(records)))
	if !o.deps.Publisher.Enabled() {
		logger.Info("workspace publishing disabled; nothing to sync")
	}

	summary := o.deps.Publisher.PublishAll(ctx, records, o.deps.Chunker)
	report.Published = summary.Published
	report.PublishFailed = summary.Failed
	report.PublishSkipped = summary.Skipped
	for range summary.Published {
		metrics.ObserveQuestion(ModeBatch, outcomeSynced)
	}
	for range summary.Failed {
		metrics.ObserveQuestion(ModeBatch, outcomePublishFailed)
	}
	return o.finish(report, logger, ctx.Err())
}

func (o *Orchestrator) begin(mode string) (Report, *zap.Logger, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return Report{Mode: mode}, o.logger, fmt.Errorf("start %s run: %w", mode, err)
	}
	report := Report{
		RunID:     runID,
		Mode:      mode,
		StartedAt: o.deps.Clock.Now(),
	}
	return report, logging.ForRun(o.logger, runID, mode), nil
}

func (o *Orchestrator) finish(report Report, logger *zap.Logger, err error) (Report, error) {
	report.FinishedAt = o.deps.Clock.Now()
	fields := []zap.Field{
		zap.Int("processed", report.Processed),
		zap.Int("not_found", report.NotFound),
		zap.Int("fetch_failed", report.FetchFailed),
		zap.Int("extract_failed", report.ExtractFailed),
		zap.Int("stored", report.Stored),
		zap.Int("store_failed", report.StoreFailed),
		zap.Int("published", report.Published),
		zap.Int("publish_failed", report.PublishFailed),
		zap.Int("publish_skipped", report.PublishSkipped),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if err != nil {
		logger.Warn("run stopped early", append(fields, zap.Error(err))...)
		return report, err
	}
	logger.Info("run complete", fields...)
	return report, nil
}
