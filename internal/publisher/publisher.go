// Package publisher mirrors question records into the external workspace under a
// fixed concurrency ceiling.
package publisher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/question-sync/internal/metrics"
	"github.com/JakeFAU/question-sync/internal/question"
	"github.com/JakeFAU/question-sync/internal/telemetry"
)

// DefaultMaxConcurrent is the admission gate size used when none is configured.
const DefaultMaxConcurrent = 3

// Publish outcome labels.
const (
	StatusPublished = "published"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Workspace creates documents in the external workspace.
type Workspace interface {
	CreatePage(ctx context.Context, req question.PageRequest) (string, error)
}

// Config controls gate size and request pacing.
type Config struct {
	MaxConcurrent int
	// RequestsPerSecond caps workspace calls; <= 0 disables pacing.
	RequestsPerSecond float64
}

// Publisher implements question.Publisher. A nil Workspace turns every call into a no-op.
type Publisher struct {
	ws      Workspace
	gate    *semaphore.Weighted
	limiter *rate.Limiter
	logger  *zap.Logger

	inFlight atomic.Int64
	peakMu   sync.Mutex
	peak     int64
}

// New builds a Publisher.
func New(ws Workspace, cfg Config, logger *zap.Logger) *Publisher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.MaxConcurrent)
	}
	return &Publisher{
		ws:      ws,
		gate:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: limiter,
		logger:  logger,
	}
}

// Enabled reports whether a workspace destination is configured.
func (p *Publisher) Enabled() bool {
	return p != nil && p.ws != nil
}

// Publish creates one workspace page for the record. Callers may invoke it concurrently;
// excess calls wait for a free slot.
func (p *Publisher) Publish(ctx context.Context, record question.Record, blocks []question.Block) error {
	if !p.Enabled() {
		metrics.ObservePublish(StatusSkipped, 0)
		return nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "workspace.publish")
	defer span.End()
	span.SetAttributes(attribute.Int("question.id", record.ID), attribute.Int("blocks", len(blocks)))

	if err := p.gate.Acquire(ctx, 1); err != nil {
		metrics.ObservePublish(StatusFailed, 0)
		span.SetStatus(codes.Error, "wait for slot")
		p.logger.Warn("workspace publish slot not acquired", zap.Int("question_id", record.ID), zap.Error(err))
		return fmt.Errorf("%w: question %d: wait for slot: %w", question.ErrPublish, record.ID, err)
	}
	p.enter()
	defer func() {
		p.leave()
		p.gate.Release(1)
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			metrics.ObservePublish(StatusFailed, 0)
			span.SetStatus(codes.Error, "rate limit wait")
			p.logger.Warn("workspace publish rate limit wait failed", zap.Int("question_id", record.ID), zap.Error(err))
			return fmt.Errorf("%w: question %d: rate limit wait: %w", question.ErrPublish, record.ID, err)
		}
	}

	req := question.PageRequest{
		ID:     record.ID,
		Title:  record.DisplayTitle(),
		Blocks: blocks,
	}
	start := time.Now()
	pageID, err := p.ws.CreatePage(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObservePublish(StatusFailed, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create page failed")
		p.logger.Error("workspace publish failed", zap.Int("question_id", record.ID), zap.Error(err))
		return fmt.Errorf("%w: question %d: %w", question.ErrPublish, record.ID, err)
	}
	metrics.ObservePublish(StatusPublished, elapsed)
	p.logger.Info("workspace page created",
		zap.Int("question_id", record.ID),
		zap.String("page_id", pageID),
		zap.Int("blocks", len(blocks)),
		zap.Duration("duration", elapsed),
	)
	return nil
}

// Summary aggregates the outcome of a fan-out publish.
type Summary struct {
	Total     int
	Published int
	Failed    int
	Skipped   int
}

// PublishAll launches one Publish per record, waits for every call to settle and
// reports the aggregate. A failing record never cancels its siblings.
func (p *Publisher) PublishAll(ctx context.Context, records []question.Record, chunker question.Chunker) Summary {
	summary := Summary{Total: len(records)}
	if !p.Enabled() {
		summary.Skipped = len(records)
		for range records {
			metrics.ObservePublish(StatusSkipped, 0)
		}
		return summary
	}

	var published, failed atomic.Int64
	var g errgroup.Group
	for _, rec := range records {
		g.Go(func() error {
			p.logger.Debug("sync start", zap.Int("question_id", rec.ID))
			if err := p.Publish(ctx, rec, chunker.Chunk(rec)); err != nil {
				failed.Add(1)
				return nil
			}
			published.Add(1)
			return nil
		})
	}
	// Goroutines never return errors; failures are counted above.
	_ = g.Wait()

	summary.Published = int(published.Load())
	summary.Failed = int(failed.Load())
	return summary
}

// InFlight returns the number of calls currently holding a slot.
func (p *Publisher) InFlight() int {
	return int(p.inFlight.Load())
}

// MaxInFlight returns the highest concurrent slot occupancy observed.
func (p *Publisher) MaxInFlight() int {
	p.peakMu.Lock()
	defer p.peakMu.Unlock()
	return int(p.peak)
}

func (p *Publisher) enter() {
	n := p.inFlight.Add(1)
	metrics.IncPublishInFlight()
	p.peakMu.Lock()
	if n > p.peak {
		p.peak = n
	}
	p.peakMu.Unlock()
}

func (p *Publisher) leave() {
	p.inFlight.Add(-1)
	metrics.DecPublishInFlight()
}
