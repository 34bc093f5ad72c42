package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/question-sync/internal/blocks"
	"github.com/JakeFAU/question-sync/internal/extract"
	"github.com/JakeFAU/question-sync/internal/publisher"
	"github.com/JakeFAU/question-sync/internal/question"
)

const baseURL = "https://questions.example/question"

func page(title, content string) string {
	return fmt.Sprintf(`<html><body><h2 class="ut08sa0">%s</h2><div class="wmde-markdown"><p>%s</p></div></body></html>`, title, content)
}

func TestRunLiveSkipsMissingIdentifiers(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.fetcher.pages[1] = page("One", "first")
	env.fetcher.pages[2] = "<html><body><p>nothing here</p></body></html>"
	env.fetcher.pages[3] = page("Three", "third")

	report, err := env.orchestrator().RunLive(context.Background(), 1, 3)
	require.NoError(t, err)

	require.Equal(t, []int{1, 3}, env.store.ids())
	require.Equal(t, []int{1, 3}, env.publisher.ids())
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 1, report.NotFound)
	require.Equal(t, 2, report.Stored)
	require.Equal(t, 2, report.Published)
	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, ModeLive, report.Mode)
	require.True(t, env.fetcher.closed)
}

func TestRunLiveOrderAndPersistBeforePublish(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	for id := 4; id <= 6; id++ {
		env.fetcher.pages[id] = page(fmt.Sprintf("Q%d", id), "body")
	}

	_, err := env.orchestrator().RunLive(context.Background(), 4, 6)
	require.NoError(t, err)

	require.Equal(t, []string{
		"fetch " + baseURL + "/4", "store 4", "publish 4",
		"fetch " + baseURL + "/5", "store 5", "publish 5",
		"fetch " + baseURL + "/6", "store 6", "publish 6",
	}, env.events.list())
	require.Equal(t, []time.Duration{time.Second, time.Second}, env.clock.sleeps)
}

func TestRunLiveContinuesAfterFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.fetcher.pages[1] = page("One", "a")
	env.fetcher.errs[2] = errors.New("connection reset")
	env.fetcher.pages[3] = page("Three", "c")
	env.fetcher.pages[4] = page("Four", "d")
	env.store.failIDs[3] = true
	env.publisher.failIDs[4] = true

	report, err := env.orchestrator().RunLive(context.Background(), 1, 4)
	require.NoError(t, err)

	require.Equal(t, 1, report.FetchFailed)
	require.Equal(t, 3, report.Processed)
	require.Equal(t, 2, report.Stored)
	require.Equal(t, 1, report.StoreFailed)
	require.Equal(t, 2, report.Published)
	require.Equal(t, 1, report.PublishFailed)
	// Store failure on 3 still publishes.
	require.Equal(t, []int{1, 3, 4}, env.publisher.ids())
}

func TestRunLiveWithoutWorkspaceStoresOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.publisher.enabled = false
	env.fetcher.pages[1] = page("One", "a")

	report, err := env.orchestrator().RunLive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.Stored)
	require.Equal(t, 1, report.PublishSkipped)
	require.Zero(t, report.Published)
	require.Empty(t, env.clock.sleeps)
}

func TestRunLiveCancellationStopsBetweenIdentifiers(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	for id := 1; id <= 5; id++ {
		env.fetcher.pages[id] = page(fmt.Sprintf("Q%d", id), "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	report, err := env.orchestrator().RunLive(ctx, 1, 5)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []int{1, 2}, env.store.ids())
	require.Equal(t, 2, report.Stored)
	require.True(t, env.fetcher.closed)
}

func TestRunLiveValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end int
		mutate     func(*testEnv)
		wantErr    error
	}{
		{name: "zero start", start: 0, end: 3, wantErr: ErrInvalidRange},
		{name: "reversed", start: 5, end: 2, wantErr: ErrInvalidRange},
		{name: "no fetcher", start: 1, end: 1, mutate: func(e *testEnv) { e.noFetcher = true }, wantErr: ErrNoFetcher},
		{name: "no base url", start: 1, end: 1, mutate: func(e *testEnv) { e.cfg.BaseURL = " " }, wantErr: ErrNoBaseURL},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv()
			if tc.mutate != nil {
				tc.mutate(env)
			}
			_, err := env.orchestrator().RunLive(context.Background(), tc.start, tc.end)
			require.ErrorIs(t, err, tc.wantErr)
			require.Empty(t, env.events.list())
		})
	}
}

func TestRunLiveRunIDFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.ids.err = errors.New("entropy exhausted")
	_, err := env.orchestrator().RunLive(context.Background(), 1, 1)
	require.ErrorContains(t, err, "entropy exhausted")
	require.True(t, env.fetcher.closed)
}

func TestRunBatchPublishesEveryRecord(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	for id := 1; id <= 4; id++ {
		env.store.records = append(env.store.records, question.Record{ID: id, Title: fmt.Sprintf("Q%d", id)})
	}
	env.publisher.failIDs[2] = true

	report, err := env.orchestrator().RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModeBatch, report.Mode)
	require.Equal(t, 4, report.Processed)
	require.Equal(t, 3, report.Published)
	require.Equal(t, 1, report.PublishFailed)
	require.ElementsMatch(t, []int{1, 2, 3, 4}, env.publisher.ids())
}

func TestRunBatchStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.store.fetchErr = fmt.Errorf("%w: connection refused", question.ErrStore)

	_, err := env.orchestrator().RunBatch(context.Background())
	require.ErrorIs(t, err, question.ErrStore)
	require.Empty(t, env.publisher.ids())
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	o := New(Deps{}, Config{BaseURL: "https://site.example/q/"}, nil)
	require.Equal(t, "https://site.example/q/42", o.PageURL(42))
}

type testEnv struct {
	events    *eventLog
	fetcher   *fakeFetcher
	store     *fakeStore
	publisher *fakePublisher
	clock     *fakeClock
	ids       *fakeIDs
	cfg       Config
	noFetcher bool
}

func newTestEnv() *testEnv {
	events := &eventLog{}
	return &testEnv{
		events:    events,
		fetcher:   &fakeFetcher{events: events, pages: map[int]string{}, errs: map[int]error{}, calls: map[int]int{}},
		store:     &fakeStore{events: events, failIDs: map[int]bool{}},
		publisher: &fakePublisher{events: events, enabled: true, failIDs: map[int]bool{}},
		clock:     &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		ids:       &fakeIDs{},
		cfg:       Config{BaseURL: baseURL, PacingDelay: time.Second},
	}
}

func (e *testEnv) orchestrator() *Orchestrator {
	deps := Deps{
		Extractor: extract.New(extract.Config{}),
		Store:     e.store,
		Chunker:   blocks.New(blocks.Options{}),
		Publisher: e.publisher,
		Clock:     e.clock,
		IDs:       e.ids,
	}
	if !e.noFetcher {
		deps.Fetcher = e.fetcher
	}
	return New(deps, e.cfg, zap.NewNop())
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeFetcher struct {
	events    *eventLog
	pages     map[int]string
	errs      map[int]error
	failFirst map[int]int
	calls     map[int]int
	onFetch   func()
	closed    bool
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.events.add("fetch %s", url)
	var id int
	_, _ = fmt.Sscanf(url[strings.LastIndex(url, "/")+1:], "%d", &id)
	f.calls[id]++
	if f.onFetch != nil {
		f.onFetch()
	}
	if err, ok := f.errs[id]; ok {
		return "", fmt.Errorf("%w: %w", question.ErrFetch, err)
	}
	if f.calls[id] <= f.failFirst[id] {
		return "", fmt.Errorf("%w: timeout", question.ErrFetch)
	}
	return f.pages[id], nil
}

func (f *fakeFetcher) Close() { f.closed = true }

type fakeStore struct {
	events   *eventLog
	failIDs  map[int]bool
	stored   []int
	records  []question.Record
	fetchErr error
}

func (s *fakeStore) Upsert(_ context.Context, record question.Record) error {
	s.events.add("store %d", record.ID)
	if s.failIDs[record.ID] {
		return fmt.Errorf("%w: deadlock detected", question.ErrStore)
	}
	s.stored = append(s.stored, record.ID)
	return nil
}

func (s *fakeStore) FetchAll(context.Context) ([]question.Record, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.records, nil
}

func (s *fakeStore) ids() []int { return s.stored }

type fakePublisher struct {
	events  *eventLog
	enabled bool
	failIDs map[int]bool

	mu        sync.Mutex
	published []int
}

func (p *fakePublisher) Enabled() bool { return p.enabled }

func (p *fakePublisher) Publish(_ context.Context, record question.Record, _ []question.Block) error {
	if !p.enabled {
		return nil
	}
	p.events.add("publish %d", record.ID)
	p.mu.Lock()
	p.published = append(p.published, record.ID)
	p.mu.Unlock()
	if p.failIDs[record.ID] {
		return fmt.Errorf("%w: validation_error", question.ErrPublish)
	}
	return nil
}

func (p *fakePublisher) PublishAll(ctx context.Context, records []question.Record, chunker question.Chunker) publisher.Summary {
	summary := publisher.Summary{Total: len(records)}
	if !p.enabled {
		summary.Skipped = len(records)
		return summary
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, rec := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Publish(ctx, rec, chunker.Chunk(rec))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return
			}
			summary.Published++
		}()
	}
	wg.Wait()
	return summary
}

func (p *fakePublisher) ids() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.published...)
}

type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	if c.onSleep != nil {
		c.onSleep(len(c.sleeps))
	}
	return ctx.Err()
}

type fakeIDs struct {
	n   int
	err error
}

func (g *fakeIDs) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}
