package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/town-data-etl/internal/adapter/memory"
	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/couchcryptid/town-data-etl/internal/observability"
	"github.com/couchcryptid/town-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockFetcher struct {
	areas []domain.AreaMarker
	err   error
	calls atomic.Int64
}

func (m *mockFetcher) Fetch(_ context.Context) (domain.FeedSnapshot, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.FeedSnapshot{}, m.err
	}
	return domain.FeedSnapshot{Body: []byte(`{"sets":{}}`), Areas: m.areas, FetchedAt: time.Unix(1700000000, 0)}, nil
}

// failingRepo wraps a memory repository and fails writes for selected towns.
type failingRepo struct {
	*memory.Repository
	failures map[string]error

	mu     sync.Mutex
	writes []string
}

func (r *failingRepo) Put(ctx context.Context, town domain.Town) error {
	r.mu.Lock()
	r.writes = append(r.writes, town.NameLower)
	r.mu.Unlock()
	if err, ok := r.failures[town.NameLower]; ok {
		return err
	}
	return r.Repository.Put(ctx, town)
}

type mockPublisher struct {
	published []domain.Town
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, towns []domain.Town) error {
	m.published = append(m.published, towns...)
	return m.err
}

type mockArchiver struct {
	bodies [][]byte
	err    error
}

func (m *mockArchiver) Archive(_ context.Context, body []byte, _ time.Time) error {
	m.bodies = append(m.bodies, body)
	return m.err
}

func popup(mayor string) string {
	return fmt.Sprintf(`<div><span style="font-weight:bold">Mayor</span>: %s<br />`+
		`<span style="font-weight:bold">Bank</span>: $100.00<br />`+
		`<span style="font-weight:bold">Residents (1)</span>: %s<br /></div>`, mayor, mayor)
}

func testAreas() []domain.AreaMarker {
	return []domain.AreaMarker{
		{Name: "Alpha__0", Description: popup("Alex")},
		{Name: "Bravo__0", Description: popup("Steve")},
		{Name: "Bravo__home", Description: `<span style="font-weight:bold">Trusted Players</span>: Herobrine<br />`},
		{Name: "Charlie__0", Description: popup("Notch")},
		{Name: "Ghost__home", Description: popup("Nobody")},
	}
}

func newScheduler(f pipeline.FeedFetcher, repo domain.TownRepository, metrics *observability.Metrics, opts pipeline.Options) *pipeline.Scheduler {
	return pipeline.New(f, pipeline.NewTransformer("Alpha", slog.Default()), repo, slog.Default(), metrics, opts)
}

// --- tests ---

func TestScheduler_RunCycle_HappyPath(t *testing.T) {
	repo := memory.NewRepository()
	metrics := observability.NewMetricsForTesting()
	s := newScheduler(&mockFetcher{areas: testAreas()}, repo, metrics, pipeline.Options{Workers: 4})

	require.Error(t, s.CheckReadiness(context.Background()))

	result := s.RunCycle(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 5, result.Areas)
	assert.Equal(t, 3, result.Towns)
	assert.Equal(t, 3, result.Persisted)
	assert.False(t, result.Aborted)
	assert.Equal(t, 3, repo.Len())
	assert.NoError(t, s.CheckReadiness(context.Background()))

	bravo, err := repo.GetLatest(context.Background(), "bravo")
	require.NoError(t, err)
	require.NotNil(t, bravo)
	assert.Equal(t, "Steve", bravo.Owner)
	assert.Equal(t, []string{"Herobrine"}, bravo.Trusted)
	assert.NotZero(t, bravo.LastUpdated)

	ghost, err := repo.GetLatest(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.TownsPersisted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues("ok")), 0)
}

func TestScheduler_RunCycle_FetchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport", fmt.Errorf("%w: connection refused", domain.ErrFeedTransport)},
		{"status", fmt.Errorf("%w: 503", domain.ErrFeedStatus)},
		{"malformed", fmt.Errorf("%w: unexpected EOF", domain.ErrFeedMalformed)},
		{"shape", fmt.Errorf("%w: towny.markerset", domain.ErrFeedShape)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewRepository()
			metrics := observability.NewMetricsForTesting()
			archiver := &mockArchiver{}
			s := newScheduler(&mockFetcher{err: tt.err}, repo, metrics, pipeline.Options{Archiver: archiver})

			result := s.RunCycle(context.Background())

			require.ErrorIs(t, result.Err, tt.err)
			assert.Zero(t, repo.Len())
			assert.Empty(t, archiver.bodies)
			assert.Error(t, s.CheckReadiness(context.Background()))
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues("fetch_error")), 0)
		})
	}
}

func TestScheduler_RunCycle_EmptyFeed(t *testing.T) {
	repo := memory.NewRepository()
	s := newScheduler(&mockFetcher{}, repo, observability.NewMetricsForTesting(), pipeline.Options{})

	result := s.RunCycle(context.Background())

	require.NoError(t, result.Err)
	assert.Zero(t, result.Towns)
	assert.Error(t, s.CheckReadiness(context.Background()))
}

func TestScheduler_RunCycle_TransformFailureSkipsTown(t *testing.T) {
	areas := append(testAreas(), domain.AreaMarker{Name: "__0", Description: popup("Blank")})
	repo := memory.NewRepository()
	s := newScheduler(&mockFetcher{areas: areas}, repo, observability.NewMetricsForTesting(), pipeline.Options{Workers: 2})

	result := s.RunCycle(context.Background())

	assert.Equal(t, 4, result.Towns)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 3, result.Persisted)
}

func TestScheduler_RunCycle_IsolatePolicy(t *testing.T) {
	repo := &failingRepo{
		Repository: memory.NewRepository(),
		failures:   map[string]error{"alpha": errors.New("disk full")},
	}
	metrics := observability.NewMetricsForTesting()
	s := newScheduler(&mockFetcher{areas: testAreas()}, repo, metrics, pipeline.Options{
		Workers:       1,
		FailurePolicy: config.FailureIsolate,
	})

	result := s.RunCycle(context.Background())

	require.NoError(t, result.Err)
	assert.False(t, result.Aborted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Persisted)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, repo.writes)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PersistErrors.WithLabelValues("fatal")), 0)
}

func TestScheduler_RunCycle_AbortPolicy(t *testing.T) {
	cause := errors.New("disk full")
	repo := &failingRepo{
		Repository: memory.NewRepository(),
		failures:   map[string]error{"bravo": cause},
	}
	metrics := observability.NewMetricsForTesting()
	s := newScheduler(&mockFetcher{areas: testAreas()}, repo, metrics, pipeline.Options{
		Workers:       1,
		FailurePolicy: config.FailureAbort,
	})

	result := s.RunCycle(context.Background())

	assert.True(t, result.Aborted)
	require.ErrorIs(t, result.Err, cause)
	var perr *domain.PersistenceError
	require.ErrorAs(t, result.Err, &perr)
	assert.Equal(t, "bravo", perr.Town)

	assert.Equal(t, []string{"alpha", "bravo"}, repo.writes)
	assert.Equal(t, 1, result.Persisted)
	assert.NoError(t, s.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Cycles.WithLabelValues("aborted")), 0)
}

func TestScheduler_RunCycle_TransientErrorsNeverAbort(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"sentinel", fmt.Errorf("insert: %w", domain.ErrTransientValidation)},
		{"legacy message", errors.New("ValidationException: one or more parameter values were invalid")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &failingRepo{
				Repository: memory.NewRepository(),
				failures:   map[string]error{"alpha": tt.err},
			}
			metrics := observability.NewMetricsForTesting()
			s := newScheduler(&mockFetcher{areas: testAreas()}, repo, metrics, pipeline.Options{
				Workers:       1,
				FailurePolicy: config.FailureAbort,
			})

			result := s.RunCycle(context.Background())

			require.NoError(t, result.Err)
			assert.False(t, result.Aborted)
			assert.Equal(t, 1, result.Transient)
			assert.Equal(t, 2, result.Persisted)
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.PersistErrors.WithLabelValues("transient")), 0)
		})
	}
}

func TestScheduler_RunCycle_PublishesAndArchives(t *testing.T) {
	publisher := &mockPublisher{}
	archiver := &mockArchiver{}
	metrics := observability.NewMetricsForTesting()
	s := newScheduler(&mockFetcher{areas: testAreas()}, memory.NewRepository(), metrics, pipeline.Options{
		Workers:   3,
		Publisher: publisher,
		Archiver:  archiver,
	})

	s.RunCycle(context.Background())

	require.Len(t, publisher.published, 3)
	assert.Equal(t, "Alpha", publisher.published[0].Name)
	assert.Equal(t, "Bravo", publisher.published[1].Name)
	assert.Equal(t, "Charlie", publisher.published[2].Name)
	require.Len(t, archiver.bodies, 1)
	assert.JSONEq(t, `{"sets":{}}`, string(archiver.bodies[0]))
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.SnapshotsProduced), 0)
}

func TestScheduler_RunCycle_SideChannelFailuresAreBestEffort(t *testing.T) {
	repo := memory.NewRepository()
	metrics := observability.NewMetricsForTesting()
	s := newScheduler(&mockFetcher{areas: testAreas()}, repo, metrics, pipeline.Options{
		Publisher: &mockPublisher{err: errors.New("broker down")},
		Archiver:  &mockArchiver{err: errors.New("bucket missing")},
	})

	result := s.RunCycle(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Persisted)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ArchiveErrors), 0)
}

func TestScheduler_RunCycle_LatestSnapshotWins(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	repo := memory.NewRepository()
	fetcher := &mockFetcher{areas: []domain.AreaMarker{{Name: "Alpha__0", Description: popup("Alex")}}}
	s := newScheduler(fetcher, repo, observability.NewMetricsForTesting(), pipeline.Options{})

	s.RunCycle(context.Background())
	fake.Advance(time.Minute)
	fetcher.areas = []domain.AreaMarker{{Name: "Alpha__0", Description: popup("Steve")}}
	s.RunCycle(context.Background())

	got, err := repo.GetLatest(context.Background(), "alpha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Steve", got.Owner)
	assert.Equal(t, fake.Now().Unix(), got.LastUpdated)
}

func TestScheduler_RunCycle_ReferenceTownNotFound(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		logged    bool
	}{
		{"reference absent from feed", "Alpha", true},
		{"reference present in feed", "bravo", false},
		{"no reference configured", "", false},
		{"blank reference configured", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			fetcher := &mockFetcher{areas: []domain.AreaMarker{{Name: "Bravo__0", Description: popup("Steve")}}}
			s := pipeline.New(fetcher, pipeline.NewTransformer(tt.reference, logger), memory.NewRepository(), logger,
				observability.NewMetricsForTesting(), pipeline.Options{})

			s.RunCycle(context.Background())

			assert.Equal(t, tt.logged, strings.Contains(buf.String(), "reference town not found"))
		})
	}
}

func TestScheduler_Run_SleepsBetweenCycles(t *testing.T) {
	fake := clockwork.NewFakeClock()
	fetcher := &mockFetcher{areas: testAreas()}
	metrics := observability.NewMetricsForTesting()
	s := newScheduler(fetcher, memory.NewRepository(), metrics, pipeline.Options{
		Interval: 60 * time.Second,
		Clock:    fake,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, fake.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, int64(1), fetcher.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRunning), 0)

	fake.Advance(59 * time.Second)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	fake.Advance(time.Second)
	require.NoError(t, fake.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, int64(2), fetcher.calls.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestScheduler_Run_CancelledBeforeStart(t *testing.T) {
	fetcher := &mockFetcher{areas: testAreas()}
	s := newScheduler(fetcher, memory.NewRepository(), observability.NewMetricsForTesting(), pipeline.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Run(ctx))
	assert.Zero(t, fetcher.calls.Load())
}
