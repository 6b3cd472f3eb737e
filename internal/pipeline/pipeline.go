package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/couchcryptid/town-data-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// FeedFetcher retrieves and decodes one snapshot of the marker feed.
type FeedFetcher interface {
	Fetch(ctx context.Context) (domain.FeedSnapshot, error)
}

// Transformer converts a merged popup into a town record.
type Transformer interface {
	Transform(ctx context.Context, name, desc string) (domain.Town, error)
	IsReference(name string) bool
	HasReference() bool
}

// Publisher emits persisted snapshots downstream.
type Publisher interface {
	Publish(ctx context.Context, towns []domain.Town) error
}

// Archiver stores the raw feed body of a cycle.
type Archiver interface {
	Archive(ctx context.Context, body []byte, fetchedAt time.Time) error
}

// Options tunes a Scheduler. Publisher and Archiver are optional.
type Options struct {
	Interval      time.Duration
	Workers       int
	FailurePolicy string
	Publisher     Publisher
	Archiver      Archiver
	Clock         clockwork.Clock
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Areas     int
	Towns     int
	Persisted int
	Skipped   int // transform failures
	Transient int
	Failed    int
	Aborted   bool
	Err       error // fetch error or the persistence error that aborted the cycle
}

// Scheduler runs the fetch-merge-transform-persist cycle on a fixed interval.
type Scheduler struct {
	fetcher     FeedFetcher
	transformer Transformer
	repo        domain.TownRepository
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	ready       atomic.Bool
}

// New creates a Scheduler with the given stages and observability.
func New(f FeedFetcher, t Transformer, repo domain.TownRepository, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.FailureIsolate
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		fetcher:     f,
		transformer: t,
		repo:        repo,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once a cycle has persisted at least one town.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no towns have been persisted yet")
	}
	return nil
}

// Run executes poll cycles until the context is cancelled. The first cycle
// starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.opts.Interval,
		"workers", s.opts.Workers,
		"failure_policy", s.opts.FailurePolicy,
	)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}

		s.RunCycle(ctx)

		if !s.sleep(ctx) {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunCycle performs a single poll cycle. Fetch failures end the cycle before
// anything is written.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	start := s.opts.Clock.Now()

	feed, err := s.fetcher.Fetch(ctx)
	s.metrics.FetchDuration.Observe(s.opts.Clock.Since(start).Seconds())
	if err != nil {
		s.logFetchError(ctx, err)
		s.metrics.Cycles.WithLabelValues("fetch_error").Inc()
		return CycleResult{Err: err}
	}

	s.archive(ctx, feed)

	merged := domain.MergeAreas(feed.Areas)
	names := domain.SortedKeys(merged)
	s.metrics.AreasFetched.Set(float64(len(feed.Areas)))
	s.metrics.TownsMerged.Set(float64(len(names)))

	result, persisted := s.persistAll(ctx, merged, names)
	result.Areas = len(feed.Areas)
	result.Towns = len(names)

	s.publish(ctx, persisted)
	s.checkReference(names)

	outcome := "ok"
	if result.Aborted {
		outcome = "aborted"
	} else {
		s.metrics.LastCycleSuccess.Set(float64(s.opts.Clock.Now().Unix()))
	}
	s.metrics.Cycles.WithLabelValues(outcome).Inc()
	s.metrics.CycleDuration.Observe(s.opts.Clock.Since(start).Seconds())

	if result.Persisted > 0 {
		s.ready.Store(true)
	}

	s.logger.Info("cycle complete",
		"areas", result.Areas,
		"towns", result.Towns,
		"persisted", result.Persisted,
		"skipped", result.Skipped,
		"transient", result.Transient,
		"failed", result.Failed,
		"aborted", result.Aborted,
	)
	return result
}

// persistAll transforms and writes every merged town with at most Workers in
// flight. Under the abort policy no new town is started after the first
// non-transient persistence error.
func (s *Scheduler) persistAll(ctx context.Context, merged map[string]string, names []string) (CycleResult, []domain.Town) {
	var (
		g         errgroup.Group
		stop      atomic.Bool
		skipped   atomic.Int64
		transient atomic.Int64
		failed    atomic.Int64
		mu        sync.Mutex
		written   = make([]domain.Town, 0, len(names))
	)
	g.SetLimit(s.opts.Workers)
	abort := s.opts.FailurePolicy == config.FailureAbort

	for _, name := range names {
		if stop.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if stop.Load() {
				return nil
			}
			town, err := s.transformer.Transform(ctx, name, merged[name])
			if err != nil {
				s.logger.Warn("transform failed, skipping town", "town", name, "error", err)
				skipped.Add(1)
				return nil
			}

			town = domain.Stamp(town)
			if err := s.repo.Put(ctx, town); err != nil {
				perr := &domain.PersistenceError{Town: town.NameLower, Err: err}
				if domain.IsTransientPersistence(err) {
					s.logger.Warn("transient validation error, skipping town", "town", town.Name, "error", err)
					s.metrics.PersistErrors.WithLabelValues("transient").Inc()
					transient.Add(1)
					return nil
				}
				s.logger.Error("persist town failed", "town", town.Name, "error", err)
				s.metrics.PersistErrors.WithLabelValues("fatal").Inc()
				failed.Add(1)
				if abort {
					stop.Store(true)
					return perr
				}
				return nil
			}

			s.metrics.TownsPersisted.Inc()
			mu.Lock()
			written = append(written, town)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(written, func(i, j int) bool { return written[i].Name < written[j].Name })
	return CycleResult{
		Persisted: len(written),
		Skipped:   int(skipped.Load()),
		Transient: int(transient.Load()),
		Failed:    int(failed.Load()),
		Aborted:   err != nil,
		Err:       err,
	}, written
}

func (s *Scheduler) logFetchError(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		s.logger.Debug("fetch interrupted by shutdown", "error", err)
	case errors.Is(err, domain.ErrFeedShape):
		s.logger.Info("feed has no town areas, skipping cycle", "error", err)
	default:
		s.logger.Warn("feed fetch failed, skipping cycle", "error", err)
	}
}

func (s *Scheduler) archive(ctx context.Context, feed domain.FeedSnapshot) {
	if s.opts.Archiver == nil {
		return
	}
	if err := s.opts.Archiver.Archive(ctx, feed.Body, feed.FetchedAt); err != nil {
		s.logger.Warn("archive raw feed failed", "error", err)
		s.metrics.ArchiveErrors.Inc()
	}
}

func (s *Scheduler) publish(ctx context.Context, towns []domain.Town) {
	if s.opts.Publisher == nil || len(towns) == 0 {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, towns); err != nil {
		s.logger.Warn("publish snapshots failed", "error", err, "count", len(towns))
		s.metrics.PublishErrors.Inc()
		return
	}
	s.metrics.SnapshotsProduced.Add(float64(len(towns)))
}

func (s *Scheduler) checkReference(names []string) {
	if !s.transformer.HasReference() {
		return
	}
	for _, name := range names {
		if s.transformer.IsReference(name) {
			return
		}
	}
	s.logger.Info("reference town not found")
}

// sleep waits one interval. Returns false if the context ends first.
func (s *Scheduler) sleep(ctx context.Context) bool {
	timer := s.opts.Clock.NewTimer(s.opts.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
