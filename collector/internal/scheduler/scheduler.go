package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/qualitypulse/qualitypulse/collector/internal/config"
	"github.com/qualitypulse/qualitypulse/collector/internal/connector"
	"github.com/qualitypulse/qualitypulse/collector/internal/shipper"
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// Catalog provides the metric catalog.
type Catalog interface {
	Metrics(ctx context.Context) ([]types.CatalogMetric, error)
}

// Collector collects one metric.
type Collector interface {
	Collect(ctx context.Context, metric types.CatalogMetric) (*types.MeasurementPost, error)
}

// Poster delivers one measurement.
type Poster interface {
	Post(ctx context.Context, post *types.MeasurementPost) error
}

// Settings are the scheduler's runtime tunables.
type Settings struct {
	SleepDuration        time.Duration
	MeasurementFrequency time.Duration
	MeasurementLimit     int
	MaxBackoff           time.Duration
	PostRate             float64
	HealthCheckFile      string
}

// SettingsFrom extracts the scheduler settings from the collector config.
func SettingsFrom(c config.CollectorConfig) Settings {
	return Settings{
		SleepDuration:        c.SleepDuration,
		MeasurementFrequency: c.MeasurementFrequency,
		MeasurementLimit:     c.MeasurementLimit,
		MaxBackoff:           c.MaxBackoff,
		PostRate:             c.PostRate,
		HealthCheckFile:      c.HealthCheckFile,
	}
}

// collected remembers the last collection of a metric.
type collected struct {
	hash string
	at   time.Time
}

// Stats summarises one cycle.
type Stats struct {
	Due     int
	Posted  int
	Skipped int
	Failed  int
}

// Scheduler decides what to collect and when.
type Scheduler struct {
	catalog   Catalog
	collector Collector
	poster    Poster

	mu       sync.Mutex
	settings Settings
	last     map[string]collected

	limiter *rate.Limiter
	backoff *shipper.Backoff
	now     func() time.Time // injectable for tests
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Scheduler.
func New(catalog Catalog, collector Collector, poster Poster, settings Settings) *Scheduler {
	return &Scheduler{
		catalog:   catalog,
		collector: collector,
		poster:    poster,
		settings:  settings,
		last:      make(map[string]collected),
		limiter:   rate.NewLimiter(postLimit(settings.PostRate), 1),
		backoff:   shipper.NewBackoff(settings.MaxBackoff),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Update swaps the tunables. Work already in flight keeps the old values.
func (s *Scheduler) Update(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.backoff.SetMax(settings.MaxBackoff)
	s.mu.Unlock()
	s.limiter.SetLimit(postLimit(settings.PostRate))
	slog.Info("scheduler: settings updated",
		"sleep_duration", settings.SleepDuration,
		"measurement_limit", settings.MeasurementLimit,
		"measurement_frequency", settings.MeasurementFrequency)
}

func (s *Scheduler) current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Run executes cycles until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if _, err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler: cycle failed", "err", err)
		}
		if err := s.sleep(ctx, s.current().SleepDuration); err != nil {
			return
		}
	}
}

// Cycle performs one collection cycle. It only returns an error when ctx
// ends before the catalog could be fetched.
func (s *Scheduler) Cycle(ctx context.Context) (Stats, error) {
	settings := s.current()
	s.writeHealthCheck(settings.HealthCheckFile)

	metrics, err := s.fetchCatalog(ctx)
	if err != nil {
		return Stats{}, err
	}

	due := s.due(metrics, settings.MeasurementFrequency)
	stats := Stats{Due: len(due)}
	if len(due) == 0 {
		slog.Debug("scheduler: nothing to collect", "metrics", len(metrics))
		return stats, nil
	}
	slog.Info("scheduler: collecting", "due", len(due), "metrics", len(metrics))

	limit := settings.MeasurementLimit
	if limit < 1 {
		limit = 1
	}
	for start := 0; start < len(due); start += limit {
		end := min(start+limit, len(due))
		s.collectBatch(ctx, due[start:end], &stats)
		if ctx.Err() != nil {
			break
		}
	}
	slog.Info("scheduler: cycle done",
		"due", stats.Due, "posted", stats.Posted, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// fetchCatalog retries until the catalog is fetched or ctx ends.
func (s *Scheduler) fetchCatalog(ctx context.Context) ([]types.CatalogMetric, error) {
	for {
		metrics, err := s.catalog.Metrics(ctx)
		if err == nil {
			s.mu.Lock()
			s.backoff.Reset()
			s.mu.Unlock()
			return metrics, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		s.mu.Lock()
		wait := s.backoff.Next()
		s.mu.Unlock()
		slog.Error("scheduler: catalog fetch failed, will retry", "err", err, "retry_in", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
		s.writeHealthCheck(s.current().HealthCheckFile)
	}
}

// due returns the metrics to collect now, changed and outdated ones first.
// Metrics no longer in the catalog are forgotten.
func (s *Scheduler) due(metrics []types.CatalogMetric, frequency time.Duration) []types.CatalogMetric {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]struct{}, len(metrics))
	type candidate struct {
		metric   types.CatalogMetric
		priority int
	}
	var candidates []candidate
	for _, m := range metrics {
		present[m.MetricUUID] = struct{}{}
		prev, seen := s.last[m.MetricUUID]
		switch {
		case !seen || prev.hash != m.Hash() || m.Outdated:
			candidates = append(candidates, candidate{m, 0})
		case now.Sub(prev.at) >= frequency:
			candidates = append(candidates, candidate{m, 1})
		}
	}
	for uuid := range s.last {
		if _, ok := present[uuid]; !ok {
			delete(s.last, uuid)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].metric.MetricUUID < candidates[j].metric.MetricUUID
	})
	out := make([]types.CatalogMetric, len(candidates))
	for i, c := range candidates {
		out[i] = c.metric
	}
	return out
}

// collectBatch collects and posts the metrics of one batch concurrently.
// Failures are counted and logged; they never stop the batch.
func (s *Scheduler) collectBatch(ctx context.Context, batch []types.CatalogMetric, stats *Stats) {
	var mu sync.Mutex
	count := func(f *int) {
		mu.Lock()
		*f++
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(len(batch))
	for _, m := range batch {
		m := m
		g.Go(func() error {
			post, err := s.collector.Collect(ctx, m)
			var cfgErr *connector.ConfigurationError
			switch {
			case errors.As(err, &cfgErr):
				slog.Warn("scheduler: skipping metric with invalid configuration",
					"metric", m.MetricUUID, "err", err)
				s.markCollected(m)
				count(&stats.Skipped)
				return nil
			case err != nil:
				slog.Error("scheduler: collect failed", "metric", m.MetricUUID, "err", err)
				count(&stats.Failed)
				return nil
			}

			if err := s.post(ctx, post); err != nil {
				slog.Error("scheduler: post failed", "metric", m.MetricUUID, "err", err)
				var se *shipper.StatusError
				if errors.As(err, &se) && se.Permanent() {
					s.markCollected(m)
				}
				count(&stats.Failed)
				return nil
			}
			s.markCollected(m)
			count(&stats.Posted)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) post(ctx context.Context, post *types.MeasurementPost) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return s.poster.Post(ctx, post)
}

func (s *Scheduler) markCollected(m types.CatalogMetric) {
	now := s.now()
	s.mu.Lock()
	s.last[m.MetricUUID] = collected{hash: m.Hash(), at: now}
	s.mu.Unlock()
}

// writeHealthCheck records liveness. Failures are logged, never fatal.
func (s *Scheduler) writeHealthCheck(path string) {
	if path == "" {
		return
	}
	stamp := s.now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte(stamp+"\n"), 0o644); err != nil { //nolint:gosec // not secret
		slog.Warn("scheduler: cannot write health check", "path", path, "err", err)
	}
}

// --- helpers ---

func postLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
