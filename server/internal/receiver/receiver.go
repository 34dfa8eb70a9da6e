package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qualitypulse/qualitypulse/pkg/types"
	"github.com/qualitypulse/qualitypulse/server/internal/catalog"
	"github.com/qualitypulse/qualitypulse/server/internal/entity"
	"github.com/qualitypulse/qualitypulse/server/internal/measure"
	"github.com/qualitypulse/qualitypulse/server/internal/notify"
	"github.com/qualitypulse/qualitypulse/server/internal/store"
)

// Outcome is what Receive did with a post.
type Outcome string

const (
	Discarded Outcome = "discarded"
	Extended  Outcome = "extended"
	Inserted  Outcome = "inserted"
)

var (
	ErrUnknownMetric = errors.New("receiver: metric not in catalog")
	ErrUnknownSource = errors.New("receiver: source not configured on metric")
	ErrNoMeasurement = errors.New("receiver: metric has no measurement yet")
)

// Publisher receives every inserted measurement.
type Publisher interface {
	Publish(m *types.Measurement)
}

// Receiver turns posted measurements into stored ones.
type Receiver struct {
	catalog    *catalog.Catalog
	store      store.Store
	reconciler entity.Reconciler
	notifier   notify.Notifier
	publisher  Publisher
	locks      keyedMutex
	now        func() time.Time // injectable for deterministic tests
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithNotifier sets the status change notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Receiver) { r.notifier = n }
}

// WithPublisher sets the stream inserted measurements are published to.
func WithPublisher(p Publisher) Option {
	return func(r *Receiver) { r.publisher = p }
}

// WithOrphanRetention sets how long annotations of vanished entities are kept.
func WithOrphanRetention(d time.Duration) Option {
	return func(r *Receiver) { r.reconciler.Retention = d }
}

// New returns a Receiver over cat and st.
func New(cat *catalog.Catalog, st store.Store, opts ...Option) *Receiver {
	r := &Receiver{
		catalog:  cat,
		store:    st,
		notifier: notify.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive stores post. The returned measurement is the inserted or extended
// one; it is nil when the post was discarded.
func (r *Receiver) Receive(ctx context.Context, post *types.MeasurementPost) (Outcome, *types.Measurement, error) {
	metric, ok := r.catalog.Metric(post.MetricUUID)
	if !ok {
		slog.Debug("receiver: discarding measurement of unknown metric", "metric", post.MetricUUID)
		return Discarded, nil, nil
	}
	for _, s := range post.Sources {
		if _, ok := metric.Sources[s.SourceUUID]; !ok {
			slog.Debug("receiver: discarding measurement of unknown source",
				"metric", post.MetricUUID,
				"source", s.SourceUUID,
			)
			return Discarded, nil, nil
		}
	}

	unlock := r.locks.Lock(metric.UUID)
	defer unlock()

	prev, err := r.store.Latest(ctx, metric.UUID)
	if err != nil {
		return "", nil, err
	}
	now := r.now()

	sources := make([]types.SourceMeasurement, len(post.Sources))
	for i, s := range post.Sources {
		s.SourceParameterHash = metric.Sources[s.SourceUUID].ParameterHash()
		sources[i] = s
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].SourceUUID < sources[j].SourceUUID })
	r.reconciler.Measurement(prev, sources, now)

	m := r.build(metric, sources, post.IssueStatuses, post.HasError, prev, now)

	if prev != nil && prev.Equal(m) && sameHashes(prev, m) {
		if err := r.store.ExtendEnd(ctx, prev.ID, now); err != nil {
			return "", nil, fmt.Errorf("receiver: extend %s: %w", prev.ID, err)
		}
		prev.End = now
		slog.Debug("receiver: measurement extended", "metric", metric.UUID, "id", prev.ID)
		return Extended, prev, nil
	}

	if err := r.insert(ctx, metric, m, prev, now); err != nil {
		return "", nil, err
	}
	return Inserted, m, nil
}

// Annotate sets the user data of an entity of the metric's latest measurement
// and stores the result as a new measurement.
func (r *Receiver) Annotate(ctx context.Context, metricUUID, sourceUUID, key string, data types.EntityUserData) (*types.Measurement, error) {
	if data.Status != "" && !data.Status.Valid() {
		return nil, fmt.Errorf("receiver: invalid entity status %q", data.Status)
	}
	metric, ok := r.catalog.Metric(metricUUID)
	if !ok {
		return nil, ErrUnknownMetric
	}
	if _, ok := metric.Sources[sourceUUID]; !ok {
		return nil, ErrUnknownSource
	}

	unlock := r.locks.Lock(metric.UUID)
	defer unlock()

	prev, err := r.store.Latest(ctx, metric.UUID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, ErrNoMeasurement
	}
	now := r.now()

	cp := prev.Copy()
	found := false
	for i := range cp.Sources {
		s := &cp.Sources[i]
		if s.SourceUUID != sourceUUID {
			continue
		}
		if s.EntityUserData == nil {
			s.EntityUserData = map[string]types.EntityUserData{}
		}
		data.OrphanedSince = s.EntityUserData[key].OrphanedSince
		s.EntityUserData[key] = data
		found = true
	}
	if !found {
		return nil, ErrUnknownSource
	}

	m := r.build(metric, cp.Sources, cp.IssueStatuses, cp.HasError, prev, now)
	if err := r.insert(ctx, metric, m, prev, now); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Receiver) build(metric *catalog.Metric, sources []types.SourceMeasurement, issues []types.IssueStatus, hasError bool, prev *types.Measurement, now time.Time) *types.Measurement {
	scales := measure.Compute(metric, sources, prev, now)
	for _, s := range sources {
		if s.HasError() {
			hasError = true
		}
	}
	return &types.Measurement{
		MetricUUID:    metric.UUID,
		ReportUUID:    metric.ReportUUID,
		Sources:       sources,
		Scales:        scales,
		IssueStatuses: issues,
		HasError:      hasError || measure.HasCalculationError(scales),
	}
}

func (r *Receiver) insert(ctx context.Context, metric *catalog.Metric, m, prev *types.Measurement, now time.Time) error {
	m.ID = uuid.NewString()
	m.Start, m.End = now, now
	if err := r.store.Insert(ctx, m); err != nil {
		return fmt.Errorf("receiver: insert: %w", err)
	}
	slog.Debug("receiver: measurement inserted", "metric", metric.UUID, "id", m.ID)

	if r.publisher != nil {
		r.publisher.Publish(m.Copy())
	}
	if prev != nil {
		old, cur := prev.Scales[metric.Scale], m.Scales[metric.Scale]
		if old.Status != cur.Status {
			// Webhook delivery runs outside the metric lock and the request.
			go r.notifier.StatusChanged(context.WithoutCancel(ctx), notify.StatusChange{
				MetricUUID: metric.UUID,
				MetricName: metric.Name,
				ReportUUID: metric.ReportUUID,
				Scale:      metric.Scale,
				Old:        old.Status,
				New:        cur.Status,
				Value:      cur.Value,
				At:         now,
			})
		}
	}
	return nil
}

// sameHashes reports whether both measurements were collected with the same
// source parameters.
func sameHashes(a, b *types.Measurement) bool {
	if len(a.Sources) != len(b.Sources) {
		return false
	}
	for i := range a.Sources {
		if a.Sources[i].SourceParameterHash != b.Sources[i].SourceParameterHash {
			return false
		}
	}
	return true
}
