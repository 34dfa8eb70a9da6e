package receiver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
	"github.com/qualitypulse/qualitypulse/server/internal/catalog"
	"github.com/qualitypulse/qualitypulse/server/internal/notify"
	"github.com/qualitypulse/qualitypulse/server/internal/store"
)

const testCatalog = `
reports:
  - uuid: r1
    subjects:
      - uuid: subj
        metrics:
          - uuid: m1
            name: Violations
            type: violations
            sources:
              - uuid: s1
                type: sonarqube
                parameters: {url: "https://sonar", component: api}
              - uuid: s2
                type: sonarqube
                parameters: {url: "https://sonar", component: web}
`

type fakeNotifier struct {
	mu      sync.Mutex
	changes []notify.StatusChange
}

func (f *fakeNotifier) StatusChanged(_ context.Context, c notify.StatusChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
}

func (f *fakeNotifier) wait(t *testing.T, n int) []notify.StatusChange {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		got := append([]notify.StatusChange(nil), f.changes...)
		f.mu.Unlock()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*types.Measurement
}

func (f *fakePublisher) Publish(m *types.Measurement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, m)
}

type fixture struct {
	r         *Receiver
	store     *store.Memory
	notifier  *fakeNotifier
	publisher *fakePublisher
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	set, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog.Parse: %v", err)
	}
	f := &fixture{
		store:     store.NewMemory(),
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		clock:     time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC),
	}
	f.r = New(catalog.New(set), f.store, WithNotifier(f.notifier), WithPublisher(f.publisher))
	f.r.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) receive(t *testing.T, post *types.MeasurementPost) (Outcome, *types.Measurement) {
	t.Helper()
	out, m, err := f.r.Receive(context.Background(), post)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return out, m
}

func (f *fixture) stored(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func post(v1, v2 string) *types.MeasurementPost {
	return &types.MeasurementPost{
		MetricUUID: "m1",
		Sources: []types.SourceMeasurement{
			{SourceUUID: "s2", Value: types.Str(v2), Total: types.Str("100")},
			{SourceUUID: "s1", Value: types.Str(v1), Total: types.Str("100")},
		},
	}
}

func TestReceive_FirstMeasurementInserted(t *testing.T) {
	f := newFixture(t)
	out, m := f.receive(t, post("0", "0"))

	if out != Inserted {
		t.Fatalf("outcome = %s, want inserted", out)
	}
	if m.ID == "" || !m.Start.Equal(f.clock) || !m.End.Equal(f.clock) {
		t.Errorf("measurement = %+v", m)
	}
	sm := m.Scales[types.ScaleCount]
	if *sm.Value != "0" || sm.Status != types.StatusTargetMet || sm.StatusStart != nil {
		t.Errorf("count scale = %+v", sm)
	}
	if m.Sources[0].SourceUUID != "s1" || m.Sources[0].SourceParameterHash == "" {
		t.Errorf("sources should be sorted and stamped: %+v", m.Sources)
	}
	if len(f.publisher.published) != 1 {
		t.Errorf("published = %d, want 1", len(f.publisher.published))
	}
}

func TestReceive_EqualMeasurementExtendsEnd(t *testing.T) {
	f := newFixture(t)
	_, first := f.receive(t, post("1", "2"))

	f.clock = f.clock.Add(time.Hour)
	out, m := f.receive(t, post("1", "2"))

	if out != Extended {
		t.Fatalf("outcome = %s, want extended", out)
	}
	if m.ID != first.ID || !m.End.Equal(f.clock) {
		t.Errorf("extended = %s end %v, want %s end %v", m.ID, m.End, first.ID, f.clock)
	}
	if f.stored(t) != 1 {
		t.Errorf("stored = %d, want 1", f.stored(t))
	}
	latest, _ := f.store.Latest(context.Background(), "m1")
	if !latest.End.Equal(f.clock) || !latest.Start.Equal(first.Start) {
		t.Errorf("stored window = %v..%v", latest.Start, latest.End)
	}
}

func TestReceive_StatusChangeInsertsWithFreshStatusStart(t *testing.T) {
	f := newFixture(t)
	f.receive(t, post("0", "0"))

	f.clock = f.clock.Add(time.Hour)
	out, m := f.receive(t, post("10", "5"))

	if out != Inserted {
		t.Fatalf("outcome = %s, want inserted", out)
	}
	sm := m.Scales[types.ScaleCount]
	if sm.Status != types.StatusTargetNotMet {
		t.Errorf("status = %q, want target_not_met", sm.Status)
	}
	if sm.StatusStart == nil || !sm.StatusStart.Equal(m.Start) {
		t.Errorf("status_start = %v, want %v", sm.StatusStart, m.Start)
	}

	changes := f.notifier.wait(t, 1)
	if len(changes) != 1 || changes[0].Old != types.StatusTargetMet || changes[0].New != types.StatusTargetNotMet {
		t.Errorf("notified = %+v", changes)
	}
}

func TestReceive_ValueChangeSameStatusCarriesStatusStart(t *testing.T) {
	f := newFixture(t)
	f.receive(t, post("1", "1"))
	f.clock = f.clock.Add(time.Hour)
	_, second := f.receive(t, post("1", "2"))
	f.clock = f.clock.Add(time.Hour)
	_, third := f.receive(t, post("2", "2"))

	if second.ID == third.ID {
		t.Fatal("changed value should insert")
	}
	want := second.Scales[types.ScaleCount].StatusStart
	got := third.Scales[types.ScaleCount].StatusStart
	if want == nil || got == nil || !got.Equal(*want) {
		t.Errorf("status_start = %v, want %v", got, want)
	}
	if n := len(f.notifier.wait(t, 0)); n != 0 {
		t.Errorf("notified %d times for an unchanged status", n)
	}
}

func TestReceive_Discards(t *testing.T) {
	tests := []struct {
		name string
		post *types.MeasurementPost
	}{
		{"deleted metric", &types.MeasurementPost{MetricUUID: "gone"}},
		{"deleted source", &types.MeasurementPost{MetricUUID: "m1", Sources: []types.SourceMeasurement{
			{SourceUUID: "s1", Value: types.Str("1")},
			{SourceUUID: "s-removed", Value: types.Str("1")},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			out, m := f.receive(t, tt.post)
			if out != Discarded || m != nil {
				t.Errorf("Receive = %s, %v; want discarded", out, m)
			}
			if f.stored(t) != 0 {
				t.Error("discarded measurement was stored")
			}
		})
	}
}

func TestReceive_ChangedParametersInsert(t *testing.T) {
	f := newFixture(t)
	_, first := f.receive(t, post("1", "1"))

	// Simulate a configuration edit by changing the stored hash.
	latest, _ := f.store.Latest(context.Background(), "m1")
	latest.Sources[0].SourceParameterHash = "before-edit"
	f.store = store.NewMemory()
	f.store.Insert(context.Background(), latest) //nolint:errcheck
	f.r.store = f.store

	f.clock = f.clock.Add(time.Hour)
	out, m := f.receive(t, post("1", "1"))
	if out != Inserted {
		t.Fatalf("outcome = %s, want inserted", out)
	}
	if m.ID == first.ID {
		t.Error("expected a new measurement")
	}
}

func TestReceive_ReconcilesEntities(t *testing.T) {
	f := newFixture(t)
	p := post("1", "0")
	p.Sources[1].Entities = []types.Entity{types.NewEntity("e1", nil)}
	_, first := f.receive(t, p)
	if fs := first.Sources[0].Entities[0].FirstSeen; fs == nil || !fs.Equal(f.clock) {
		t.Fatalf("first_seen = %v", fs)
	}

	if _, err := f.r.Annotate(context.Background(), "m1", "s1", "e1", types.EntityUserData{Status: types.EntityFalsePositive}); err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	f.clock = f.clock.Add(time.Hour)
	p = post("0", "0")
	out, m := f.receive(t, p)
	if out != Inserted {
		t.Fatalf("outcome = %s, want inserted", out)
	}
	d := m.Sources[0].EntityUserData["e1"]
	if d.Status != types.EntityFalsePositive || d.OrphanedSince == nil || !d.OrphanedSince.Equal(f.clock) {
		t.Errorf("annotation = %+v, want orphaned since now", d)
	}
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.r.Annotate(ctx, "m1", "s1", "e1", types.EntityUserData{Status: types.EntityConfirmed}); !errors.Is(err, ErrNoMeasurement) {
		t.Errorf("Annotate without measurement = %v, want ErrNoMeasurement", err)
	}

	p := post("2", "0")
	p.Sources[1].Entities = []types.Entity{types.NewEntity("e1", nil), types.NewEntity("e2", nil)}
	f.receive(t, p)

	f.clock = f.clock.Add(time.Minute)
	m, err := f.r.Annotate(ctx, "m1", "s1", "e1", types.EntityUserData{Status: types.EntityWontFix, Rationale: "legacy"})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if got := m.Sources[0].EntityUserData["e1"]; got.Status != types.EntityWontFix || got.Rationale != "legacy" {
		t.Errorf("annotation = %+v", got)
	}
	if v := *m.Scales[types.ScaleCount].Value; v != "1" {
		t.Errorf("count = %s, want 1 after marking one entity won't fix", v)
	}
	if f.stored(t) != 2 {
		t.Errorf("stored = %d, want 2", f.stored(t))
	}

	tests := []struct {
		name           string
		metric, source string
		data           types.EntityUserData
		want           error
	}{
		{"unknown metric", "nope", "s1", types.EntityUserData{}, ErrUnknownMetric},
		{"unknown source", "m1", "nope", types.EntityUserData{}, ErrUnknownSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.r.Annotate(ctx, tt.metric, tt.source, "e1", tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Annotate = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := f.r.Annotate(ctx, "m1", "s1", "e1", types.EntityUserData{Status: "maybe"}); err == nil {
		t.Error("Annotate with invalid status: expected error")
	}
}

func TestReceive_ConcurrentPostsInsertOnce(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.r.Receive(context.Background(), post("3", "4")) //nolint:errcheck
		}()
	}
	wg.Wait()
	if f.stored(t) != 1 {
		t.Errorf("stored = %d, want 1", f.stored(t))
	}
}

func TestKeyedMutex_ForgetsReleasedKeys(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("a")
	unlock()
	if len(k.locks) != 0 {
		t.Errorf("locks = %d, want 0", len(k.locks))
	}
}
