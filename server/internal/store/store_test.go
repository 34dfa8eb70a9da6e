package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var base = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

func measurement(id, metric string, start time.Time, value string) *types.Measurement {
	return &types.Measurement{
		ID:         id,
		MetricUUID: metric,
		Start:      start,
		End:        start,
		Sources:    []types.SourceMeasurement{{SourceUUID: "s1", Value: types.Str(value)}},
		Scales: map[types.Scale]types.ScaleMeasurement{
			types.ScaleCount: {Value: types.Str(value), Status: types.StatusTargetMet, Direction: types.FewerIsBetter},
		},
	}
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestCount(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if n, err := s.Count(ctx); err != nil || n != 0 {
			t.Fatalf("Count on empty store = %d, %v; want 0, nil", n, err)
		}
		s.Insert(ctx, measurement("a", "m1", base, "1"))                  //nolint:errcheck
		s.Insert(ctx, measurement("b", "m1", base.Add(time.Minute), "2")) //nolint:errcheck
		s.Insert(ctx, measurement("c", "m2", base, "3"))                  //nolint:errcheck
		if n, err := s.Count(ctx); err != nil || n != 3 {
			t.Errorf("Count = %d, %v; want 3, nil", n, err)
		}
	})
}

func TestLatest_Empty(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		m, err := s.Latest(context.Background(), "none")
		if err != nil || m != nil {
			t.Errorf("Latest on empty store = %v, %v; want nil, nil", m, err)
		}
	})
}

func TestInsertAndLatest(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, v := range []string{"1", "2", "3"} {
			if err := s.Insert(ctx, measurement(v, "m1", base.Add(time.Duration(i)*time.Minute), v)); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		if err := s.Insert(ctx, measurement("other", "m2", base, "9")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		m, err := s.Latest(ctx, "m1")
		if err != nil || m == nil {
			t.Fatalf("Latest = %v, %v", m, err)
		}
		if m.ID != "3" || *m.Scales[types.ScaleCount].Value != "3" {
			t.Errorf("Latest = %s, want 3", m.ID)
		}
		if !m.Start.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("Start = %v", m.Start)
		}
	})
}

func TestExtendEnd(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Insert(ctx, measurement("a", "m1", base, "1")); err != nil {
			t.Fatal(err)
		}
		later := base.Add(time.Hour)
		if err := s.ExtendEnd(ctx, "a", later); err != nil {
			t.Fatalf("ExtendEnd: %v", err)
		}
		m, _ := s.Latest(ctx, "m1")
		if !m.End.Equal(later) || !m.Start.Equal(base) {
			t.Errorf("window = %v..%v, want %v..%v", m.Start, m.End, base, later)
		}
		if err := s.ExtendEnd(ctx, "missing", later); !errors.Is(err, ErrNotFound) {
			t.Errorf("ExtendEnd(missing) = %v, want ErrNotFound", err)
		}
	})
}

func TestHistory(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, v := range []string{"1", "2", "3"} {
			s.Insert(ctx, measurement(v, "m1", base.Add(time.Duration(i)*time.Minute), v)) //nolint:errcheck
		}

		all, err := s.History(ctx, "m1", 0)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(all) != 3 || all[0].ID != "3" || all[2].ID != "1" {
			t.Errorf("History = %v, want newest first", ids(all))
		}
		two, _ := s.History(ctx, "m1", 2)
		if len(two) != 2 || two[0].ID != "3" || two[1].ID != "2" {
			t.Errorf("History(limit 2) = %v", ids(two))
		}
		none, _ := s.History(ctx, "nope", 10)
		if len(none) != 0 {
			t.Errorf("History(unknown) = %v", ids(none))
		}
	})
}

func TestLatestPerMetric(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Insert(ctx, measurement("a1", "a", base, "1"))                  //nolint:errcheck
		s.Insert(ctx, measurement("a2", "a", base.Add(time.Minute), "2")) //nolint:errcheck
		s.Insert(ctx, measurement("b1", "b", base, "1"))                  //nolint:errcheck

		got, err := s.LatestPerMetric(ctx)
		if err != nil {
			t.Fatalf("LatestPerMetric: %v", err)
		}
		if len(got) != 2 || got["a"].ID != "a2" || got["b"].ID != "b1" {
			t.Errorf("LatestPerMetric = %v", got)
		}
	})
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	in := measurement("a", "m1", base, "1")
	s.Insert(ctx, in) //nolint:errcheck
	in.Sources[0].Value = types.Str("changed")

	got, _ := s.Latest(ctx, "m1")
	if *got.Sources[0].Value != "1" {
		t.Error("store shares memory with the inserted measurement")
	}
	got.Sources[0].Value = types.Str("changed")
	again, _ := s.Latest(ctx, "m1")
	if *again.Sources[0].Value != "1" {
		t.Error("store shares memory with a returned measurement")
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			s.Insert(ctx, measurement(id+time.Duration(i).String(), "m1", base, "1")) //nolint:errcheck
			s.Latest(ctx, "m1")                                                       //nolint:errcheck
			s.History(ctx, "m1", 5)                                                   //nolint:errcheck
		}(i)
	}
	wg.Wait()
	if n, _ := s.Count(ctx); n != 50 {
		t.Errorf("Count = %d, want 50", n)
	}
}

func TestSQLite_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	in := measurement("a", "m1", base, "7")
	in.Sources[0].Entities = []types.Entity{types.NewEntity("e1", map[string]string{"severity": "major"})}
	in.Sources[0].EntityUserData = map[string]types.EntityUserData{"e1": {Status: types.EntityWontFix}}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Latest(ctx, "m1")
	if err != nil || got == nil {
		t.Fatalf("Latest after reopen = %v, %v", got, err)
	}
	if !got.Equal(in) {
		t.Errorf("reopened measurement differs: %+v", got)
	}
}

func TestOpen(t *testing.T) {
	if s, err := Open("memory", ""); err != nil || s == nil {
		t.Errorf("Open(memory) = %v, %v", s, err)
	}
	if _, err := Open("postgres", ""); err == nil {
		t.Error("Open(postgres): expected error")
	}
}

func ids(ms []*types.Measurement) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
