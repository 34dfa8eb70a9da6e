package entity

import (
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// DefaultRetention is how long an orphaned annotation is kept.
const DefaultRetention = 7 * 24 * time.Hour

// Reconciler reconciles entity annotations.
type Reconciler struct {
	// Retention is how long an annotation survives after its entity
	// disappeared. Zero means DefaultRetention.
	Retention time.Duration
}

func (r Reconciler) retention() time.Duration {
	if r.Retention <= 0 {
		return DefaultRetention
	}
	return r.Retention
}

// Measurement reconciles every source in cur against the source with the same
// UUID in prev. prev may be nil. cur is modified in place.
func (r Reconciler) Measurement(prev *types.Measurement, cur []types.SourceMeasurement, now time.Time) {
	for i := range cur {
		var old *types.SourceMeasurement
		if prev != nil {
			if s, ok := prev.Source(cur[i].SourceUUID); ok {
				old = &s
			}
		}
		cur[i] = r.Source(old, cur[i], now)
	}
}

// Source returns cur with its entity user data reconciled against prev and
// the first_seen of its entities filled in. prev may be nil.
func (r Reconciler) Source(prev *types.SourceMeasurement, cur types.SourceMeasurement, now time.Time) types.SourceMeasurement {
	var previous map[string]types.EntityUserData
	if prev != nil {
		previous = prev.EntityUserData
	}

	// A failed source reports no entities; treating them all as gone would
	// orphan every annotation.
	if cur.HasError() {
		cur.EntityUserData = clone(previous)
		return cur
	}

	known := make(map[string]types.EntityUserData, len(previous)+len(cur.EntityUserData))
	for key, data := range previous {
		known[key] = data
	}
	for key, data := range cur.EntityUserData {
		if _, ok := known[key]; !ok {
			known[key] = data
		}
	}

	out := make(map[string]types.EntityUserData, len(known))
	consumed := make(map[string]bool, len(cur.Entities))
	for _, e := range cur.Entities {
		consumed[e.Key] = true
		data, ok := known[e.Key]
		if e.OldKey != "" {
			// The old key's copy is discarded even when the new key has its own.
			old, found := known[e.OldKey]
			if found {
				consumed[e.OldKey] = true
			}
			if !ok {
				data, ok = old, found
			}
		}
		if ok {
			data.OrphanedSince = nil
			out[e.Key] = data
		}
	}

	for key, data := range known {
		if consumed[key] {
			continue
		}
		switch {
		case data.OrphanedSince == nil:
			orphaned := now
			data.OrphanedSince = &orphaned
		case now.Sub(*data.OrphanedSince) > r.retention():
			continue
		}
		out[key] = data
	}
	if len(out) == 0 {
		out = nil
	}
	cur.EntityUserData = out
	cur.Entities = firstSeen(prev, cur.Entities, now)
	return cur
}

// firstSeen stamps entities with the time they were first reported, carried
// from the previous entity with the same key or old key.
func firstSeen(prev *types.SourceMeasurement, entities []types.Entity, now time.Time) []types.Entity {
	seen := map[string]*time.Time{}
	if prev != nil {
		for _, e := range prev.Entities {
			seen[e.Key] = e.FirstSeen
		}
	}
	out := make([]types.Entity, len(entities))
	for i, e := range entities {
		if e.FirstSeen == nil {
			first := seen[e.Key]
			if first == nil && e.OldKey != "" {
				first = seen[e.OldKey]
			}
			if first == nil {
				first = &now
			}
			ts := *first
			e.FirstSeen = &ts
		}
		out[i] = e
	}
	return out
}

func clone(m map[string]types.EntityUserData) map[string]types.EntityUserData {
	if m == nil {
		return nil
	}
	out := make(map[string]types.EntityUserData, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
