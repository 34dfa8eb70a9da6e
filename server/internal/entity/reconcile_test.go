package entity

import (
	"testing"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var now = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func entities(keys ...string) []types.Entity {
	out := make([]types.Entity, len(keys))
	for i, k := range keys {
		out[i] = types.NewEntity(k, nil)
	}
	return out
}

func TestSource_OrphanLifecycle(t *testing.T) {
	prev := &types.SourceMeasurement{
		SourceUUID: "s1",
		Entities:   entities("newly-orphaned", "reunited"),
		EntityUserData: map[string]types.EntityUserData{
			"newly-orphaned":  {Status: types.EntityFalsePositive},
			"reunited":        {Status: types.EntityWontFix, OrphanedSince: ago(24 * time.Hour)},
			"still-orphaned":  {Status: types.EntityConfirmed, OrphanedSince: ago(2 * 24 * time.Hour)},
			"orphan-too-long": {Status: types.EntityFixed, OrphanedSince: ago(30 * 24 * time.Hour)},
		},
	}
	cur := types.SourceMeasurement{SourceUUID: "s1", Value: types.Str("1"), Entities: entities("reunited")}

	got := Reconciler{}.Source(prev, cur, now).EntityUserData

	if len(got) != 3 {
		t.Fatalf("annotations = %v, want 3", got)
	}
	if d := got["newly-orphaned"]; d.OrphanedSince == nil || !d.OrphanedSince.Equal(now) || d.Status != types.EntityFalsePositive {
		t.Errorf("newly-orphaned = %+v, want orphaned since now", d)
	}
	if d := got["reunited"]; d.OrphanedSince != nil || d.Status != types.EntityWontFix {
		t.Errorf("reunited = %+v, want orphaned_since cleared", d)
	}
	if d := got["still-orphaned"]; d.OrphanedSince == nil || !d.OrphanedSince.Equal(*ago(2 * 24 * time.Hour)) {
		t.Errorf("still-orphaned = %+v, want unchanged", d)
	}
	if _, ok := got["orphan-too-long"]; ok {
		t.Error("orphan-too-long should have been dropped")
	}
}

func TestSource_Retention(t *testing.T) {
	prev := &types.SourceMeasurement{EntityUserData: map[string]types.EntityUserData{
		"x": {Status: types.EntityConfirmed, OrphanedSince: ago(2 * time.Hour)},
	}}
	cur := types.SourceMeasurement{Value: types.Str("0")}

	if got := (Reconciler{Retention: time.Hour}).Source(prev, cur, now).EntityUserData; len(got) != 0 {
		t.Errorf("short retention kept %v", got)
	}
	if got := (Reconciler{}).Source(prev, cur, now).EntityUserData; len(got) != 1 {
		t.Errorf("default retention dropped annotation: %v", got)
	}
}

func TestSource_Rename(t *testing.T) {
	prev := &types.SourceMeasurement{
		Entities: entities("A"),
		EntityUserData: map[string]types.EntityUserData{
			"A": {Status: types.EntityFalsePositive, Rationale: "generated code"},
		},
	}
	prev.Entities[0].FirstSeen = ago(10 * 24 * time.Hour)
	renamed := types.NewEntity("B", nil)
	renamed.OldKey = "A"
	cur := types.SourceMeasurement{Value: types.Str("1"), Entities: []types.Entity{renamed}}

	got := Reconciler{}.Source(prev, cur, now)

	if _, ok := got.EntityUserData["A"]; ok {
		t.Error("annotation should no longer be stored under the old key")
	}
	if d := got.EntityUserData["B"]; d.Status != types.EntityFalsePositive || d.Rationale != "generated code" {
		t.Errorf("B = %+v, want annotation moved from A", d)
	}
	if fs := got.Entities[0].FirstSeen; fs == nil || !fs.Equal(*prev.Entities[0].FirstSeen) {
		t.Errorf("first_seen = %v, want carried from A", fs)
	}
}

func TestSource_RenameOntoAnnotatedKey(t *testing.T) {
	prev := &types.SourceMeasurement{
		Entities: entities("A", "B"),
		EntityUserData: map[string]types.EntityUserData{
			"A": {Status: types.EntityFalsePositive},
			"B": {Status: types.EntityConfirmed},
		},
	}
	renamed := types.NewEntity("B", nil)
	renamed.OldKey = "A"
	cur := types.SourceMeasurement{Value: types.Str("1"), Entities: []types.Entity{renamed}}

	got := Reconciler{}.Source(prev, cur, now)

	if d, ok := got.EntityUserData["A"]; ok {
		t.Errorf("A = %+v, want discarded", d)
	}
	if d := got.EntityUserData["B"]; d.Status != types.EntityConfirmed || d.OrphanedSince != nil {
		t.Errorf("B = %+v, want its own annotation kept", d)
	}
}

func TestSource_FirstSeen(t *testing.T) {
	first := ago(time.Hour)
	prev := &types.SourceMeasurement{Entities: entities("old")}
	prev.Entities[0].FirstSeen = first
	cur := types.SourceMeasurement{Value: types.Str("2"), Entities: entities("old", "new")}

	got := Reconciler{}.Source(prev, cur, now).Entities
	if !got[0].FirstSeen.Equal(*first) {
		t.Errorf("old first_seen = %v, want %v", got[0].FirstSeen, first)
	}
	if !got[1].FirstSeen.Equal(now) {
		t.Errorf("new first_seen = %v, want %v", got[1].FirstSeen, now)
	}
	if cur.Entities[1].FirstSeen != nil {
		t.Error("input entities should not be modified")
	}
}

func TestSource_ErrorKeepsAnnotations(t *testing.T) {
	prev := &types.SourceMeasurement{
		Entities:       entities("a"),
		EntityUserData: map[string]types.EntityUserData{"a": {Status: types.EntityWontFix}},
	}
	cur := types.SourceMeasurement{ConnectionError: "timeout"}

	got := Reconciler{}.Source(prev, cur, now).EntityUserData
	if d := got["a"]; d.Status != types.EntityWontFix || d.OrphanedSince != nil {
		t.Errorf("a = %+v, want annotation untouched", d)
	}
}

func TestSource_PreviousWinsOverPosted(t *testing.T) {
	prev := &types.SourceMeasurement{
		Entities:       entities("a"),
		EntityUserData: map[string]types.EntityUserData{"a": {Status: types.EntityWontFix}},
	}
	cur := types.SourceMeasurement{
		Value:    types.Str("2"),
		Entities: entities("a", "b"),
		EntityUserData: map[string]types.EntityUserData{
			"a": {Status: types.EntityConfirmed},
			"b": {Status: types.EntityConfirmed},
		},
	}
	got := Reconciler{}.Source(prev, cur, now).EntityUserData
	if got["a"].Status != types.EntityWontFix || got["b"].Status != types.EntityConfirmed {
		t.Errorf("annotations = %+v", got)
	}
}

func TestMeasurement_MatchesSourcesByUUID(t *testing.T) {
	prev := &types.Measurement{Sources: []types.SourceMeasurement{
		{SourceUUID: "s1", Entities: entities("a"), EntityUserData: map[string]types.EntityUserData{"a": {Status: types.EntityFixed}}},
		{SourceUUID: "s2", Entities: entities("a"), EntityUserData: map[string]types.EntityUserData{"a": {Status: types.EntityWontFix}}},
	}}
	cur := []types.SourceMeasurement{
		{SourceUUID: "s2", Value: types.Str("1"), Entities: entities("a")},
		{SourceUUID: "s3", Value: types.Str("1"), Entities: entities("a")},
	}
	Reconciler{}.Measurement(prev, cur, now)

	if cur[0].EntityUserData["a"].Status != types.EntityWontFix {
		t.Errorf("s2 annotations = %+v", cur[0].EntityUserData)
	}
	if cur[1].EntityUserData != nil {
		t.Errorf("s3 annotations = %+v, want none", cur[1].EntityUserData)
	}
}
