package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is one finding (violation, failed job, test case) reported by a
// source. Key is unique within one SourceMeasurement. OldKey, when set,
// declares that the entity was previously reported under a different key.
type Entity struct {
	Key        string
	OldKey     string
	FirstSeen  *time.Time
	Attributes map[string]string
}

// NewEntity returns an entity with the given key and attributes.
func NewEntity(key string, attrs map[string]string) Entity {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return Entity{Key: key, Attributes: attrs}
}

// MarshalJSON flattens the entity: attributes sit next to key, old_key and
// first_seen in one JSON object.
func (e Entity) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(e.Attributes)+3)
	for k, v := range e.Attributes {
		m[k] = v
	}
	m["key"] = e.Key
	if e.OldKey != "" {
		m["old_key"] = e.OldKey
	}
	if e.FirstSeen != nil {
		m["first_seen"] = e.FirstSeen.UTC().Format(time.RFC3339)
	}
	return json.Marshal(m)
}

// UnmarshalJSON is the inverse of MarshalJSON. Non-string attribute values are
// formatted with fmt.Sprint.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entity{Attributes: make(map[string]string, len(raw))}
	for k, v := range raw {
		s, ok := v.(string)
		if !ok && v != nil {
			s = fmt.Sprint(v)
		}
		switch k {
		case "key":
			e.Key = s
		case "old_key":
			e.OldKey = s
		case "first_seen":
			if s == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("entity %q: first_seen: %w", e.Key, err)
			}
			e.FirstSeen = &ts
		default:
			e.Attributes[k] = s
		}
	}
	if e.Key == "" {
		return fmt.Errorf("entity: key is required")
	}
	return nil
}

// Equal reports whether two entities carry the same identity and attributes.
func (e Entity) Equal(o Entity) bool {
	if e.Key != o.Key || e.OldKey != o.OldKey || !timePtrEqual(e.FirstSeen, o.FirstSeen) {
		return false
	}
	if len(e.Attributes) != len(o.Attributes) {
		return false
	}
	for k, v := range e.Attributes {
		if ov, ok := o.Attributes[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// EntityStatus is the user's classification of an entity.
type EntityStatus string

const (
	EntityUnconfirmed   EntityStatus = "unconfirmed"
	EntityConfirmed     EntityStatus = "confirmed"
	EntityFalsePositive EntityStatus = "false_positive"
	EntityWontFix       EntityStatus = "wont_fix"
	EntityFixed         EntityStatus = "fixed"
)

// Valid reports whether s is a known entity status.
func (s EntityStatus) Valid() bool {
	switch s {
	case EntityUnconfirmed, EntityConfirmed, EntityFalsePositive, EntityWontFix, EntityFixed:
		return true
	}
	return false
}

// EntityUserData is a user annotation on an entity, keyed by entity key in
// SourceMeasurement.EntityUserData.
type EntityUserData struct {
	Status        EntityStatus `json:"status,omitempty"`
	StatusEndDate string       `json:"status_end_date,omitempty"`
	Rationale     string       `json:"rationale,omitempty"`
	OrphanedSince *time.Time   `json:"orphaned_since,omitempty"`
}

// Equal compares two annotations field by field.
func (d EntityUserData) Equal(o EntityUserData) bool {
	return d.Status == o.Status &&
		d.StatusEndDate == o.StatusEndDate &&
		d.Rationale == o.Rationale &&
		timePtrEqual(d.OrphanedSince, o.OrphanedSince)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
