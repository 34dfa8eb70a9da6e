package types

import (
	"time"
)

// Scale is a unit system a metric can be expressed in.
type Scale string

const (
	ScaleCount         Scale = "count"
	ScalePercentage    Scale = "percentage"
	ScaleVersionNumber Scale = "version_number"
)

// Valid reports whether s is a known scale.
func (s Scale) Valid() bool {
	switch s {
	case ScaleCount, ScalePercentage, ScaleVersionNumber:
		return true
	}
	return false
}

// Direction tells whether higher or lower values are better.
type Direction string

const (
	FewerIsBetter Direction = "<"
	MoreIsBetter  Direction = ">"
)

// Status is the outcome of evaluating a scale value against its targets.
// The zero value means no status could be determined.
type Status string

const (
	StatusNone          Status = ""
	StatusTargetMet     Status = "target_met"
	StatusDebtTargetMet Status = "debt_target_met"
	StatusNearTargetMet Status = "near_target_met"
	StatusTargetNotMet  Status = "target_not_met"
	StatusInformative   Status = "informative"
)

// SourceMeasurement is what one source contributed to a measurement.
type SourceMeasurement struct {
	SourceUUID          string                    `json:"source_uuid"`
	Value               *string                   `json:"value"`
	Total               *string                   `json:"total"`
	Entities            []Entity                  `json:"entities,omitempty"`
	EntityUserData      map[string]EntityUserData `json:"entity_user_data,omitempty"`
	ConnectionError     string                    `json:"connection_error,omitempty"`
	ParseError          string                    `json:"parse_error,omitempty"`
	APIURL              string                    `json:"api_url,omitempty"`
	LandingURL          string                    `json:"landing_url,omitempty"`
	SourceParameterHash string                    `json:"source_parameter_hash,omitempty"`
}

// HasError reports whether the source failed to connect or parse.
func (s SourceMeasurement) HasError() bool {
	return s.ConnectionError != "" || s.ParseError != ""
}

// Equal compares the parts of two source measurements that decide whether a
// new measurement record is needed: values, errors, entities and annotations.
func (s SourceMeasurement) Equal(o SourceMeasurement) bool {
	if s.SourceUUID != o.SourceUUID ||
		!strPtrEqual(s.Value, o.Value) ||
		!strPtrEqual(s.Total, o.Total) ||
		s.ConnectionError != o.ConnectionError ||
		s.ParseError != o.ParseError {
		return false
	}
	if len(s.Entities) != len(o.Entities) {
		return false
	}
	for i := range s.Entities {
		if !s.Entities[i].Equal(o.Entities[i]) {
			return false
		}
	}
	if len(s.EntityUserData) != len(o.EntityUserData) {
		return false
	}
	for k, d := range s.EntityUserData {
		od, ok := o.EntityUserData[k]
		if !ok || !d.Equal(od) {
			return false
		}
	}
	return true
}

// IssueStatus is the state of a tracked issue as reported by the issue tracker
// collaborator. The server only compares it; it never fetches it.
type IssueStatus struct {
	IssueID         string `json:"issue_id"`
	Name            string `json:"name,omitempty"`
	StatusCategory  string `json:"status_category,omitempty"`
	ConnectionError string `json:"connection_error,omitempty"`
}

// MeasurementPost is the body the collector POSTs for one metric.
type MeasurementPost struct {
	MetricUUID    string              `json:"metric_uuid"`
	ReportUUID    string              `json:"report_uuid,omitempty"`
	HasError      bool                `json:"has_error"`
	Sources       []SourceMeasurement `json:"sources"`
	IssueStatuses []IssueStatus       `json:"issue_status,omitempty"`
}

// ScaleMeasurement is the value and status of a measurement on one scale.
type ScaleMeasurement struct {
	Value            *string    `json:"value"`
	Status           Status     `json:"status,omitempty"`
	StatusStart      *time.Time `json:"status_start,omitempty"`
	Direction        Direction  `json:"direction"`
	Target           string     `json:"target,omitempty"`
	NearTarget       string     `json:"near_target,omitempty"`
	DebtTarget       string     `json:"debt_target,omitempty"`
	CalculationError string     `json:"calculation_error,omitempty"`
}

// Measurement is the persisted record of one metric over the interval
// [Start, End]. The latest measurement of a metric is open: its End is
// extended for as long as new collections produce an equal measurement.
type Measurement struct {
	ID            string                     `json:"id"`
	MetricUUID    string                     `json:"metric_uuid"`
	ReportUUID    string                     `json:"report_uuid,omitempty"`
	Start         time.Time                  `json:"start"`
	End           time.Time                  `json:"end"`
	Sources       []SourceMeasurement        `json:"sources"`
	Scales        map[Scale]ScaleMeasurement `json:"scales"`
	IssueStatuses []IssueStatus              `json:"issue_status,omitempty"`
	HasError      bool                       `json:"has_error"`
}

// Source returns the source measurement with the given UUID.
func (m *Measurement) Source(uuid string) (SourceMeasurement, bool) {
	for _, s := range m.Sources {
		if s.SourceUUID == uuid {
			return s, true
		}
	}
	return SourceMeasurement{}, false
}

// Equal reports whether m and o have the same per-scale values and statuses,
// the same sources (values, errors, entities, annotations) and the same issue
// statuses. Identity and time window are ignored.
func (m *Measurement) Equal(o *Measurement) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.Scales) != len(o.Scales) {
		return false
	}
	for scale, sm := range m.Scales {
		osm, ok := o.Scales[scale]
		if !ok || !strPtrEqual(sm.Value, osm.Value) || sm.Status != osm.Status {
			return false
		}
	}
	if len(m.Sources) != len(o.Sources) {
		return false
	}
	for i := range m.Sources {
		if !m.Sources[i].Equal(o.Sources[i]) {
			return false
		}
	}
	if len(m.IssueStatuses) != len(o.IssueStatuses) {
		return false
	}
	for i := range m.IssueStatuses {
		if m.IssueStatuses[i] != o.IssueStatuses[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of m so callers can derive a new record without
// mutating a stored one.
func (m *Measurement) Copy() *Measurement {
	cp := *m
	cp.Sources = make([]SourceMeasurement, len(m.Sources))
	for i, s := range m.Sources {
		cp.Sources[i] = s.copy()
	}
	cp.Scales = make(map[Scale]ScaleMeasurement, len(m.Scales))
	for k, v := range m.Scales {
		cp.Scales[k] = v
	}
	cp.IssueStatuses = append([]IssueStatus(nil), m.IssueStatuses...)
	return &cp
}

func (s SourceMeasurement) copy() SourceMeasurement {
	cp := s
	cp.Entities = make([]Entity, len(s.Entities))
	for i, e := range s.Entities {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = v
		}
		e.Attributes = attrs
		cp.Entities[i] = e
	}
	if s.EntityUserData != nil {
		cp.EntityUserData = make(map[string]EntityUserData, len(s.EntityUserData))
		for k, v := range s.EntityUserData {
			cp.EntityUserData[k] = v
		}
	}
	return cp
}

// Str returns a pointer to s; a convenience for building optional values.
func Str(s string) *string { return &s }

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
