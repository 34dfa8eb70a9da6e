package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Addition is how multiple source values combine into one metric value.
type Addition string

const (
	AdditionSum Addition = "sum"
	AdditionMin Addition = "min"
	AdditionMax Addition = "max"
)

// Valid reports whether a is one of the known addition operators.
func (a Addition) Valid() bool {
	switch a {
	case AdditionSum, AdditionMin, AdditionMax:
		return true
	}
	return false
}

// Parameters is the raw, untyped parameter map of a source as it travels over
// the wire. Values are strings, numbers or lists of strings.
type Parameters map[string]any

// String returns the parameter value formatted as a string.
// Lists are joined with commas; missing keys yield "".
func (p Parameters) String(name string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

// List returns the parameter value as a list of strings. A scalar value becomes
// a single-element list; missing keys yield nil.
func (p Parameters) List(name string) []string {
	v, ok := p[name]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		s := p.String(name)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}

// Hash returns a content hash of the parameters. Two parameter maps with the
// same keys and values hash identically regardless of insertion order.
func (p Parameters) Hash() string {
	return contentHash(p)
}

// CatalogSource is one configured source of a catalog metric.
type CatalogSource struct {
	Type       string     `json:"type"`
	Parameters Parameters `json:"parameters"`
}

// CatalogMetric is one row of the metric catalog the collector polls.
type CatalogMetric struct {
	MetricUUID string                   `json:"metric_uuid"`
	ReportUUID string                   `json:"report_uuid"`
	Type       string                   `json:"type"`
	Scale      Scale                    `json:"scale,omitempty"`
	Addition   Addition                 `json:"addition"`
	Sources    map[string]CatalogSource `json:"sources"`

	// Outdated is set by the server when the latest stored measurement was
	// collected with source parameters that differ from the current ones.
	Outdated bool `json:"outdated,omitempty"`
}

// SourceUUIDs returns the metric's source UUIDs in sorted order.
func (m CatalogMetric) SourceUUIDs() []string {
	out := make([]string, 0, len(m.Sources))
	for id := range m.Sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Hash fingerprints the collection-relevant configuration of the metric.
// The Outdated flag is excluded: it is server state, not configuration.
func (m CatalogMetric) Hash() string {
	m.Outdated = false
	return contentHash(m)
}

// contentHash returns the hex SHA-256 of v's JSON encoding. encoding/json
// sorts map keys, which makes the encoding canonical for our map types.
func contentHash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Parameters only ever hold JSON-compatible values.
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
