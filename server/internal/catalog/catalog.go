package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/qualitypulse/qualitypulse/pkg/aggregate"
	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// uuidNamespace seeds the name-based UUIDs of catalog items without an
// explicit uuid.
var uuidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://qualitypulse.dev/catalog"))

// Source is one configured source of a metric.
type Source struct {
	UUID       string
	Name       string
	Type       string
	Parameters types.Parameters
}

// ParameterHash fingerprints the source parameters.
func (s Source) ParameterHash() string {
	return ParameterHash(s.Parameters)
}

// ParameterHash returns the content hash of a source's parameters. A stored
// source measurement whose hash differs was collected with an older
// configuration.
func ParameterHash(p types.Parameters) string {
	if p == nil {
		p = types.Parameters{}
	}
	return p.Hash()
}

// Metric is the server-side definition of one metric.
type Metric struct {
	UUID        string
	ReportUUID  string
	SubjectUUID string
	Name        string
	Type        string

	// Scale is the scale the metric status is reported on; Scales are all
	// scales a measurement is computed for.
	Scale  types.Scale
	Scales []types.Scale

	Direction types.Direction
	Addition  types.Addition

	Target     string
	NearTarget string
	// DebtTarget is nil when no debt target is set.
	DebtTarget  *string
	AcceptDebt  bool
	DebtEndDate *time.Time

	EvaluateTargets bool
	IssueIDs        []string

	Sources map[string]Source
}

// DebtExpired reports whether accepted technical debt has passed its end
// date. Debt without an end date never expires; the end date itself is still
// covered.
func (m *Metric) DebtExpired(now time.Time) bool {
	if m.DebtEndDate == nil {
		return false
	}
	return !now.Before(m.DebtEndDate.AddDate(0, 0, 1))
}

// CatalogMetric returns the row the collector polls.
func (m *Metric) CatalogMetric(outdated bool) types.CatalogMetric {
	sources := make(map[string]types.CatalogSource, len(m.Sources))
	for id, s := range m.Sources {
		sources[id] = types.CatalogSource{Type: s.Type, Parameters: s.Parameters}
	}
	return types.CatalogMetric{
		MetricUUID: m.UUID,
		ReportUUID: m.ReportUUID,
		Type:       m.Type,
		Scale:      m.Scale,
		Addition:   m.Addition,
		Sources:    sources,
		Outdated:   outdated,
	}
}

// Outdated reports whether latest was collected with a source configuration
// that differs from the current one: a source was added or its parameters
// changed since.
func (m *Metric) Outdated(latest *types.Measurement) bool {
	if latest == nil {
		return false
	}
	for id, src := range m.Sources {
		sm, ok := latest.Source(id)
		if !ok || sm.SourceParameterHash != src.ParameterHash() {
			return true
		}
	}
	return false
}

// Report groups subjects.
type Report struct {
	UUID     string
	Title    string
	Subjects []Subject
}

// Subject groups metrics within a report.
type Subject struct {
	UUID        string
	Name        string
	MetricUUIDs []string
}

// Set is one parsed catalog. It is immutable once built.
type Set struct {
	Reports []Report
	metrics map[string]*Metric
}

// Metric returns the metric with the given UUID.
func (s *Set) Metric(uuid string) (*Metric, bool) {
	if s == nil {
		return nil, false
	}
	m, ok := s.metrics[uuid]
	return m, ok
}

// Metrics returns all metrics ordered by UUID.
func (s *Set) Metrics() []*Metric {
	if s == nil {
		return nil
	}
	out := make([]*Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// --- file format ------------------------------------------------------------

type fileCatalog struct {
	Reports []fileReport `yaml:"reports"`
}

type fileReport struct {
	UUID     string        `yaml:"uuid"`
	Title    string        `yaml:"title"`
	Subjects []fileSubject `yaml:"subjects"`
}

type fileSubject struct {
	UUID    string       `yaml:"uuid"`
	Name    string       `yaml:"name"`
	Metrics []fileMetric `yaml:"metrics"`
}

type fileMetric struct {
	UUID            string       `yaml:"uuid"`
	Name            string       `yaml:"name"`
	Type            string       `yaml:"type"`
	Scale           string       `yaml:"scale"`
	Direction       string       `yaml:"direction"`
	Addition        string       `yaml:"addition"`
	Target          *string      `yaml:"target"`
	NearTarget      *string      `yaml:"near_target"`
	DebtTarget      *string      `yaml:"debt_target"`
	AcceptDebt      bool         `yaml:"accept_debt"`
	DebtEndDate     string       `yaml:"debt_end_date"`
	EvaluateTargets *bool        `yaml:"evaluate_targets"`
	IssueIDs        []string     `yaml:"issue_ids"`
	Sources         []fileSource `yaml:"sources"`
}

type fileSource struct {
	UUID       string         `yaml:"uuid"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Parameters map[string]any `yaml:"parameters"`
}

// Load reads and parses the catalog file at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses catalog YAML.
func Parse(data []byte) (*Set, error) {
	var f fileCatalog
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}

	set := &Set{metrics: make(map[string]*Metric)}
	seen := map[string]string{}
	claim := func(id, what string) error {
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("catalog: %s uuid %s already used by %s", what, id, prev)
		}
		seen[id] = what
		return nil
	}

	for ri, fr := range f.Reports {
		report := Report{
			UUID:  itemUUID(fr.UUID, uuidNamespace, fr.Title, ri),
			Title: fr.Title,
		}
		if err := claim(report.UUID, "report "+label(fr.Title, ri)); err != nil {
			return nil, err
		}
		for si, fs := range fr.Subjects {
			subject := Subject{
				UUID: itemUUID(fs.UUID, namespace(report.UUID), fs.Name, si),
				Name: fs.Name,
			}
			if err := claim(subject.UUID, "subject "+label(fs.Name, si)); err != nil {
				return nil, err
			}
			for mi, fm := range fs.Metrics {
				m, err := buildMetric(fm, report.UUID, subject.UUID, mi)
				if err != nil {
					return nil, err
				}
				if err := claim(m.UUID, "metric "+label(fm.Name, mi)); err != nil {
					return nil, err
				}
				for id := range m.Sources {
					if err := claim(id, "source of metric "+m.UUID); err != nil {
						return nil, err
					}
				}
				set.metrics[m.UUID] = m
				subject.MetricUUIDs = append(subject.MetricUUIDs, m.UUID)
			}
			report.Subjects = append(report.Subjects, subject)
		}
		set.Reports = append(set.Reports, report)
	}
	return set, nil
}

func buildMetric(fm fileMetric, reportUUID, subjectUUID string, index int) (*Metric, error) {
	where := fmt.Sprintf("catalog: metric %s", label(fm.Name, index))
	mt, ok := DataModel[fm.Type]
	if !ok {
		return nil, fmt.Errorf("%s: unknown metric type %q", where, fm.Type)
	}

	m := &Metric{
		UUID:            itemUUID(fm.UUID, namespace(subjectUUID), fm.Name, index),
		ReportUUID:      reportUUID,
		SubjectUUID:     subjectUUID,
		Name:            fm.Name,
		Type:            fm.Type,
		Scale:           mt.DefaultScale(),
		Scales:          mt.Scales,
		Direction:       mt.Direction,
		Addition:        mt.Addition,
		Target:          mt.Target,
		NearTarget:      mt.NearTarget,
		DebtTarget:      fm.DebtTarget,
		AcceptDebt:      fm.AcceptDebt,
		EvaluateTargets: true,
		IssueIDs:        fm.IssueIDs,
		Sources:         make(map[string]Source, len(fm.Sources)),
	}
	if fm.Scale != "" {
		m.Scale = types.Scale(fm.Scale)
		if !mt.supports(m.Scale) {
			return nil, fmt.Errorf("%s: scale %q not supported by %s", where, fm.Scale, fm.Type)
		}
	}
	if fm.Direction != "" {
		m.Direction = types.Direction(fm.Direction)
		if m.Direction != types.FewerIsBetter && m.Direction != types.MoreIsBetter {
			return nil, fmt.Errorf("%s: direction %q: want < or >", where, fm.Direction)
		}
	}
	if fm.Addition != "" {
		m.Addition = types.Addition(fm.Addition)
		if !m.Addition.Valid() {
			return nil, fmt.Errorf("%s: addition %q: want sum|min|max", where, fm.Addition)
		}
	}
	if fm.Target != nil {
		m.Target = *fm.Target
	}
	if fm.NearTarget != nil {
		m.NearTarget = *fm.NearTarget
	}
	if fm.EvaluateTargets != nil {
		m.EvaluateTargets = *fm.EvaluateTargets
	}
	if fm.DebtEndDate != "" {
		d, err := time.Parse(time.DateOnly, fm.DebtEndDate)
		if err != nil {
			return nil, fmt.Errorf("%s: debt_end_date: %w", where, err)
		}
		m.DebtEndDate = &d
	}

	targets := []*string{&m.Target, &m.NearTarget, m.DebtTarget}
	for _, t := range targets {
		if t == nil {
			continue
		}
		if err := checkTarget(m.Scale, *t); err != nil {
			return nil, fmt.Errorf("%s: %w", where, err)
		}
	}

	for si, fs := range fm.Sources {
		if fs.Type == "" {
			return nil, fmt.Errorf("%s: source %s has no type", where, label(fs.Name, si))
		}
		src := Source{
			UUID:       itemUUID(fs.UUID, namespace(m.UUID), fs.Name, si),
			Name:       fs.Name,
			Type:       fs.Type,
			Parameters: types.Parameters(fs.Parameters),
		}
		if src.Parameters == nil {
			src.Parameters = types.Parameters{}
		}
		if _, dup := m.Sources[src.UUID]; dup {
			return nil, fmt.Errorf("%s: duplicate source uuid %s", where, src.UUID)
		}
		m.Sources[src.UUID] = src
	}
	return m, nil
}

// checkTarget validates a target value for the scale it is compared on.
func checkTarget(scale types.Scale, target string) error {
	if scale == types.ScaleVersionNumber {
		if _, err := semver.NewVersion(target); err != nil {
			return fmt.Errorf("target %q is not a version number", target)
		}
		return nil
	}
	if _, err := aggregate.Parse(target); err != nil {
		return fmt.Errorf("target %q is not a number", target)
	}
	return nil
}

// itemUUID returns explicit when set, otherwise a name-based UUID under
// parent. Unnamed items are identified by position.
func itemUUID(explicit string, parent uuid.UUID, name string, index int) string {
	if explicit != "" {
		return explicit
	}
	if name == "" {
		name = "#" + strconv.Itoa(index)
	}
	return uuid.NewSHA1(parent, []byte(name)).String()
}

// namespace turns a parent id into a UUID namespace. Explicit ids need not
// be UUIDs.
func namespace(id string) uuid.UUID {
	if u, err := uuid.Parse(id); err == nil {
		return u
	}
	return uuid.NewSHA1(uuidNamespace, []byte(id))
}

func label(name string, index int) string {
	if name != "" {
		return strconv.Quote(name)
	}
	return "#" + strconv.Itoa(index)
}
