package connector

import (
	"fmt"
	"sort"
)

// Key selects a connector.
type Key struct {
	SourceType string
	MetricType string
}

func (k Key) String() string { return k.SourceType + "/" + k.MetricType }

// Factory returns a new connector instance.
type Factory func() Connector

// Spec is one registry entry: the parameter schema and the connector factory.
type Spec struct {
	Parameters []Parameter
	New        Factory
}

// Registry maps (source type, metric type) pairs to connectors. Populate it
// with Register before use; lookups are safe for concurrent use once
// registration is done.
type Registry struct {
	specs map[Key]Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[Key]Spec)}
}

// Register adds a connector for sourceType under each of metricTypes.
// Registering the same key twice is an error.
func (r *Registry) Register(sourceType string, params []Parameter, factory Factory, metricTypes ...string) error {
	if factory == nil {
		return fmt.Errorf("connector: register %s: nil factory", sourceType)
	}
	if len(metricTypes) == 0 {
		return fmt.Errorf("connector: register %s: no metric types", sourceType)
	}
	for _, mt := range metricTypes {
		k := Key{SourceType: sourceType, MetricType: mt}
		if _, dup := r.specs[k]; dup {
			return fmt.Errorf("connector: %s registered twice", k)
		}
		r.specs[k] = Spec{Parameters: params, New: factory}
	}
	return nil
}

// Lookup returns the spec registered for the pair.
func (r *Registry) Lookup(sourceType, metricType string) (Spec, bool) {
	s, ok := r.specs[Key{SourceType: sourceType, MetricType: metricType}]
	return s, ok
}

// Keys returns all registered keys, sorted.
func (r *Registry) Keys() []Key {
	out := make([]Key, 0, len(r.specs))
	for k := range r.specs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Default returns a registry with every built-in connector registered.
func Default() (*Registry, error) {
	r := NewRegistry()
	regs := []struct {
		sourceType  string
		params      []Parameter
		factory     Factory
		metricTypes []string
	}{
		{"gitlab", gitlabJobParams, func() Connector { return &gitlabFailedJobs{} }, []string{"failed_jobs"}},
		{"gitlab", gitlabMergeRequestParams, func() Connector { return &gitlabMergeRequests{} }, []string{"merge_requests"}},
		{"gitlab", gitlabVersionParams, func() Connector { return &gitlabVersion{} }, []string{"source_version"}},
		{"jenkins", jenkinsParams, func() Connector { return &jenkinsFailedJobs{} }, []string{"failed_jobs"}},
		{"sonarqube", sonarViolationParams, func() Connector { return &sonarViolations{} }, []string{"violations"}},
		{"sonarqube", sonarVersionParams, func() Connector { return &sonarVersion{} }, []string{"source_version"}},
		{"junit", junitParams, func() Connector { return &junitTests{} }, []string{"tests"}},
		{"cobertura", coberturaParams, func() Connector { return &coberturaCoverage{branches: false} }, []string{"uncovered_lines"}},
		{"cobertura", coberturaParams, func() Connector { return &coberturaCoverage{branches: true} }, []string{"uncovered_branches"}},
		{"performancetest_runner", ptrSlowParams, func() Connector { return &ptrSlowTransactions{} }, []string{"slow_transactions"}},
		{"performancetest_runner", ptrTestParams, func() Connector { return &ptrTests{} }, []string{"tests"}},
		{"prometheus", promParams, func() Connector { return &promSamples{} }, []string{"tests", "failed_jobs", "violations"}},
		{"manual_number", manualNumberParams, func() Connector { return manualNumber{} }, NumericMetricTypes},
	}
	for _, reg := range regs {
		if err := r.Register(reg.sourceType, reg.params, reg.factory, reg.metricTypes...); err != nil {
			return nil, err
		}
	}
	return r, nil
}
