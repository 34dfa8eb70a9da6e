package connector

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// ParameterType is the type of a source parameter.
type ParameterType string

const (
	TypeString         ParameterType = "string"
	TypePassword       ParameterType = "password"
	TypeInteger        ParameterType = "integer"
	TypeURL            ParameterType = "url"
	TypeSingleChoice   ParameterType = "single_choice"
	TypeMultipleChoice ParameterType = "multiple_choice"
)

// Parameter declares one parameter of a connector.
type Parameter struct {
	Name      string
	Type      ParameterType
	Mandatory bool

	// Default is used when the source leaves the parameter empty. For
	// multiple-choice parameters it is a comma-separated list.
	Default string

	// Values lists the allowed values of choice parameters.
	Values []string
}

// Params is a source's parameters bound to its connector's schema. Values are
// kept in schema order; lookups of names outside the schema return zero values.
type Params struct {
	order  []string
	values map[string]string
	lists  map[string][]string
}

// NewParams validates raw against schema and returns the typed bag.
// Empty values fall back to the parameter default; a mandatory parameter that
// is still empty, a malformed integer or URL, or a choice outside the allowed
// values is a *ConfigurationError.
func NewParams(sourceUUID string, schema []Parameter, raw types.Parameters) (*Params, error) {
	p := &Params{
		order:  make([]string, 0, len(schema)),
		values: make(map[string]string, len(schema)),
		lists:  make(map[string][]string),
	}
	for _, param := range schema {
		p.order = append(p.order, param.Name)
		confErr := func(reason string) error {
			return &ConfigurationError{SourceUUID: sourceUUID, Parameter: param.Name, Reason: reason}
		}

		if param.Type == TypeMultipleChoice {
			list := nonEmpty(raw.List(param.Name))
			if len(list) == 0 && param.Default != "" {
				list = strings.Split(param.Default, ",")
			}
			if len(list) == 0 && param.Mandatory {
				return nil, confErr("is mandatory")
			}
			for _, v := range list {
				if len(param.Values) > 0 && !slices.Contains(param.Values, v) {
					return nil, confErr(fmt.Sprintf("%q is not one of %v", v, param.Values))
				}
			}
			p.lists[param.Name] = list
			p.values[param.Name] = strings.Join(list, ",")
			continue
		}

		v := strings.TrimSpace(raw.String(param.Name))
		if v == "" {
			v = param.Default
		}
		if v == "" {
			if param.Mandatory {
				return nil, confErr("is mandatory")
			}
			p.values[param.Name] = ""
			continue
		}

		switch param.Type {
		case TypeInteger:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return nil, confErr(fmt.Sprintf("%q is not a number", v))
			}
		case TypeURL:
			u, err := url.Parse(v)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, confErr(fmt.Sprintf("%q is not an http(s) URL", v))
			}
			v = strings.TrimRight(v, "/")
		case TypeSingleChoice:
			if len(param.Values) > 0 && !slices.Contains(param.Values, v) {
				return nil, confErr(fmt.Sprintf("%q is not one of %v", v, param.Values))
			}
		}
		p.values[param.Name] = v
	}
	return p, nil
}

// String returns the parameter value, or "" when unset.
func (p *Params) String(name string) string {
	if p == nil {
		return ""
	}
	return p.values[name]
}

// Int returns an integer parameter; unset values yield 0.
func (p *Params) Int(name string) int {
	f, err := strconv.ParseFloat(p.String(name), 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// List returns a multiple-choice parameter.
func (p *Params) List(name string) []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.lists[name]...)
}

// Has reports whether a multiple-choice parameter contains value.
func (p *Params) Has(name, value string) bool {
	return p != nil && slices.Contains(p.lists[name], value)
}

// names returns the parameter names in schema order.
func (p *Params) names() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.order...)
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
