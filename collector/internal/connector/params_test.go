package connector

import (
	"errors"
	"testing"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

var testSchema = []Parameter{
	{Name: "url", Type: TypeURL, Mandatory: true},
	{Name: "branch", Type: TypeString, Default: "main"},
	{Name: "limit", Type: TypeInteger},
	{Name: "mode", Type: TypeSingleChoice, Values: []string{"fast", "slow"}},
	{Name: "kinds", Type: TypeMultipleChoice, Default: "a,b", Values: []string{"a", "b", "c"}},
}

func TestNewParams_Valid(t *testing.T) {
	p, err := NewParams("s", testSchema, types.Parameters{
		"url":   "https://ci.example.org/",
		"limit": 12.0,
		"mode":  "slow",
		"kinds": []any{"c"},
	})
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	if got := p.String("url"); got != "https://ci.example.org" {
		t.Errorf("url = %q, trailing slash should be trimmed", got)
	}
	if got := p.String("branch"); got != "main" {
		t.Errorf("branch = %q, want default main", got)
	}
	if got := p.Int("limit"); got != 12 {
		t.Errorf("limit = %d, want 12", got)
	}
	if !p.Has("kinds", "c") || p.Has("kinds", "a") {
		t.Errorf("kinds = %v, want [c]", p.List("kinds"))
	}
	names := p.names()
	if len(names) != len(testSchema) || names[0] != "url" || names[4] != "kinds" {
		t.Errorf("names() = %v, want schema order", names)
	}
	if p.String("unknown") != "" {
		t.Error("unknown parameter should be empty")
	}
}

func TestNewParams_MultipleChoiceDefault(t *testing.T) {
	p, err := NewParams("s", testSchema, types.Parameters{"url": "http://x", "kinds": []any{}})
	if err != nil {
		t.Fatalf("NewParams() error = %v", err)
	}
	if got := p.List("kinds"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("kinds = %v, want default [a b]", got)
	}
}

func TestNewParams_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   types.Parameters
		param string
	}{
		{"missing mandatory url", types.Parameters{}, "url"},
		{"blank mandatory url", types.Parameters{"url": "  "}, "url"},
		{"not a url", types.Parameters{"url": "ftp://x"}, "url"},
		{"bad integer", types.Parameters{"url": "http://x", "limit": "ten"}, "limit"},
		{"bad single choice", types.Parameters{"url": "http://x", "mode": "medium"}, "mode"},
		{"bad multiple choice", types.Parameters{"url": "http://x", "kinds": []any{"a", "z"}}, "kinds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParams("src-9", testSchema, tt.raw)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want *ConfigurationError", err)
			}
			if cfgErr.Parameter != tt.param || cfgErr.SourceUUID != "src-9" {
				t.Errorf("error = %+v, want parameter %q of src-9", cfgErr, tt.param)
			}
		})
	}
}

func TestParams_NilSafe(t *testing.T) {
	var p *Params
	if p.String("x") != "" || p.List("x") != nil || p.Has("x", "y") || p.names() != nil {
		t.Error("nil Params should behave as empty")
	}
}
