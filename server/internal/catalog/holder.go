package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/qualitypulse/qualitypulse/pkg/filewatch"
)

// Catalog holds the current Set. Readers always see a complete Set.
type Catalog struct {
	current atomic.Pointer[Set]
}

// New returns a Catalog holding set.
func New(set *Set) *Catalog {
	c := &Catalog{}
	c.Replace(set)
	return c
}

// Current returns the active Set.
func (c *Catalog) Current() *Set {
	return c.current.Load()
}

// Replace swaps in a new Set.
func (c *Catalog) Replace(set *Set) {
	if set == nil {
		set = &Set{metrics: map[string]*Metric{}}
	}
	c.current.Store(set)
}

// Metric looks a metric up in the active Set.
func (c *Catalog) Metric(uuid string) (*Metric, bool) {
	return c.Current().Metric(uuid)
}

// Watch reloads path into c whenever the file changes. It runs until ctx is
// cancelled. A reload that fails keeps the previous Set.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	return filewatch.Watch(ctx, path, filewatch.DefaultDebounce, func() error {
		set, err := Load(path)
		if err != nil {
			return err
		}
		c.Replace(set)
		slog.Info("catalog: reloaded", "path", path, "metrics", len(set.metrics))
		return nil
	})
}
