package config

import (
	"context"

	"github.com/qualitypulse/qualitypulse/pkg/filewatch"
)

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file is written. It runs until ctx is cancelled.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return filewatch.Watch(ctx, path, filewatch.DefaultDebounce, func() error {
		cfg, err := Load(path)
		if err != nil {
			return err
		}
		onChange(cfg)
		return nil
	})
}
