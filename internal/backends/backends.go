// Package backends turns a backend config into a concrete backend.
package backends

import (
	"context"
	"fmt"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/dirrepo"
	"github.com/openmined/docsync/internal/gitrepo"
	"github.com/openmined/docsync/internal/repo"
)

// Open constructs the backend for cfg. The caller owns the result and must
// Close it.
func Open(ctx context.Context, cfg config.BackendConfig, settings repo.Settings) (repo.SyncBackend, error) {
	switch cfg.Kind {
	case repo.KindDirectory:
		d, err := dirrepo.Open(cfg, settings)
		if err != nil {
			return nil, err
		}
		return d, nil
	case repo.KindGit:
		g, err := gitrepo.Open(ctx, cfg, settings, nil)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, repo.NewError(repo.CodeConfiguration, "open backend", fmt.Sprint(cfg.ID), fmt.Sprintf("unknown kind %q", cfg.Kind), nil)
	}
}

// OpenAll opens every configured backend. On failure the ones already
// opened are closed again.
func OpenAll(ctx context.Context, cfg *config.Config) ([]repo.SyncBackend, error) {
	settings := repo.Settings{SubfolderSupport: cfg.SubfolderSupport}
	out := make([]repo.SyncBackend, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		b, err := Open(ctx, bc, settings)
		if err != nil {
			CloseAll(out)
			return nil, fmt.Errorf("backend %d: %w", bc.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// CloseAll closes backends and returns the first error.
func CloseAll(bs []repo.SyncBackend) error {
	var first error
	for _, b := range bs {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TwoWay returns the two-way capability of b if it has one.
func TwoWay(b repo.SyncBackend) (repo.TwoWaySyncBackend, bool) {
	tw, ok := b.(repo.TwoWaySyncBackend)
	return tw, ok
}
