package syncer

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/watch"
)

const DefaultPollInterval = 30 * time.Second

var ErrNothingToWatch = errors.New("no backend supports auto sync")

// ReportFunc receives the outcome of every pass Watch runs.
type ReportFunc func(Report, error)

// Watch keeps the auto-sync backends of bs in sync until ctx is done. A local
// edit runs a pass of the backend owning the edited file. Every interval all
// of them are polled for remote changes. Failed passes are reported and
// retried on the next trigger.
func (s *Syncer) Watch(ctx context.Context, bs []repo.SyncBackend, interval time.Duration, onReport ReportFunc) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if onReport == nil {
		onReport = func(Report, error) {}
	}

	byID := make(map[string]repo.SyncBackend)
	var auto []repo.SyncBackend
	for _, b := range bs {
		if !b.IsAutoSyncSupported() {
			slog.Info("watch skip", "backend", b.ID(), "reason", "auto sync unsupported")
			continue
		}
		if err := utils.EnsureDir(s.LocalDir(b)); err != nil {
			return err
		}
		byID[strconv.FormatInt(b.ID(), 10)] = b
		auto = append(auto, b)
	}
	if len(auto) == 0 {
		return ErrNothingToWatch
	}

	root, err := filepath.EvalSymlinks(s.storeDir)
	if err != nil {
		return err
	}
	w := watch.New(root)
	w.Filter(func(p string) bool { return !isWatchedDocument(root, p) })
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	run := func(b repo.SyncBackend) {
		r, err := s.Sync(ctx, b)
		if err != nil && ctx.Err() == nil {
			slog.Error("watch pass", "backend", b.ID(), "error", err)
		}
		onReport(r, err)
	}

	for _, b := range auto {
		run(b)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, b := range auto {
				run(b)
			}
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if b, found := byID[owner(root, ev.Path())]; found {
				run(b)
			}
		}
	}
}

// owner returns the backend id segment of a path below root.
func owner(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return ""
	}
	id, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return id
}

func isWatchedDocument(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return repo.IsSupportedFormat(p) && !IsConflictCopy(p)
}
