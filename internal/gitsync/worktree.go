package gitsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/openmined/docsync/internal/utils"
)

// AddAndCommitNewFile copies sourceFile to relPath and commits it as an
// addition.
func (s *Synchronizer) AddAndCommitNewFile(ctx context.Context, sourceFile, relPath string) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	existed := utils.FileExists(s.WorkTreeFile(relPath))
	restore, err := s.saveUntracked(relPath)
	if err != nil {
		return nil, err
	}

	commit, err := s.writeAndCommit(sourceFile, relPath, "Add "+relPath)
	if err != nil && !errors.Is(err, ErrNothingToCommit) {
		if existed {
			s.rollback()
			restore()
		} else {
			s.rollback(relPath)
		}
		return nil, err
	}
	return commit, err
}

// UpdateAndCommitExistingFile copies sourceFile over the tracked relPath and
// commits the change. Identical content yields ErrNothingToCommit.
func (s *Synchronizer) UpdateAndCommitExistingFile(ctx context.Context, sourceFile, relPath string) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	restore, err := s.saveUntracked(relPath)
	if err != nil {
		return nil, err
	}

	commit, err := s.writeAndCommit(sourceFile, relPath, "Update "+relPath)
	if err != nil && !errors.Is(err, ErrNothingToCommit) {
		s.rollback()
		restore()
		return nil, err
	}
	return commit, err
}

// saveUntracked keeps the content of an untracked file at relPath so a failed
// mutation can put it back. Reset only restores what head knows about.
func (s *Synchronizer) saveUntracked(relPath string) (restore func(), err error) {
	p := s.WorkTreeFile(relPath)
	if !utils.FileExists(p) {
		return func() {}, nil
	}
	tracked, err := s.IsTracked(relPath)
	if err != nil {
		return nil, err
	}
	if tracked {
		return func() {}, nil
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, wrapf(err, "stat %s", relPath)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, wrapf(err, "read %s", relPath)
	}
	return func() {
		if err := utils.EnsureParent(p); err != nil {
			slog.Error("git restore untracked", "path", relPath, "error", err)
			return
		}
		if err := os.WriteFile(p, data, info.Mode().Perm()); err != nil {
			slog.Error("git restore untracked", "path", relPath, "error", err)
		}
	}, nil
}

func (s *Synchronizer) writeAndCommit(sourceFile, relPath, msg string) (*object.Commit, error) {
	if err := utils.CopyFile(sourceFile, s.WorkTreeFile(relPath)); err != nil {
		return nil, wrapf(err, "copy %s into worktree", relPath)
	}
	if _, err := s.wt.Add(relPath); err != nil {
		return nil, wrapf(err, "stage %s", relPath)
	}
	return s.commit(msg)
}

// writeContentAndCommit is writeAndCommit for in-memory content.
func (s *Synchronizer) writeContentAndCommit(content []byte, relPath, msg string) (*object.Commit, error) {
	if err := utils.EnsureParent(s.WorkTreeFile(relPath)); err != nil {
		return nil, wrapf(err, "create parent of %s", relPath)
	}
	if err := os.WriteFile(s.WorkTreeFile(relPath), content, 0o644); err != nil {
		return nil, wrapf(err, "write %s", relPath)
	}
	if _, err := s.wt.Add(relPath); err != nil {
		return nil, wrapf(err, "stage %s", relPath)
	}
	return s.commit(msg)
}

// DeleteFile removes relPath and commits. It returns nil, ErrNothingToCommit
// when the path was not tracked.
func (s *Synchronizer) DeleteFile(ctx context.Context, relPath string) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tracked, err := s.IsTracked(relPath)
	if err != nil {
		return nil, err
	}
	if !tracked {
		// stray untracked copy, nothing to record
		if err := os.Remove(s.WorkTreeFile(relPath)); err != nil && !os.IsNotExist(err) {
			return nil, wrapf(err, "remove %s", relPath)
		}
		return nil, ErrNothingToCommit
	}

	if _, err := s.wt.Remove(relPath); err != nil {
		s.rollback()
		return nil, wrapf(err, "remove %s", relPath)
	}
	commit, err := s.commit("Delete " + relPath)
	if err != nil && !errors.Is(err, ErrNothingToCommit) {
		s.rollback()
		return nil, err
	}
	return commit, err
}

// RenameFile moves a tracked file and commits. Renaming onto itself yields
// ErrNothingToCommit.
func (s *Synchronizer) RenameFile(ctx context.Context, from, to string) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if from == to {
		return nil, ErrNothingToCommit
	}

	tracked, err := s.IsTracked(from)
	if err != nil {
		return nil, err
	}
	if !tracked {
		return nil, wrapf(ErrFileNotFound, "rename %s", from)
	}

	if _, err := s.wt.Move(from, to); err != nil {
		s.rollback(to)
		return nil, wrapf(err, "move %s to %s", from, to)
	}
	commit, err := s.commit("Rename " + from + " to " + to)
	if err != nil && !errors.Is(err, ErrNothingToCommit) {
		s.rollback(to)
		return nil, err
	}
	return commit, err
}

// RetrieveLatestVersionOfFile copies the worktree copy of relPath to destination.
func (s *Synchronizer) RetrieveLatestVersionOfFile(relPath, destination string) error {
	src := s.WorkTreeFile(relPath)
	if !utils.FileExists(src) {
		return wrapf(ErrFileNotFound, "retrieve %s", relPath)
	}
	return wrapf(utils.CopyFile(src, destination), "copy %s", relPath)
}

// OpenFile opens the worktree copy of relPath.
func (s *Synchronizer) OpenFile(relPath string) (io.ReadCloser, error) {
	f, err := os.Open(s.WorkTreeFile(relPath))
	if os.IsNotExist(err) {
		return nil, wrapf(ErrFileNotFound, "open %s", relPath)
	}
	if err != nil {
		return nil, wrapf(err, "open %s", relPath)
	}
	return f, nil
}
