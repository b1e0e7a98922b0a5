// Package gitsync drives a local clone: it mutates and commits the worktree,
// integrates the remote, pushes, and answers history questions.
//
// A Synchronizer owns its repository handle and is not safe for concurrent
// use.
package gitsync

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// PreSyncMarkerRef records head at the start of the previous sync.
	PreSyncMarkerRef = plumbing.ReferenceName("refs/heads/docsync-pre-sync-marker")

	// ConflictBranchPrefix names the branches conflicted merges are parked on.
	ConflictBranchPrefix = "conflict-"

	historyCacheSize = 1024
)

// Config is what the Synchronizer needs from the backend configuration.
type Config struct {
	RemoteName  string
	Branch      string
	AuthorName  string
	AuthorEmail string
}

type historyKey struct {
	path string
	head plumbing.Hash
}

type Synchronizer struct {
	repo    *git.Repository
	wt      *git.Worktree
	dir     string
	cfg     Config
	auth    AuthProvider
	history *lru.Cache[historyKey, plumbing.Hash]
}

// New wraps an opened non-bare repository.
func New(r *git.Repository, cfg Config, auth AuthProvider) (*Synchronizer, error) {
	wt, err := r.Worktree()
	if err != nil {
		return nil, wrap(err, "open worktree")
	}
	if auth == nil {
		auth = NoAuth{}
	}
	if cfg.RemoteName == "" {
		cfg.RemoteName = git.DefaultRemoteName
	}
	if cfg.Branch == "" {
		cfg.Branch = plumbing.Master.Short()
	}

	history, err := lru.New[historyKey, plumbing.Hash](historyCacheSize)
	if err != nil {
		return nil, wrap(err, "create history cache")
	}

	return &Synchronizer{
		repo:    r,
		wt:      wt,
		dir:     wt.Filesystem.Root(),
		cfg:     cfg,
		auth:    auth,
		history: history,
	}, nil
}

// Dir is the worktree root on disk.
func (s *Synchronizer) Dir() string {
	return s.dir
}

// MainBranch is the configured branch.
func (s *Synchronizer) MainBranch() string {
	return s.cfg.Branch
}

// WorkTreeFile maps a slash separated relative path into the worktree.
func (s *Synchronizer) WorkTreeFile(relPath string) string {
	return filepath.Join(s.dir, filepath.FromSlash(relPath))
}

// CurrentHead returns the commit HEAD points at, or ErrNoHead.
func (s *Synchronizer) CurrentHead() (*object.Commit, error) {
	ref, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoHead
	}
	if err != nil {
		return nil, wrap(err, "resolve HEAD")
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, wrapf(err, "load head commit %s", ref.Hash())
	}
	return commit, nil
}

// CurrentBranch is the short name of the branch HEAD points at. It works
// before the first commit too.
func (s *Synchronizer) CurrentBranch() (string, error) {
	ref, err := s.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", wrap(err, "read HEAD")
	}
	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().Short(), nil
	}
	// detached
	return ref.Hash().String(), nil
}

// CommitByRevision resolves a full commit id.
func (s *Synchronizer) CommitByRevision(rev string) (*object.Commit, error) {
	if !plumbing.IsHash(rev) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRevision, rev)
	}
	commit, err := s.repo.CommitObject(plumbing.NewHash(rev))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, rev)
	}
	if err != nil {
		return nil, wrapf(err, "load commit %s", rev)
	}
	return commit, nil
}

// IsTracked reports whether relPath is part of the head tree.
func (s *Synchronizer) IsTracked(relPath string) (bool, error) {
	head, err := s.CurrentHead()
	if errors.Is(err, ErrNoHead) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := head.File(relPath); err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return false, nil
		}
		return false, wrapf(err, "lookup %s", relPath)
	}
	return true, nil
}

func (s *Synchronizer) signature() *object.Signature {
	return &object.Signature{
		Name:  s.cfg.AuthorName,
		Email: s.cfg.AuthorEmail,
		When:  time.Now(),
	}
}

// commit records the index. An unchanged tree is ErrNothingToCommit.
func (s *Synchronizer) commit(msg string, parents ...plumbing.Hash) (*object.Commit, error) {
	sig := s.signature()
	hash, err := s.wt.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           parents,
		AllowEmptyCommits: len(parents) > 1,
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil, ErrNothingToCommit
	}
	if err != nil {
		return nil, wrap(err, "commit")
	}

	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, wrapf(err, "load commit %s", hash)
	}
	slog.Debug("git commit", "hash", hash.String(), "message", msg)
	return commit, nil
}

// rollback puts index and worktree back to head after a failed mutation.
// Paths the mutation created are removed as well.
func (s *Synchronizer) rollback(created ...string) {
	head, err := s.CurrentHead()
	switch {
	case err == nil:
		if err := s.wt.Reset(&git.ResetOptions{Commit: head.Hash, Mode: git.HardReset}); err != nil {
			slog.Error("git rollback", "error", err)
		}
	case errors.Is(err, ErrNoHead):
	default:
		slog.Error("git rollback", "error", err)
	}

	for _, p := range created {
		if tracked, _ := s.IsTracked(p); tracked {
			continue
		}
		_, _ = s.wt.Remove(p)
		_ = s.wt.Filesystem.Remove(p)
	}
}
