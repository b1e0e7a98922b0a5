package gitsync

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/openmined/docsync/internal/merge"
)

// FileMergeResult is the outcome of MergeFileFromRevision.
type FileMergeResult struct {
	// Commit is head after the merge was recorded.
	Commit *object.Commit
	// Merged is false when the recorded content carries conflict markers.
	Merged bool
	// Branch is the branch the result was committed on.
	Branch string
}

// MergeFileFromRevision reconciles localFile with the head copy of relPath
// using the content at base as common ancestor, writes the result into the
// worktree and commits it. A conflicted result is committed on a fresh
// conflict branch. After a clean merge on a non-main branch the
// synchronizer tries to return to the main branch; that failing is only
// logged.
func (s *Synchronizer) MergeFileFromRevision(ctx context.Context, localFile, relPath string, base *object.Commit) (FileMergeResult, error) {
	if err := ctx.Err(); err != nil {
		return FileMergeResult{}, err
	}
	if base == nil {
		return FileMergeResult{}, wrap(ErrUnknownRevision, "merge base")
	}

	head, err := s.CurrentHead()
	if err != nil {
		return FileMergeResult{}, err
	}

	ours, err := os.ReadFile(localFile)
	if err != nil {
		return FileMergeResult{}, wrapf(err, "read %s", localFile)
	}
	baseContent, _, err := FileAtCommit(base, relPath)
	if err != nil {
		return FileMergeResult{}, err
	}
	theirs, _, err := FileAtCommit(head, relPath)
	if err != nil {
		return FileMergeResult{}, err
	}

	res := merge.Merge(baseContent, ours, theirs, merge.Options{})

	if res.Conflict {
		slog.Warn("git merge conflict", "path", relPath, "hunks", res.Conflicts, "base", base.Hash.String(), "head", head.Hash.String())
		current, err := s.CurrentBranch()
		if err != nil {
			return FileMergeResult{}, err
		}
		if current == s.cfg.Branch {
			if current, err = s.checkoutConflictBranch(); err != nil {
				return FileMergeResult{}, err
			}
		}
		commit, err := s.recordMerge(res.Content, relPath, "Merge conflict in "+relPath)
		if err != nil {
			return FileMergeResult{}, err
		}
		return FileMergeResult{Commit: commit, Merged: false, Branch: current}, nil
	}

	commit, err := s.recordMerge(res.Content, relPath, "Sync "+relPath)
	if err != nil {
		return FileMergeResult{}, err
	}

	if _, err := s.AttemptReturnToMainBranch(); err != nil {
		slog.Warn("git return to main branch", "branch", s.cfg.Branch, "error", err)
	}
	branch, err := s.CurrentBranch()
	if err != nil {
		return FileMergeResult{}, err
	}
	if commit, err = s.CurrentHead(); err != nil {
		return FileMergeResult{}, err
	}
	return FileMergeResult{Commit: commit, Merged: true, Branch: branch}, nil
}

// recordMerge commits content at relPath. When nothing changed head is
// returned as is.
func (s *Synchronizer) recordMerge(content []byte, relPath, msg string) (*object.Commit, error) {
	tracked, err := s.IsTracked(relPath)
	if err != nil {
		return nil, err
	}

	commit, err := s.writeContentAndCommit(content, relPath, msg)
	if errors.Is(err, ErrNothingToCommit) {
		return s.CurrentHead()
	}
	if err != nil {
		if tracked {
			s.rollback()
		} else {
			s.rollback(relPath)
		}
		return nil, err
	}
	return commit, nil
}
