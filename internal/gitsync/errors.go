package gitsync

import (
	"errors"
	"fmt"
)

// ErrNoHead is returned when the repository has no commits yet.
var ErrNoHead = errors.New("repository has no commits")

// ErrMergeConflict is returned when remote changes cannot be integrated
// without a content conflict. Head and worktree are left as they were.
var ErrMergeConflict = errors.New("merge conflict")

// ErrAlreadyUpToDate is returned when a fetch or push had nothing to do.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrNothingToCommit is returned when a mutation left the tree unchanged.
var ErrNothingToCommit = errors.New("nothing to commit")

// ErrFileNotFound is returned when a path is absent from a commit or the worktree.
var ErrFileNotFound = errors.New("file not found")

// ErrUnknownRevision is returned when a revision is not a commit of this repository.
var ErrUnknownRevision = errors.New("unknown revision")

// ErrAuthRequired is returned when credentials could not be built for a remote.
var ErrAuthRequired = errors.New("authentication required")

func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
