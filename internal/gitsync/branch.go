package gitsync

import (
	"errors"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
)

// SetPreSyncMarker points the marker ref at the current head. Without a head
// the marker is cleared.
func (s *Synchronizer) SetPreSyncMarker() error {
	head, err := s.CurrentHead()
	if errors.Is(err, ErrNoHead) {
		err := s.repo.Storer.RemoveReference(PreSyncMarkerRef)
		return wrap(err, "clear pre-sync marker")
	}
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(PreSyncMarkerRef, head.Hash)
	return wrap(s.repo.Storer.SetReference(ref), "set pre-sync marker")
}

// PreSyncMarker returns the marked commit. ok is false when no marker is set.
func (s *Synchronizer) PreSyncMarker() (hash plumbing.Hash, ok bool, err error) {
	ref, err := s.repo.Reference(PreSyncMarkerRef, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, wrap(err, "read pre-sync marker")
	}
	return ref.Hash(), true, nil
}

// checkoutConflictBranch creates a fresh conflict branch at head and switches
// to it. It returns the branch name.
func (s *Synchronizer) checkoutConflictBranch() (string, error) {
	head, err := s.CurrentHead()
	if err != nil {
		return "", err
	}

	name := ConflictBranchPrefix + uuid.NewString()[:8]
	err = s.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Hash:   head.Hash,
		Create: true,
	})
	if err != nil {
		return "", wrapf(err, "checkout %s", name)
	}
	slog.Info("git conflict branch", "branch", name, "from", head.Hash.String())
	return name, nil
}

// AttemptReturnToMainBranch moves back to the configured branch when HEAD is
// parked on another one. The configured branch is fast-forwarded to head
// and the temporary branch deleted. It returns false when the configured
// branch has moved on and cannot be fast-forwarded.
func (s *Synchronizer) AttemptReturnToMainBranch() (bool, error) {
	current, err := s.CurrentBranch()
	if err != nil {
		return false, err
	}
	if current == s.cfg.Branch {
		return true, nil
	}

	head, err := s.CurrentHead()
	if err != nil {
		return false, err
	}

	mainRef := plumbing.NewBranchReferenceName(s.cfg.Branch)
	ref, err := s.repo.Reference(mainRef, true)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	case err != nil:
		return false, wrapf(err, "resolve %s", s.cfg.Branch)
	default:
		mainCommit, err := s.repo.CommitObject(ref.Hash())
		if err != nil {
			return false, wrapf(err, "load %s", s.cfg.Branch)
		}
		ok, err := mainCommit.IsAncestor(head)
		if err != nil {
			return false, wrapf(err, "compare %s with head", s.cfg.Branch)
		}
		if !ok {
			return false, nil
		}
	}

	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(mainRef, head.Hash)); err != nil {
		return false, wrapf(err, "fast-forward %s", s.cfg.Branch)
	}
	if err := s.wt.Checkout(&git.CheckoutOptions{Branch: mainRef}); err != nil {
		return false, wrapf(err, "checkout %s", s.cfg.Branch)
	}
	if err := s.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(current)); err != nil {
		slog.Warn("git delete branch", "branch", current, "error", err)
	}

	slog.Info("git returned to main branch", "branch", s.cfg.Branch, "from", current)
	return true, nil
}
