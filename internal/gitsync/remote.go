package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/openmined/docsync/internal/merge"
)

func (s *Synchronizer) authMethod() (transport.AuthMethod, error) {
	remote, err := s.repo.Remote(s.cfg.RemoteName)
	if err != nil {
		return nil, wrapf(err, "remote %s", s.cfg.RemoteName)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, nil
	}
	method, err := s.auth.Method(urls[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}
	return method, nil
}

// Fetch updates the remote tracking refs. An empty remote is not an error.
func (s *Synchronizer) Fetch(ctx context.Context) error {
	auth, err := s.authMethod()
	if err != nil {
		return err
	}

	err = s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: s.cfg.RemoteName,
		Auth:       auth,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return nil
	default:
		return wrapf(err, "fetch %s", s.cfg.RemoteName)
	}
}

// MergeWithRemote fetches and integrates the remote copy of the current
// branch. Fast-forwards reset the worktree; diverged histories get a merge
// commit. A content conflict returns ErrMergeConflict and leaves head and
// worktree untouched.
func (s *Synchronizer) MergeWithRemote(ctx context.Context) error {
	if err := s.Fetch(ctx); err != nil {
		return err
	}

	branch, err := s.CurrentBranch()
	if err != nil {
		return err
	}
	remoteRef, err := s.RemoteHead(branch)
	if err != nil {
		return err
	}
	if remoteRef == nil {
		slog.Debug("git merge skipped, no remote branch", "branch", branch)
		return nil
	}

	remoteCommit, err := s.repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return wrapf(err, "load remote commit %s", remoteRef.Hash())
	}

	head, err := s.CurrentHead()
	if errors.Is(err, ErrNoHead) {
		return s.adoptRemote(remoteCommit)
	}
	if err != nil {
		return err
	}

	if head.Hash == remoteCommit.Hash {
		return nil
	}
	if contained, err := remoteCommit.IsAncestor(head); err != nil {
		return wrap(err, "compare remote with head")
	} else if contained {
		return nil
	}

	if ff, err := head.IsAncestor(remoteCommit); err != nil {
		return wrap(err, "compare head with remote")
	} else if ff {
		if err := s.wt.Reset(&git.ResetOptions{Commit: remoteCommit.Hash, Mode: git.HardReset}); err != nil {
			s.rollback()
			return wrapf(err, "fast-forward to %s", remoteCommit.Hash)
		}
		slog.Info("git fast-forward", "from", head.Hash.String(), "to", remoteCommit.Hash.String())
		return nil
	}

	commit, err := s.mergeDiverged(head, remoteCommit)
	if err != nil {
		return err
	}
	slog.Info("git merged remote", "head", head.Hash.String(), "remote", remoteCommit.Hash.String(), "merge", commit.Hash.String())
	return nil
}

// adoptRemote checks out the remote branch into a repository without commits.
func (s *Synchronizer) adoptRemote(remoteCommit *object.Commit) error {
	branchRef := plumbing.NewBranchReferenceName(s.cfg.Branch)
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, remoteCommit.Hash)); err != nil {
		return wrapf(err, "create %s", s.cfg.Branch)
	}
	if err := s.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return wrap(err, "point HEAD at main branch")
	}
	if err := s.wt.Reset(&git.ResetOptions{Commit: remoteCommit.Hash, Mode: git.HardReset}); err != nil {
		return wrapf(err, "check out %s", remoteCommit.Hash)
	}
	slog.Info("git adopted remote", "branch", s.cfg.Branch, "commit", remoteCommit.Hash.String())
	return nil
}

type plannedChange struct {
	path    string
	content []byte
	remove  bool
}

// mergeDiverged merges theirs into ours file by file. Paths changed on one
// side only take that side; paths changed on both are merged line by line.
func (s *Synchronizer) mergeDiverged(ours, theirs *object.Commit) (*object.Commit, error) {
	var baseTree *object.Tree
	bases, err := ours.MergeBase(theirs)
	if err != nil {
		return nil, wrap(err, "find merge base")
	}
	if len(bases) > 0 {
		if baseTree, err = bases[0].Tree(); err != nil {
			return nil, wrap(err, "load merge base tree")
		}
	}
	oursTree, err := ours.Tree()
	if err != nil {
		return nil, wrap(err, "load head tree")
	}
	theirsTree, err := theirs.Tree()
	if err != nil {
		return nil, wrap(err, "load remote tree")
	}

	oursChanged, err := changedPaths(baseTree, oursTree)
	if err != nil {
		return nil, err
	}
	theirsChanged, err := changedPaths(baseTree, theirsTree)
	if err != nil {
		return nil, err
	}

	var plan []plannedChange

	for _, p := range sorted(theirsChanged.Difference(oursChanged)) {
		content, ok, err := fileAtTree(theirsTree, p)
		if err != nil {
			return nil, err
		}
		plan = append(plan, plannedChange{path: p, content: content, remove: !ok})
	}

	for _, p := range sorted(theirsChanged.Intersect(oursChanged)) {
		o, oOK, err := fileAtTree(oursTree, p)
		if err != nil {
			return nil, err
		}
		t, tOK, err := fileAtTree(theirsTree, p)
		if err != nil {
			return nil, err
		}
		if oOK == tOK && bytes.Equal(o, t) {
			continue
		}
		if !oOK || !tOK {
			return nil, fmt.Errorf("%w: %s deleted on one side", ErrMergeConflict, p)
		}
		b, _, err := fileAtTree(baseTree, p)
		if err != nil {
			return nil, err
		}
		res := merge.Merge(b, o, t, merge.Options{})
		if res.Conflict {
			return nil, fmt.Errorf("%w: %s", ErrMergeConflict, p)
		}
		plan = append(plan, plannedChange{path: p, content: res.Content})
	}

	if err := s.apply(plan); err != nil {
		s.rollback()
		return nil, err
	}

	msg := fmt.Sprintf("Merge %s/%s", s.cfg.RemoteName, s.cfg.Branch)
	commit, err := s.commit(msg, ours.Hash, theirs.Hash)
	if err != nil {
		s.rollback()
		return nil, err
	}
	return commit, nil
}

func (s *Synchronizer) apply(plan []plannedChange) error {
	for _, c := range plan {
		if c.remove {
			if _, err := s.wt.Remove(c.path); err != nil {
				return wrapf(err, "remove %s", c.path)
			}
			continue
		}
		if err := util.WriteFile(s.wt.Filesystem, c.path, c.content, 0o644); err != nil {
			return wrapf(err, "write %s", c.path)
		}
		if _, err := s.wt.Add(c.path); err != nil {
			return wrapf(err, "stage %s", c.path)
		}
	}
	return nil
}

func changedPaths(from, to *object.Tree) (mapset.Set[string], error) {
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return nil, wrap(err, "diff trees")
	}
	paths := mapset.NewThreadUnsafeSet[string]()
	for _, c := range changes {
		if c.From.Name != "" {
			paths.Add(c.From.Name)
		}
		if c.To.Name != "" {
			paths.Add(c.To.Name)
		}
	}
	return paths, nil
}

func fileAtTree(tree *object.Tree, p string) ([]byte, bool, error) {
	if tree == nil {
		return nil, false, nil
	}
	f, err := tree.File(p)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapf(err, "lookup %s", p)
	}
	text, err := f.Contents()
	if err != nil {
		return nil, false, wrapf(err, "read %s", p)
	}
	return []byte(text), true, nil
}

func sorted(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

// Push pushes the current branch to the same name on the remote.
func (s *Synchronizer) Push(ctx context.Context) error {
	branch, err := s.CurrentBranch()
	if err != nil {
		return err
	}
	auth, err := s.authMethod()
	if err != nil {
		return err
	}

	spec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: s.cfg.RemoteName,
		Auth:       auth,
		RefSpecs:   []gitconfig.RefSpec{spec},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return wrapf(err, "push %s to %s", branch, s.cfg.RemoteName)
}

// TryPush pushes and logs a failure instead of returning it.
func (s *Synchronizer) TryPush(ctx context.Context) bool {
	if err := s.Push(ctx); err != nil {
		slog.Warn("git push failed", "remote", s.cfg.RemoteName, "error", err)
		return false
	}
	return true
}

// PushIfHeadDiffersFromRemote pushes when the remote tracking ref of the
// current branch is missing or points elsewhere.
func (s *Synchronizer) PushIfHeadDiffersFromRemote(ctx context.Context) {
	head, err := s.CurrentHead()
	if errors.Is(err, ErrNoHead) {
		return
	}
	if err != nil {
		slog.Warn("git push check", "error", err)
		return
	}

	branch, err := s.CurrentBranch()
	if err != nil {
		slog.Warn("git push check", "error", err)
		return
	}
	remoteRef, err := s.RemoteHead(branch)
	if err != nil {
		slog.Warn("git push check", "error", err)
		return
	}
	if remoteRef != nil && remoteRef.Hash() == head.Hash {
		slog.Debug("git push skipped, remote up to date", "branch", branch)
		return
	}
	s.TryPush(ctx)
}
