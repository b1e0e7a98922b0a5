package gitsync

import (
	"errors"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// LastCommitOfFile returns the most recent commit reachable from head that
// touched relPath. Results are cached per (path, head).
func (s *Synchronizer) LastCommitOfFile(relPath string) (*object.Commit, error) {
	head, err := s.CurrentHead()
	if err != nil {
		return nil, err
	}

	key := historyKey{path: relPath, head: head.Hash}
	if hash, ok := s.history.Get(key); ok {
		return s.repo.CommitObject(hash)
	}

	iter, err := s.repo.Log(&git.LogOptions{
		From:     head.Hash,
		FileName: &relPath,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, wrapf(err, "log %s", relPath)
	}
	defer iter.Close()

	commit, err := iter.Next()
	if errors.Is(err, io.EOF) {
		return nil, wrapf(ErrFileNotFound, "history of %s", relPath)
	}
	if err != nil {
		return nil, wrapf(err, "log %s", relPath)
	}

	s.history.Add(key, commit.Hash)
	return commit, nil
}

// FileAtCommit returns the content of relPath in commit. ok is false when the
// path does not exist there.
func FileAtCommit(commit *object.Commit, relPath string) (content []byte, ok bool, err error) {
	if commit == nil {
		return nil, false, nil
	}
	f, err := commit.File(relPath)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapf(err, "lookup %s in %s", relPath, commit.Hash)
	}
	text, err := f.Contents()
	if err != nil {
		return nil, false, wrapf(err, "read %s in %s", relPath, commit.Hash)
	}
	return []byte(text), true, nil
}

// TreeVisitor is called for every entry of a walked tree. Returning false for
// a directory skips its subtree; for a file it is ignored.
type TreeVisitor func(relPath string, isDir bool) bool

// WalkHeadTree visits the head tree in entry order, which git keeps sorted.
func (s *Synchronizer) WalkHeadTree(visit TreeVisitor) error {
	head, err := s.CurrentHead()
	if err != nil {
		return err
	}
	tree, err := head.Tree()
	if err != nil {
		return wrapf(err, "load tree of %s", head.Hash)
	}
	return s.walkTree(tree, "", visit)
}

func (s *Synchronizer) walkTree(tree *object.Tree, prefix string, visit TreeVisitor) error {
	for _, entry := range tree.Entries {
		p := entry.Name
		if prefix != "" {
			p = prefix + "/" + entry.Name
		}

		switch entry.Mode {
		case filemode.Dir:
			if !visit(p, true) {
				continue
			}
			sub, err := s.repo.TreeObject(entry.Hash)
			if err != nil {
				return wrapf(err, "load tree %s", p)
			}
			if err := s.walkTree(sub, p, visit); err != nil {
				return err
			}
		case filemode.Submodule:
			// not content
		default:
			visit(p, false)
		}
	}
	return nil
}

// RemoteHead is the remote tracking ref of branch, or nil when the remote has
// no such branch.
func (s *Synchronizer) RemoteHead(branch string) (*plumbing.Reference, error) {
	ref, err := s.repo.Reference(plumbing.NewRemoteReferenceName(s.cfg.RemoteName, branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapf(err, "resolve %s/%s", s.cfg.RemoteName, branch)
	}
	return ref, nil
}
