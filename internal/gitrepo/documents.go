package gitrepo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/openmined/docsync/internal/gitsync"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/utils"
)

// ListDocuments walks the head tree. Each document carries the commit that
// last touched it, not the head commit.
func (g *GitRepo) ListDocuments(ctx context.Context) ([]repo.VersionedDocument, error) {
	const op = "list"
	if err := g.ensureReady(op); err != nil {
		return nil, err
	}

	var paths []string
	err := g.sync.WalkHeadTree(func(p string, isDir bool) bool {
		if strings.HasPrefix(path.Base(p), ".") {
			return false
		}
		if g.ignore.IsIgnored(p, isDir) {
			return false
		}
		if isDir {
			return g.settings.SubfolderSupport
		}
		if repo.IsSupportedFormat(p) {
			paths = append(paths, p)
		}
		return true
	})
	if errors.Is(err, gitsync.ErrNoHead) {
		return []repo.VersionedDocument{}, nil
	}
	if err != nil {
		return nil, repo.NewError(repo.CodeRepositoryState, op, g.dir, "walk head tree", err)
	}

	sort.Strings(paths)

	docs := make([]repo.VersionedDocument, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := g.versionOf(op, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// RetrieveDocument integrates the remote first so the copy is fresh.
func (g *GitRepo) RetrieveDocument(ctx context.Context, relPath, destination string) (repo.VersionedDocument, error) {
	const op = "retrieve"
	if err := g.ensureReady(op); err != nil {
		return repo.VersionedDocument{}, err
	}
	rel := cleanRel(relPath)

	if err := g.sync.MergeWithRemote(ctx); err != nil {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeNetwork, op, g.cfg.URL, "merge with remote", err)
	}

	if err := g.sync.RetrieveLatestVersionOfFile(rel, destination); err != nil {
		if errors.Is(err, gitsync.ErrFileNotFound) {
			return repo.VersionedDocument{}, repo.NewError(repo.CodeNotFound, op, rel, "", err)
		}
		return repo.VersionedDocument{}, repo.NewError(repo.CodeIO, op, destination, "", err)
	}
	return g.versionOf(op, rel)
}

func (g *GitRepo) OpenReadStream(ctx context.Context, relPath string) (io.ReadCloser, error) {
	const op = "open"
	if err := g.ensureReady(op); err != nil {
		return nil, err
	}
	rel := cleanRel(relPath)

	rc, err := g.sync.OpenFile(rel)
	if errors.Is(err, gitsync.ErrFileNotFound) {
		return nil, repo.NewError(repo.CodeNotFound, op, rel, "", err)
	}
	if err != nil {
		return nil, repo.NewError(repo.CodeIO, op, rel, "", err)
	}
	return rc, nil
}

// StoreDocument commits sourceFile at relPath and tries to push. A failed
// push is logged; the local commit is what counts.
func (g *GitRepo) StoreDocument(ctx context.Context, sourceFile, relPath string) (repo.VersionedDocument, error) {
	const op = "store"
	if err := g.ensureReady(op); err != nil {
		return repo.VersionedDocument{}, err
	}
	rel := cleanRel(relPath)

	if !utils.FileExists(sourceFile) {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeNotFound, op, sourceFile, "source file does not exist", nil)
	}

	var (
		commit *object.Commit
		err    error
	)
	if utils.FileExists(g.sync.WorkTreeFile(rel)) {
		commit, err = g.sync.UpdateAndCommitExistingFile(ctx, sourceFile, rel)
	} else {
		commit, err = g.sync.AddAndCommitNewFile(ctx, sourceFile, rel)
	}
	switch {
	case errors.Is(err, gitsync.ErrNothingToCommit):
		slog.Debug("git store unchanged", "path", rel)
	case err != nil:
		return repo.VersionedDocument{}, repo.NewError(repo.CodeIO, op, rel, "commit", err)
	default:
		slog.Info("git stored", "path", rel, "commit", commit.Hash.String())
		g.sync.TryPush(ctx)
	}

	return g.versionOf(op, rel)
}

// SyncDocument reconciles localFile with the current copy of uri.
func (g *GitRepo) SyncDocument(ctx context.Context, uri string, known *repo.VersionedDocument, localFile string) (repo.TwoWaySyncResult, error) {
	const op = "sync"
	if err := g.ensureReady(op); err != nil {
		return repo.TwoWaySyncResult{}, err
	}
	rel, err := repo.RelativePath(g.RootURI(), uri)
	if err != nil {
		return repo.TwoWaySyncResult{}, err
	}

	if known == nil {
		return g.syncWithoutBase(ctx, rel, localFile)
	}

	base, err := g.sync.CommitByRevision(known.Revision)
	if err != nil {
		return repo.TwoWaySyncResult{}, repo.NewError(repo.CodeNotFound, op, known.Revision, "unknown revision", err)
	}

	res, err := g.sync.MergeFileFromRevision(ctx, localFile, rel, base)
	if err != nil {
		return repo.TwoWaySyncResult{}, repo.NewError(repo.CodeIO, op, rel, "merge", err)
	}
	if !res.Merged {
		slog.Warn("git sync conflict", "path", rel, "branch", res.Branch)
	}
	g.sync.TryPush(ctx)

	doc, err := g.versionOf(op, rel)
	if err != nil {
		return repo.TwoWaySyncResult{}, err
	}
	return repo.TwoWaySyncResult{
		Updated:         doc,
		Merged:          res.Merged,
		WorkingCopyPath: g.sync.WorkTreeFile(rel),
	}, nil
}

// syncWithoutBase handles a document nothing is known about. For a tracked
// path the repository copy wins and localFile is not read; the caller gets
// the worktree copy back. A document the repository has never seen is added
// from localFile.
func (g *GitRepo) syncWithoutBase(ctx context.Context, rel, localFile string) (repo.TwoWaySyncResult, error) {
	const op = "sync"
	slog.Warn("git sync without known version, skipping merge", "path", rel)

	tracked, err := g.sync.IsTracked(rel)
	if err != nil {
		return repo.TwoWaySyncResult{}, repo.NewError(repo.CodeRepositoryState, op, rel, "", err)
	}
	if !tracked {
		if _, err := g.StoreDocument(ctx, localFile, rel); err != nil {
			return repo.TwoWaySyncResult{}, err
		}
	}

	doc, err := g.versionOf(op, rel)
	if err != nil {
		return repo.TwoWaySyncResult{}, err
	}
	return repo.TwoWaySyncResult{
		Updated:         doc,
		Merged:          true,
		WorkingCopyPath: g.sync.WorkTreeFile(rel),
	}, nil
}

// RenameDocument moves the document to newName plus the default format
// extension. Nothing to do is reported as nil, nil.
func (g *GitRepo) RenameDocument(ctx context.Context, oldURI, newName string) (*repo.VersionedDocument, error) {
	const op = "rename"
	if err := g.ensureReady(op); err != nil {
		return nil, err
	}
	if repo.IsNested(newName) && !g.settings.SubfolderSupport {
		return nil, repo.NewError(repo.CodeSubfoldersDisabled, op, newName, "enable subfolder support to use \"/\" in names", nil)
	}

	oldRel, err := repo.RelativePath(g.RootURI(), oldURI)
	if err != nil {
		return nil, err
	}
	newRel := repo.DocumentPath(newName, repo.DefaultFormat)
	if newRel == oldRel {
		return nil, nil
	}

	tracked, err := g.sync.IsTracked(newRel)
	if err != nil {
		return nil, repo.NewError(repo.CodeRepositoryState, op, newRel, "", err)
	}
	if tracked || utils.FileExists(g.sync.WorkTreeFile(newRel)) {
		return nil, repo.NewError(repo.CodeAlreadyExists, op, newRel, "", nil)
	}

	commit, err := g.sync.RenameFile(ctx, oldRel, newRel)
	switch {
	case errors.Is(err, gitsync.ErrNothingToCommit):
		return nil, nil
	case errors.Is(err, gitsync.ErrFileNotFound):
		return nil, repo.NewError(repo.CodeNotFound, op, oldRel, "", err)
	case err != nil:
		return nil, repo.NewError(repo.CodeIO, op, oldRel, "", err)
	}
	slog.Info("git renamed", "from", oldRel, "to", newRel, "commit", commit.Hash.String())
	g.sync.TryPush(ctx)

	doc, err := g.versionOf(op, newRel)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete commits a removal. An untracked or absent document is a no-op.
func (g *GitRepo) Delete(ctx context.Context, uri string) error {
	const op = "delete"
	if err := g.ensureReady(op); err != nil {
		return err
	}
	rel, err := repo.RelativePath(g.RootURI(), uri)
	if err != nil {
		return err
	}

	commit, err := g.sync.DeleteFile(ctx, rel)
	if errors.Is(err, gitsync.ErrNothingToCommit) {
		return nil
	}
	if err != nil {
		return repo.NewError(repo.CodeIO, op, rel, "", err)
	}
	slog.Info("git deleted", "path", rel, "commit", commit.Hash.String())
	g.sync.TryPush(ctx)
	return nil
}

// IsUnchanged marks the current head, integrates the remote and reports
// whether head stayed put. A repository without commits is unchanged.
func (g *GitRepo) IsUnchanged(ctx context.Context) (bool, error) {
	const op = "is unchanged"
	if err := g.ensureReady(op); err != nil {
		return false, err
	}

	if err := g.sync.SetPreSyncMarker(); err != nil {
		return false, repo.NewError(repo.CodeIO, op, g.dir, "", err)
	}
	if err := g.sync.MergeWithRemote(ctx); err != nil {
		return false, repo.NewError(repo.CodeNetwork, op, g.cfg.URL, "merge with remote", err)
	}

	head, err := g.sync.CurrentHead()
	if errors.Is(err, gitsync.ErrNoHead) {
		return true, nil
	}
	if err != nil {
		return false, repo.NewError(repo.CodeRepositoryState, op, g.dir, "", err)
	}
	marker, ok, err := g.sync.PreSyncMarker()
	if err != nil {
		return false, repo.NewError(repo.CodeRepositoryState, op, g.dir, "", err)
	}
	return ok && marker == head.Hash, nil
}

func (g *GitRepo) PushIfHeadDiffersFromRemote(ctx context.Context) {
	if g.ensureReady("push") != nil {
		return
	}
	g.sync.PushIfHeadDiffersFromRemote(ctx)
}

func (g *GitRepo) versionOf(op, rel string) (repo.VersionedDocument, error) {
	commit, err := g.sync.LastCommitOfFile(rel)
	if errors.Is(err, gitsync.ErrFileNotFound) || errors.Is(err, gitsync.ErrNoHead) {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeNotFound, op, rel, "no commit touches path", err)
	}
	if err != nil {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeRepositoryState, op, rel, "history", err)
	}
	return repo.VersionedDocument{
		BackendID:  g.id,
		Kind:       repo.KindGit,
		RootURI:    g.RootURI(),
		URI:        repo.JoinURI(g.RootURI(), rel),
		Path:       rel,
		Revision:   commit.Hash.String(),
		ModifiedAt: commit.Committer.When.UnixMilli(),
	}, nil
}

func cleanRel(relPath string) string {
	return strings.TrimPrefix(path.Clean("/"+relPath), "/")
}
