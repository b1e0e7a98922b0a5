// Package dirrepo is the directory backend. Documents are plain files in a
// local directory and revisions are modification times in epoch millis.
package dirrepo

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/utils"
)

var _ repo.SyncBackend = (*DirectoryRepo)(nil)

// DirectoryRepo syncs with a local directory. Listing covers direct children
// of the root only.
type DirectoryRepo struct {
	id       int64
	rootURI  string
	root     string
	settings repo.Settings
	ignore   *repo.IgnoreFilter
}

// Open parses the file:// root, optionally wipes it and makes sure it exists.
func Open(cfg config.BackendConfig, settings repo.Settings) (*DirectoryRepo, error) {
	root, err := repo.LocalRoot(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.Wipe {
		slog.Info("directory wipe", "dir", root)
		if err := os.RemoveAll(root); err != nil {
			return nil, repo.NewError(repo.CodeIO, "wipe", root, "", err)
		}
	}
	if err := utils.EnsureDir(root); err != nil {
		return nil, repo.NewError(repo.CodeIO, "create directory", root, "", err)
	}

	ignore := repo.NewIgnoreFilter(root)
	ignore.Load()

	return &DirectoryRepo{
		id:       cfg.ID,
		rootURI:  strings.TrimSuffix(cfg.URL, "/"),
		root:     root,
		settings: settings,
		ignore:   ignore,
	}, nil
}

func (d *DirectoryRepo) ID() int64 {
	return d.id
}

func (d *DirectoryRepo) Kind() repo.Kind {
	return repo.KindDirectory
}

func (d *DirectoryRepo) IsConnectionRequired() bool {
	return false
}

func (d *DirectoryRepo) IsAutoSyncSupported() bool {
	return true
}

func (d *DirectoryRepo) RootURI() string {
	return d.rootURI
}

// Dir is the local root directory.
func (d *DirectoryRepo) Dir() string {
	return d.root
}

func (d *DirectoryRepo) ListDocuments(ctx context.Context) ([]repo.VersionedDocument, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, repo.NewError(repo.CodeIO, "list", d.root, "", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !repo.IsSupportedFormat(name) || d.ignore.IsIgnored(name, false) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	docs := make([]repo.VersionedDocument, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := d.versionOf("list", name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (d *DirectoryRepo) RetrieveDocument(ctx context.Context, relPath, destination string) (repo.VersionedDocument, error) {
	const op = "retrieve"
	rel, src, err := d.resolve(op, relPath)
	if err != nil {
		return repo.VersionedDocument{}, err
	}
	if !utils.FileExists(src) {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeNotFound, op, src, "", nil)
	}
	if err := utils.CopyFile(src, destination); err != nil {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeIO, op, destination, "", err)
	}
	return d.versionOf(op, rel)
}

func (d *DirectoryRepo) OpenReadStream(ctx context.Context, relPath string) (io.ReadCloser, error) {
	const op = "open"
	_, src, err := d.resolve(op, relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, repo.NewError(repo.CodeNotFound, op, src, "", err)
	}
	if err != nil {
		return nil, repo.NewError(repo.CodeIO, op, src, "", err)
	}
	return f, nil
}

// StoreDocument copies sourceFile over relPath, creating parents as needed.
func (d *DirectoryRepo) StoreDocument(ctx context.Context, sourceFile, relPath string) (repo.VersionedDocument, error) {
	const op = "store"
	if !utils.FileExists(sourceFile) {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeNotFound, op, sourceFile, "source file does not exist", nil)
	}
	rel, dst, err := d.resolve(op, relPath)
	if err != nil {
		return repo.VersionedDocument{}, err
	}
	if err := utils.CopyFile(sourceFile, dst); err != nil {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeIO, op, dst, "", err)
	}
	slog.Debug("directory stored", "path", rel)
	return d.versionOf(op, rel)
}

// RenameDocument moves the document next to itself under newName. An
// existing target is never overwritten.
func (d *DirectoryRepo) RenameDocument(ctx context.Context, oldURI, newName string) (*repo.VersionedDocument, error) {
	const op = "rename"
	if repo.IsNested(newName) && !d.settings.SubfolderSupport {
		return nil, repo.NewError(repo.CodeSubfoldersDisabled, op, newName, "enable subfolder support to use \"/\" in names", nil)
	}

	oldRel, err := repo.RelativePath(d.rootURI, oldURI)
	if err != nil {
		return nil, err
	}
	newRel := path.Join(path.Dir(oldRel), repo.DocumentPath(newName, repo.DefaultFormat))

	from := d.abs(oldRel)
	to := d.abs(newRel)
	if !utils.FileExists(from) {
		return nil, repo.NewError(repo.CodeNotFound, op, from, "", nil)
	}
	if err := utils.EnsureParent(to); err != nil {
		return nil, repo.NewError(repo.CodeIO, op, to, "", err)
	}
	// link fails on an existing target where rename would replace it
	if err := os.Link(from, to); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, repo.NewError(repo.CodeAlreadyExists, op, to, "", err)
		}
		return nil, repo.NewError(repo.CodeIO, op, from, "link to "+to, err)
	}
	if err := os.Remove(from); err != nil {
		_ = os.Remove(to)
		return nil, repo.NewError(repo.CodeIO, op, from, "remove after link", err)
	}

	doc, err := d.versionOf(op, newRel)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *DirectoryRepo) Delete(ctx context.Context, uri string) error {
	rel, err := repo.RelativePath(d.rootURI, uri)
	if err != nil {
		return err
	}
	p := d.abs(rel)
	if !utils.FileExists(p) {
		return nil
	}
	if err := os.Remove(p); err != nil {
		return repo.NewError(repo.CodeIO, "delete", p, "", err)
	}
	return nil
}

// Close is a no-op; the directory backend holds no session.
func (d *DirectoryRepo) Close() error {
	return nil
}

func (d *DirectoryRepo) resolve(op, relPath string) (string, string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(relPath)), "/")
	if rel == "" {
		return "", "", repo.NewError(repo.CodeConfiguration, op, relPath, "no path", nil)
	}
	return rel, d.abs(rel), nil
}

func (d *DirectoryRepo) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

func (d *DirectoryRepo) versionOf(op, rel string) (repo.VersionedDocument, error) {
	p := d.abs(rel)
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeNotFound, op, p, "", err)
	}
	if err != nil {
		return repo.VersionedDocument{}, repo.NewError(repo.CodeIO, op, p, "", err)
	}
	mtime := info.ModTime()
	return repo.VersionedDocument{
		BackendID:  d.id,
		Kind:       repo.KindDirectory,
		RootURI:    d.rootURI,
		URI:        repo.JoinURI(d.rootURI, rel),
		Path:       rel,
		Revision:   repo.MillisRevision(mtime),
		ModifiedAt: mtime.UnixMilli(),
	}, nil
}
