// Package gitrepo is the git backend: a long-lived local clone that stamps
// documents with commit ids, merges before it overwrites and pushes after
// every commit.
//
// A GitRepo is opened once per sync session and must be closed. It holds an
// inter-process lock on the clone for its whole lifetime.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/gofrs/flock"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/gitsync"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/utils"
)

const (
	lockFileName = "docsync.lock"
	gcAutoValue  = "256"
)

// State is a step of the open lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateCloning
	StateVerifying
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCloning:
		return "cloning"
	case StateVerifying:
		return "verifying"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var _ repo.TwoWaySyncBackend = (*GitRepo)(nil)

type GitRepo struct {
	id       int64
	cfg      config.BackendConfig
	settings repo.Settings
	auth     gitsync.AuthProvider
	dir      string

	state  State
	repo   *git.Repository
	sync   *gitsync.Synchronizer
	ignore *repo.IgnoreFilter
	flock  *flock.Flock
}

// Open clones or verifies the local repository described by cfg and returns
// a ready backend. auth may be nil, in which case credentials come from cfg.
func Open(ctx context.Context, cfg config.BackendConfig, settings repo.Settings, auth gitsync.AuthProvider) (*GitRepo, error) {
	cfg.Git.ApplyDefaults()
	if auth == nil {
		auth = gitsync.AuthFromConfig(cfg.Git.Auth)
	}
	dir, err := utils.ResolvePath(cfg.Git.LocalPath)
	if err != nil {
		return nil, repo.NewError(repo.CodeConfiguration, "open git repo", cfg.Git.LocalPath, "bad local path", err)
	}

	g := &GitRepo{
		id:       cfg.ID,
		cfg:      cfg,
		settings: settings,
		auth:     auth,
		dir:      dir,
		state:    StateUninitialized,
	}

	var r *git.Repository
	if cfg.Clone {
		r, err = g.clone(ctx)
	} else {
		r, err = g.verify()
	}
	if err != nil {
		g.state = StateError
		return nil, err
	}

	if err := g.ready(r); err != nil {
		g.state = StateError
		return nil, err
	}
	return g, nil
}

func (g *GitRepo) clone(ctx context.Context) (*git.Repository, error) {
	g.state = StateCloning
	const op = "clone"

	if !utils.DirExists(g.dir) {
		return nil, repo.NewError(repo.CodeNotFound, op, g.dir, "directory does not exist", nil)
	}
	empty, err := utils.IsDirEmpty(g.dir)
	if err != nil {
		return nil, repo.NewError(repo.CodeIO, op, g.dir, "", err)
	}
	if !empty {
		return nil, repo.NewError(repo.CodeCloneTargetNotEmpty, op, g.dir, "", nil)
	}

	method, err := g.auth.Method(g.cfg.URL)
	if err != nil {
		return nil, repo.NewError(repo.CodeConfiguration, op, g.cfg.URL, "credentials", err)
	}

	slog.Info("git clone", "url", g.cfg.URL, "dir", g.dir, "branch", g.cfg.Git.Branch)
	r, err := git.PlainCloneContext(ctx, g.dir, false, &git.CloneOptions{
		URL:           g.cfg.URL,
		Auth:          method,
		RemoteName:    g.cfg.Git.RemoteName,
		ReferenceName: plumbing.NewBranchReferenceName(g.cfg.Git.Branch),
	})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		r, err = g.initEmpty()
	}
	if err != nil {
		if resetErr := utils.ResetDir(g.dir); resetErr != nil {
			slog.Error("git clone cleanup", "dir", g.dir, "error", resetErr)
		}
		return nil, repo.NewError(repo.CodeNetwork, op, g.cfg.URL, "", err)
	}

	if err := g.writeRepoConfig(r); err != nil {
		return nil, repo.NewError(repo.CodeIO, op, g.dir, "write repository config", err)
	}
	return r, nil
}

// initEmpty sets up a clone of a remote that has no commits yet.
func (g *GitRepo) initEmpty() (*git.Repository, error) {
	if err := utils.ResetDir(g.dir); err != nil {
		return nil, err
	}
	r, err := git.PlainInit(g.dir, false)
	if err != nil {
		return nil, err
	}
	branchRef := plumbing.NewBranchReferenceName(g.cfg.Git.Branch)
	if err := r.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return nil, err
	}
	slog.Info("git remote is empty", "url", g.cfg.URL)
	return r, nil
}

// writeRepoConfig persists remote, author identity and the gc threshold.
func (g *GitRepo) writeRepoConfig(r *git.Repository) error {
	cfg, err := r.Config()
	if err != nil {
		return err
	}

	cfg.Remotes[g.cfg.Git.RemoteName] = &gitconfig.RemoteConfig{
		Name:  g.cfg.Git.RemoteName,
		URLs:  []string{g.cfg.URL},
		Fetch: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf(gitconfig.DefaultFetchRefSpec, g.cfg.Git.RemoteName))},
	}
	cfg.User.Name = g.cfg.Git.AuthorName
	cfg.User.Email = g.cfg.Git.AuthorEmail
	cfg.Raw.Section("gc").SetOption("auto", gcAutoValue)

	return r.Storer.SetConfig(cfg)
}

func (g *GitRepo) verify() (*git.Repository, error) {
	g.state = StateVerifying
	const op = "verify"

	if !utils.DirExists(g.dir) {
		return nil, repo.NewError(repo.CodeNotFound, op, g.dir, "directory does not exist", nil)
	}
	if _, ok := findGitDir(g.dir, g.dir); !ok {
		return nil, repo.NewError(repo.CodeRepositoryState, op, g.dir, "not a git repository", nil)
	}

	r, err := git.PlainOpen(g.dir)
	if err != nil {
		return nil, repo.NewError(repo.CodeRepositoryState, op, g.dir, "open repository", err)
	}
	if _, err := r.Remote(g.cfg.Git.RemoteName); errors.Is(err, git.ErrRemoteNotFound) {
		if err := g.writeRepoConfig(r); err != nil {
			return nil, repo.NewError(repo.CodeIO, op, g.dir, "write repository config", err)
		}
	}
	return r, nil
}

// findGitDir walks up from start looking for repository metadata and stops
// after ceiling.
func findGitDir(start, ceiling string) (string, bool) {
	dir := filepath.Clean(start)
	ceiling = filepath.Clean(ceiling)
	for {
		candidate := filepath.Join(dir, git.GitDirName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		if dir == ceiling {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (g *GitRepo) ready(r *git.Repository) error {
	lockPath := filepath.Join(g.dir, git.GitDirName, lockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return repo.NewError(repo.CodeIO, "lock", lockPath, "", err)
	}
	if !locked {
		return repo.NewError(repo.CodeRepositoryState, "lock", g.dir, "repository locked by another process", nil)
	}

	s, err := gitsync.New(r, gitsync.Config{
		RemoteName:  g.cfg.Git.RemoteName,
		Branch:      g.cfg.Git.Branch,
		AuthorName:  g.cfg.Git.AuthorName,
		AuthorEmail: g.cfg.Git.AuthorEmail,
	}, g.auth)
	if err != nil {
		_ = lock.Unlock()
		return repo.NewError(repo.CodeRepositoryState, "open", g.dir, "", err)
	}

	ignore := repo.NewIgnoreFilter(g.dir)
	ignore.Load()

	g.repo = r
	g.sync = s
	g.ignore = ignore
	g.flock = lock
	g.state = StateReady
	slog.Debug("git repo ready", "id", g.id, "dir", g.dir, "ignoreRules", ignore.Rules())
	return nil
}

// State is the lifecycle state.
func (g *GitRepo) State() State {
	return g.state
}

// Dir is the local clone.
func (g *GitRepo) Dir() string {
	return g.dir
}

// CurrentBranch is the branch the clone is on. It differs from the
// configured branch while a conflict is parked.
func (g *GitRepo) CurrentBranch() (string, error) {
	if err := g.ensureReady("current branch"); err != nil {
		return "", err
	}
	return g.sync.CurrentBranch()
}

// Close releases the session lock. The backend is unusable afterwards.
func (g *GitRepo) Close() error {
	if g.state != StateReady {
		return nil
	}
	g.state = StateUninitialized
	g.repo = nil
	g.sync = nil

	if !g.flock.Locked() {
		return nil
	}
	if err := g.flock.Unlock(); err != nil {
		return err
	}
	return os.Remove(g.flock.Path())
}

func (g *GitRepo) ensureReady(op string) error {
	if g.state != StateReady {
		return repo.NewError(repo.CodeRepositoryState, op, g.dir, "backend is "+g.state.String(), nil)
	}
	return nil
}

func (g *GitRepo) ID() int64 {
	return g.id
}

func (g *GitRepo) Kind() repo.Kind {
	return repo.KindGit
}

func (g *GitRepo) IsConnectionRequired() bool {
	return true
}

func (g *GitRepo) IsAutoSyncSupported() bool {
	return true
}

// RootURI is the remote URL.
func (g *GitRepo) RootURI() string {
	return g.cfg.URL
}
