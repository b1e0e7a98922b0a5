package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/require"
)

// peer is an independent clone used to change the remote behind a backend's back.
type peer struct {
	t    *testing.T
	repo *git.Repository
	dir  string
}

func newRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func newPeer(t *testing.T, remote string) *peer {
	t.Helper()
	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = r.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)

	err = r.Fetch(&git.FetchOptions{RemoteName: "origin"})
	if err == nil {
		wt, err := r.Worktree()
		require.NoError(t, err)
		ref, err := r.Reference("refs/remotes/origin/master", true)
		require.NoError(t, err)
		require.NoError(t, r.Storer.SetReference(plumbing.NewHashReference(plumbing.Master, ref.Hash())))
		require.NoError(t, wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}))
	}
	return &peer{t: t, repo: r, dir: dir}
}

// commit writes files and commits them. It returns the new commit.
func (p *peer) commit(files map[string]string) *object.Commit {
	p.t.Helper()
	wt, err := p.repo.Worktree()
	require.NoError(p.t, err)

	for name, content := range files {
		full := filepath.Join(p.dir, filepath.FromSlash(name))
		require.NoError(p.t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(p.t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(p.t, err)
	}

	sig := &object.Signature{Name: "Peer", Email: "peer@example.com", When: time.Now()}
	hash, err := wt.Commit("peer commit", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(p.t, err)
	c, err := p.repo.CommitObject(hash)
	require.NoError(p.t, err)
	return c
}

func (p *peer) push() {
	p.t.Helper()
	require.NoError(p.t, p.repo.Push(&git.PushOptions{RemoteName: "origin"}))
}

// seedRemote creates a remote holding one commit with files.
func seedRemote(t *testing.T, files map[string]string) (string, *object.Commit) {
	t.Helper()
	remote := newRemote(t)
	p := newPeer(t, remote)
	c := p.commit(files)
	p.push()
	return remote, c
}

func backendConfig(remote, localPath string, clone bool) config.BackendConfig {
	return config.BackendConfig{
		ID:    7,
		Kind:  repo.KindGit,
		URL:   remote,
		Clone: clone,
		Git: config.GitConfig{
			LocalPath:   localPath,
			RemoteName:  "origin",
			Branch:      "master",
			AuthorName:  "Docsync Test",
			AuthorEmail: "docsync@example.com",
		},
	}
}

// openClone clones remote into a fresh directory.
func openClone(t *testing.T, remote string, settings repo.Settings) *GitRepo {
	t.Helper()
	g, err := Open(context.Background(), backendConfig(remote, t.TempDir(), true), settings, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "local.org")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func countCommits(t *testing.T, g *GitRepo) int {
	t.Helper()
	iter, err := g.repo.Log(&git.LogOptions{})
	require.NoError(t, err)
	n := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	}))
	return n
}
