package syncer

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
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/gitrepo"
	"github.com/openmined/docsync/internal/journal"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushFromPeer commits files in a throwaway clone of remote and pushes.
func pushFromPeer(t *testing.T, remote string, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = r.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)
	wt, err := r.Worktree()
	require.NoError(t, err)

	if err := r.Fetch(&git.FetchOptions{RemoteName: "origin"}); err == nil {
		ref, err := r.Reference("refs/remotes/origin/master", true)
		require.NoError(t, err)
		require.NoError(t, r.Storer.SetReference(plumbing.NewHashReference(plumbing.Master, ref.Hash())))
		require.NoError(t, wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}))
	}

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	sig := &object.Signature{Name: "Peer", Email: "peer@example.com", When: time.Now()}
	_, err = wt.Commit("peer", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	require.NoError(t, r.Push(&git.PushOptions{RemoteName: "origin"}))
}

func TestSync_GitMergesBothSides(t *testing.T) {
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)
	pushFromPeer(t, remote, map[string]string{"a.org": "one\ntwo\nthree\n"})

	g, err := gitrepo.Open(context.Background(), config.BackendConfig{
		ID:    9,
		Kind:  repo.KindGit,
		URL:   remote,
		Clone: true,
		Git:   config.GitConfig{LocalPath: t.TempDir()},
	}, repo.Settings{}, nil)
	require.NoError(t, err)
	defer g.Close()

	j, err := journal.Open(db.Memory)
	require.NoError(t, err)
	defer j.Close()
	s := New(j, t.TempDir(), false)
	local := filepath.Join(s.LocalDir(g), "a.org")

	r, err := s.Sync(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, map[string]Op{"a.org": OpDownload}, ops(r))

	r, err = s.Sync(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, r.Skipped)

	pushFromPeer(t, remote, map[string]string{"a.org": "one\ntwo\nTHREE\n"})
	require.NoError(t, os.WriteFile(local, []byte("ONE\ntwo\nthree\n"), 0o644))

	r, err = s.Sync(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, map[string]Op{"a.org": OpMerge}, ops(r))
	assert.Equal(t, "ONE\ntwo\nTHREE\n", read(t, local))

	r, err = s.Sync(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, r.Skipped)
}
