package gitsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	RemoteName:  "origin",
	Branch:      "master",
	AuthorName:  "Test Author",
	AuthorEmail: "test@example.com",
}

// newRemote creates an empty bare repository to act as the remote.
func newRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

// newPeer creates a worktree repository wired to remote.
func newPeer(t *testing.T, remote string) *Synchronizer {
	t.Helper()
	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = r.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)

	s, err := New(r, testConfig, NoAuth{})
	require.NoError(t, err)
	return s
}

// sourceFile writes content to a scratch file outside any worktree.
func sourceFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "source.org")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func commitFile(t *testing.T, s *Synchronizer, relPath, content string) *object.Commit {
	t.Helper()
	ctx := context.Background()
	tracked, err := s.IsTracked(relPath)
	require.NoError(t, err)

	var c *object.Commit
	if tracked {
		c, err = s.UpdateAndCommitExistingFile(ctx, sourceFile(t, content), relPath)
	} else {
		c, err = s.AddAndCommitNewFile(ctx, sourceFile(t, content), relPath)
	}
	require.NoError(t, err)
	return c
}

func readWorkTree(t *testing.T, s *Synchronizer, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(s.WorkTreeFile(relPath))
	require.NoError(t, err)
	return string(data)
}
