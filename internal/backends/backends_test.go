package backends

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Directory(t *testing.T) {
	root := t.TempDir()
	b, err := Open(context.Background(), config.BackendConfig{ID: 1, Kind: repo.KindDirectory, URL: "file://" + root}, repo.Settings{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, repo.KindDirectory, b.Kind())
	_, ok := TwoWay(b)
	assert.False(t, ok)
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(context.Background(), config.BackendConfig{ID: 1, Kind: "dropbox"}, repo.Settings{})
	assert.ErrorIs(t, err, repo.ErrConfiguration)
}

func TestOpenAll_ClosesOnFailure(t *testing.T) {
	cfg := &config.Config{Backends: []config.BackendConfig{
		{ID: 1, Kind: repo.KindDirectory, URL: "file://" + t.TempDir()},
		{ID: 2, Kind: repo.KindGit, URL: "/nowhere", Git: config.GitConfig{LocalPath: filepath.Join(t.TempDir(), "missing")}},
	}}

	_, err := OpenAll(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Contains(t, err.Error(), "backend 2")
}
