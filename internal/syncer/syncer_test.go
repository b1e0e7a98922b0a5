package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/dirrepo"
	"github.com/openmined/docsync/internal/journal"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t      *testing.T
	syncer *Syncer
	remote string
	b      *dirrepo.DirectoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j, err := journal.Open(db.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	remote := t.TempDir()
	b, err := dirrepo.Open(config.BackendConfig{ID: 1, Kind: repo.KindDirectory, URL: "file://" + remote}, repo.Settings{})
	require.NoError(t, err)

	return &fixture{t: t, syncer: New(j, t.TempDir(), false), remote: remote, b: b}
}

func (f *fixture) pass() Report {
	f.t.Helper()
	r, err := f.syncer.Sync(context.Background(), f.b)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) local(name string) string {
	return filepath.Join(f.syncer.LocalDir(f.b), name)
}

// write sets content and pushes the mtime forward so the revision changes.
func write(t *testing.T, p, content string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	when := time.Now().Add(age)
	require.NoError(t, os.Chtimes(p, when, when))
}

func read(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func ops(r Report) map[string]Op {
	out := make(map[string]Op, len(r.Actions))
	for _, a := range r.Actions {
		out[a.Path] = a.Op
	}
	return out
}

func TestSync_FirstPassDownloads(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.remote, "a.org"), "a", -time.Hour)
	write(t, filepath.Join(f.remote, "b.org"), "b", -time.Hour)

	r := f.pass()
	assert.Equal(t, map[string]Op{"a.org": OpDownload, "b.org": OpDownload}, ops(r))
	assert.Equal(t, "a", read(t, f.local("a.org")))
	assert.Equal(t, int64(1), r.BackendID)
	assert.Equal(t, repo.KindDirectory, r.Kind)

	r = f.pass()
	assert.Empty(t, r.Actions)
	assert.False(t, r.Skipped)
}

func TestSync_UploadsLocalChanges(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.remote, "a.org"), "a", -time.Hour)
	f.pass()

	write(t, f.local("a.org"), "a local", 0)
	write(t, f.local("new.org"), "new", 0)

	r := f.pass()
	assert.Equal(t, map[string]Op{"a.org": OpUpload, "new.org": OpUpload}, ops(r))
	assert.Equal(t, "a local", read(t, filepath.Join(f.remote, "a.org")))
	assert.Equal(t, "new", read(t, filepath.Join(f.remote, "new.org")))

	assert.Empty(t, f.pass().Actions)
}

func TestSync_DownloadsRemoteChanges(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.remote, "a.org"), "a", -time.Hour)
	f.pass()

	write(t, filepath.Join(f.remote, "a.org"), "a remote", 0)
	r := f.pass()
	assert.Equal(t, map[string]Op{"a.org": OpDownload}, ops(r))
	assert.Equal(t, "a remote", read(t, f.local("a.org")))
}

func TestSync_PropagatesDeletes(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.remote, "a.org"), "a", -time.Hour)
	write(t, filepath.Join(f.remote, "b.org"), "b", -time.Hour)
	f.pass()

	require.NoError(t, os.Remove(f.local("a.org")))
	require.NoError(t, os.Remove(filepath.Join(f.remote, "b.org")))

	r := f.pass()
	assert.Equal(t, map[string]Op{"a.org": OpDeleteRemote, "b.org": OpDeleteLocal}, ops(r))
	assert.NoFileExists(t, filepath.Join(f.remote, "a.org"))
	assert.NoFileExists(t, f.local("b.org"))

	assert.Empty(t, f.pass().Actions)
}

func TestSync_DirectoryConflictKeepsLocalCopy(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.remote, "a.org"), "base", -time.Hour)
	f.pass()

	write(t, f.local("a.org"), "mine", 0)
	write(t, filepath.Join(f.remote, "a.org"), "theirs", 0)

	r := f.pass()
	require.Len(t, r.Actions, 1)
	a := r.Actions[0]
	assert.Equal(t, OpConflict, a.Op)
	assert.Equal(t, f.local("a.conflict.org"), a.ConflictCopy)
	assert.Equal(t, 1, r.Conflicts())

	assert.Equal(t, "theirs", read(t, f.local("a.org")))
	assert.Equal(t, "mine", read(t, f.local("a.conflict.org")))

	// the conflict copy is not picked up as a document
	assert.Empty(t, f.pass().Actions)
}

func TestSync_FirstContactIdenticalContent(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.remote, "a.org"), "same", -time.Hour)
	write(t, f.local("a.org"), "same", 0)

	r := f.pass()
	assert.Empty(t, r.Actions)
	assert.NoFileExists(t, f.local("a.conflict.org"))
	assert.Empty(t, f.pass().Actions)
}

func TestSync_IgnoresNestedLocalFilesForDirectory(t *testing.T) {
	f := newFixture(t)
	f.syncer.subfolders = true
	write(t, f.local("sub/x.org"), "x", 0)
	write(t, f.local(".hidden.org"), "h", 0)

	r := f.pass()
	assert.Empty(t, r.Actions)
}

func TestSyncAll(t *testing.T) {
	j, err := journal.Open(db.Memory)
	require.NoError(t, err)
	defer j.Close()
	s := New(j, t.TempDir(), false)

	var backends []repo.SyncBackend
	for id := int64(1); id <= 3; id++ {
		root := t.TempDir()
		write(t, filepath.Join(root, "a.org"), "a", -time.Hour)
		b, err := dirrepo.Open(config.BackendConfig{ID: id, Kind: repo.KindDirectory, URL: "file://" + root}, repo.Settings{})
		require.NoError(t, err)
		backends = append(backends, b)
	}

	reports, err := s.SyncAll(context.Background(), backends)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, int64(i+1), r.BackendID)
		assert.Len(t, r.Actions, 1)
		assert.FileExists(t, filepath.Join(s.LocalDir(backends[i]), "a.org"))
	}
}
