package journal

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(db.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func doc(backend int64, path, rev string) repo.VersionedDocument {
	return repo.VersionedDocument{
		BackendID:  backend,
		Kind:       repo.KindGit,
		RootURI:    "/remote",
		URI:        "/remote/" + path,
		Path:       path,
		Revision:   rev,
		ModifiedAt: 1700000000000,
	}
}

func TestJournal_SetGet(t *testing.T) {
	j := newJournal(t)

	got, err := j.Get(1, "a.org")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, j.Set(doc(1, "a.org", "c1"), "h1"))
	got, err = j.Get(1, "a.org")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc(1, "a.org", "c1"), got.Doc)
	assert.Equal(t, "h1", got.LocalHash)
	assert.False(t, got.SyncedAt.IsZero())

	require.NoError(t, j.Set(doc(1, "a.org", "c2"), "h2"))
	got, err = j.Get(1, "a.org")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.Doc.Revision)

	n, err := j.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_EntriesArePerBackend(t *testing.T) {
	j := newJournal(t)
	require.NoError(t, j.Set(doc(1, "a.org", "c1"), "h"))
	require.NoError(t, j.Set(doc(1, "b.org", "c1"), "h"))
	require.NoError(t, j.Set(doc(2, "a.org", "x"), "h"))

	entries, err := j.Entries(1)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, "b.org")

	require.NoError(t, j.Delete(1, "a.org"))
	got, err := j.Get(1, "a.org")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, j.Forget(1))
	n, err := j.Count(1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = j.Count(2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Set(doc(5, "x.org", "c9"), "h"))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.Get(5, "x.org")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c9", got.Doc.Revision)
}

func TestJournal_ConcurrentWriters(t *testing.T) {
	j := newJournal(t)

	var wg sync.WaitGroup
	for i := int64(1); i <= 4; i++ {
		wg.Add(1)
		go func(backend int64) {
			defer wg.Done()
			for _, p := range []string{"a.org", "b.org", "c.org"} {
				assert.NoError(t, j.Set(doc(backend, p, "r"), "h"))
			}
		}(i)
	}
	wg.Wait()

	for i := int64(1); i <= 4; i++ {
		n, err := j.Count(i)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	}
}
