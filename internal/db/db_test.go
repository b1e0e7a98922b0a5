package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MemoryWithSchema(t *testing.T) {
	conn, err := Open("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("INSERT INTO t (v) VALUES (?)", "x")
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.Get(&n, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, n)
}

func TestOpen_FileCreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	conn, err := Open("", WithPath(path), WithBusyTimeout(time.Second), WithMaxConns(2))
	require.NoError(t, err)
	defer conn.Close()

	assert.FileExists(t, path)
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := Open("CREATE NONSENSE;")
	assert.Error(t, err)
}
