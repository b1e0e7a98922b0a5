package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("DOCSYNC_TEST_ROOT", "/srv/notes")
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "relative path", input: "./test", want: filepath.Join(cwd, "test")},
		{name: "absolute path", input: "/tmp/../tmp/test", want: "/tmp/test"},
		{name: "home path", input: "~/docs", want: filepath.Join(home, "docs")},
		{name: "bare home", input: "~", want: home},
		{name: "env var", input: "$DOCSYNC_TEST_ROOT/journal.db", want: "/srv/notes/journal.db"},
		{name: "user home form", input: "~bob/x", want: filepath.Join(cwd, "~bob", "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = ResolvePath("  ")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestIsDirEmpty(t *testing.T) {
	dir := t.TempDir()

	empty, err := IsDirEmpty(dir)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.org"), []byte("x"), 0o644))
	empty, err = IsDirEmpty(dir)
	require.NoError(t, err)
	assert.False(t, empty)

	_, err = IsDirEmpty(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "target")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "a.org"), []byte("x"), 0o644))

	require.NoError(t, ResetDir(dir))

	assert.DirExists(t, dir)
	empty, err := IsDirEmpty(dir)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.org")
	dst := filepath.Join(dir, "a", "b", "dst.org")
	require.NoError(t, os.WriteFile(src, []byte("* heading\n"), 0o644))

	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "* heading\n", string(got))

	srcHash, err := FileHash(src)
	require.NoError(t, err)
	dstHash, err := FileHash(dst)
	require.NoError(t, err)
	assert.Equal(t, srcHash, dstHash)

	assert.Error(t, CopyFile(filepath.Join(dir, "missing.org"), dst))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("abc"))
	assert.Equal(t, "ghp_*****", MaskSecret("ghp_1234567890"))
}
