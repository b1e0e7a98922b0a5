package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

type fixture struct {
	configPath string
	docsDir    string
	storeDir   string
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		configPath: filepath.Join(base, "config.yaml"),
		docsDir:    filepath.Join(base, "docs"),
		storeDir:   filepath.Join(base, "store"),
	}
	require.NoError(t, os.MkdirAll(f.docsDir, 0o755))

	cfg := fmt.Sprintf(`journal_path: %s
store_dir: %s
backends:
  - id: 1
    kind: directory
    url: file://%s
%s`, filepath.Join(base, "journal.db"), f.storeDir, filepath.ToSlash(f.docsDir), extra)
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o644))
	return f
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	err := cmd.Execute()
	return stripANSI(out.String()), err
}

func TestVersionCommand_SkipsConfig(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.String(), strings.TrimSpace(out.String()))
}

func TestVersionCommand_JSON(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})
	require.NoError(t, cmd.Execute())

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.Current(), info)
}

func TestPutListGet(t *testing.T) {
	f := newFixture(t, "")
	src := filepath.Join(t.TempDir(), "src.org")
	require.NoError(t, os.WriteFile(src, []byte("* hello\n"), 0o644))

	out, err := f.run(t, "put", "1", src, "notes.org")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.org")
	assert.FileExists(t, filepath.Join(f.docsDir, "notes.org"))

	out, err = f.run(t, "list", "1", "--json")
	require.NoError(t, err)
	var docs []repo.VersionedDocument
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.org", docs[0].Path)
	assert.Equal(t, repo.KindDirectory, docs[0].Kind)

	dest := filepath.Join(t.TempDir(), "copy.org")
	_, err = f.run(t, "get", "1", "notes.org", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "* hello\n", string(data))
}

func TestMoveAndRemove(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(f.docsDir, "a.org"), []byte("a"), 0o644))

	out, err := f.run(t, "mv", "1", "a.org", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "b.org")
	assert.NoFileExists(t, filepath.Join(f.docsDir, "a.org"))

	out, err = f.run(t, "rm", "1", "b.org")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
	assert.NoFileExists(t, filepath.Join(f.docsDir, "b.org"))
}

func TestUnknownBackend(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.run(t, "list", "9")
	require.ErrorContains(t, err, "backend 9 is not configured")

	_, err = f.run(t, "list", "abc")
	require.ErrorContains(t, err, `invalid backend id "abc"`)
}

func TestMergeRequiresHistory(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.run(t, "merge", "1", "a.org", filepath.Join(t.TempDir(), "a.org"))
	require.ErrorContains(t, err, "has no history")
}

func TestSyncCommand_DownloadsThenSettles(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(f.docsDir, "a.org"), []byte("a"), 0o644))

	out, err := f.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "download")
	assert.FileExists(t, filepath.Join(f.storeDir, "1", "a.org"))

	out, err = f.run(t, "sync", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "in sync")

	out, err = f.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 known")
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	gitPath := filepath.Join(t.TempDir(), "clone")
	f := newFixture(t, fmt.Sprintf(`  - id: 2
    kind: git
    url: https://example.com/notes.git
    git:
      local_path: %s
      auth:
        token: supersecrettoken
`, gitPath))

	out, err := f.run(t, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, "supersecrettoken")
	assert.Contains(t, out, "supe*****")
	assert.Contains(t, out, "branch: master")
}

func TestConfigCommand_RejectsEmptyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backends: []\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "config"})
	require.ErrorContains(t, cmd.Execute(), "no backends configured")
}
