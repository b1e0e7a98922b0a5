package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinURI(t *testing.T) {
	tests := []struct {
		root, rel, want string
	}{
		{"file:///docs", "a.org", "file:///docs/a.org"},
		{"file:///docs/", "/a.org", "file:///docs/a.org"},
		{"file:///docs", "notes/a.org", "file:///docs/notes/a.org"},
		{"file:///docs", "a b.org", "file:///docs/a%20b.org"},
		{"file:///docs", "a%20b.org", "file:///docs/a%2520b.org"},
		{"file:///docs", "50% off/x?.org", "file:///docs/50%25%20off/x%3F.org"},
		{"https://example.com/r.git", "a#1.org", "https://example.com/r.git/a%231.org"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinURI(tt.root, tt.rel))
		})
	}
}

func TestRelativePath_ReversesJoinURI(t *testing.T) {
	root := "file:///home/user/my docs"
	for _, rel := range []string{
		"a.org",
		"a b.org",
		"a%20b.org",
		"100%.org",
		"notes/c d/e%f.org",
		"plus+semi;colon:at@.org",
	} {
		t.Run(rel, func(t *testing.T) {
			got, err := RelativePath(root, JoinURI(root, rel))
			require.NoError(t, err)
			assert.Equal(t, rel, got)
		})
	}
}

func TestRelativePath(t *testing.T) {
	root := "file:///docs"

	got, err := RelativePath(root, "/notes/a.org")
	require.NoError(t, err)
	assert.Equal(t, "notes/a.org", got)

	got, err = RelativePath(root, root+"/../a.org")
	require.NoError(t, err)
	assert.Equal(t, "a.org", got)

	for _, uri := range []string{"", root + "/", "file:///elsewhere/a.org"} {
		_, err := RelativePath(root, uri)
		assert.ErrorIs(t, err, ErrConfiguration, uri)
	}
}
