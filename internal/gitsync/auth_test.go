package gitsync

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/openmined/docsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFromConfig(t *testing.T) {
	assert.IsType(t, NoAuth{}, AuthFromConfig(config.GitAuth{}))
	assert.IsType(t, &HTTPSAuth{}, AuthFromConfig(config.GitAuth{Token: "tok", SSHKeyPath: "/key"}))

	p, ok := AuthFromConfig(config.GitAuth{SSHKeyPath: "/key", Username: "deploy"}).(*SSHKeyAuth)
	require.True(t, ok)
	assert.Equal(t, "deploy", p.Username)
	assert.Equal(t, "/key", p.KeyPath)
}

func TestHTTPSAuth_Method(t *testing.T) {
	p := NewHTTPSAuth("", "secret")

	m, err := p.Method("https://example.com/notes.git")
	require.NoError(t, err)
	basic, ok := m.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "token", basic.Username)
	assert.Equal(t, "secret", basic.Password)

	m, err = p.Method("git@example.com:notes.git")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSSHKeyAuth_Method(t *testing.T) {
	p := NewSSHKeyAuth("/does/not/exist", "")

	m, err := p.Method("https://example.com/notes.git")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = p.Method("git@example.com:notes.git")
	assert.Error(t, err)

	_, err = p.Method("ssh://git@example.com/notes.git")
	assert.Error(t, err)
}

func TestNoAuth_Method(t *testing.T) {
	m, err := NoAuth{}.Method("/tmp/remote")
	assert.NoError(t, err)
	assert.Nil(t, m)
}
