package gitsync

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/openmined/docsync/internal/config"
)

// AuthProvider is the transport injection point. Method returns nil when the
// remote needs no credentials.
type AuthProvider interface {
	Method(remoteURL string) (transport.AuthMethod, error)
}

// NoAuth never supplies credentials. Local and anonymous remotes use it.
type NoAuth struct{}

func (NoAuth) Method(string) (transport.AuthMethod, error) {
	return nil, nil
}

// HTTPSAuth authenticates https remotes with basic auth.
type HTTPSAuth struct {
	auth *http.BasicAuth
}

// NewHTTPSAuth creates basic auth credentials. Providers that take the token
// as the password get a placeholder username when none is given.
func NewHTTPSAuth(username, token string) *HTTPSAuth {
	if username == "" {
		username = "token"
	}
	return &HTTPSAuth{auth: &http.BasicAuth{Username: username, Password: token}}
}

func (p *HTTPSAuth) Method(remoteURL string) (transport.AuthMethod, error) {
	if isSSHURL(remoteURL) {
		return nil, nil
	}
	u, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, nil
	}
	return p.auth, nil
}

// SSHKeyAuth authenticates ssh remotes with a private key file.
type SSHKeyAuth struct {
	KeyPath    string
	Passphrase string
	Username   string
}

func NewSSHKeyAuth(keyPath, passphrase string) *SSHKeyAuth {
	return &SSHKeyAuth{KeyPath: keyPath, Passphrase: passphrase, Username: "git"}
}

func (p *SSHKeyAuth) Method(remoteURL string) (transport.AuthMethod, error) {
	if !isSSHURL(remoteURL) {
		return nil, nil
	}
	if _, err := os.Stat(p.KeyPath); err != nil {
		return nil, fmt.Errorf("ssh private key %s: %w", p.KeyPath, err)
	}
	auth, err := ssh.NewPublicKeysFromFile(p.Username, p.KeyPath, p.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("load ssh key: %w", err)
	}
	return auth, nil
}

func isSSHURL(remoteURL string) bool {
	// scp-like git@host:path
	if !strings.Contains(remoteURL, "://") && strings.Contains(remoteURL, "@") && strings.Contains(remoteURL, ":") {
		return true
	}
	u, err := url.Parse(remoteURL)
	if err != nil {
		return false
	}
	return u.Scheme == "ssh" || u.Scheme == "git+ssh"
}

// AuthFromConfig picks a provider for the configured credentials. A token
// wins over an ssh key.
func AuthFromConfig(auth config.GitAuth) AuthProvider {
	switch {
	case auth.Token != "":
		return NewHTTPSAuth(auth.Username, auth.Token)
	case auth.SSHKeyPath != "":
		p := NewSSHKeyAuth(auth.SSHKeyPath, auth.SSHKeyPassphrase)
		if auth.Username != "" {
			p.Username = auth.Username
		}
		return p
	default:
		return NoAuth{}
	}
}
