package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".docsync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.yaml")
	DefaultJournalPath = filepath.Join(DefaultConfigDir, "journal.db")
	DefaultStoreDir    = filepath.Join(DefaultConfigDir, "store")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "docsync.log")
)

const (
	DefaultRemoteName  = "origin"
	DefaultBranch      = "master"
	DefaultAuthorName  = "docsync"
	DefaultAuthorEmail = "docsync@localhost"
)

var (
	ErrNoBackends     = errors.New("no backends configured")
	ErrDuplicateID    = errors.New("duplicate backend id")
	ErrInvalidID      = errors.New("backend id must be positive")
	ErrInvalidKind    = errors.New("invalid backend kind")
	ErrInvalidURL     = errors.New("invalid backend url")
	ErrInvalidGitPath = errors.New("invalid git local path")
)

// Config is the resolved application configuration.
type Config struct {
	SubfolderSupport bool            `json:"subfolder_support" mapstructure:"subfolder_support" yaml:"subfolder_support"`
	JournalPath      string          `json:"journal_path" mapstructure:"journal_path" yaml:"journal_path"`
	StoreDir         string          `json:"store_dir" mapstructure:"store_dir" yaml:"store_dir"`
	LogFile          string          `json:"log_file" mapstructure:"log_file" yaml:"log_file"`
	Backends         []BackendConfig `json:"backends" mapstructure:"backends" yaml:"backends"`
	Path             string          `json:"-" mapstructure:"-" yaml:"-"`
}

// BackendConfig describes one backend. It is read only when the backend is
// opened.
type BackendConfig struct {
	ID    int64     `json:"id" mapstructure:"id" yaml:"id"`
	Kind  repo.Kind `json:"kind" mapstructure:"kind" yaml:"kind"`
	URL   string    `json:"url" mapstructure:"url" yaml:"url"`
	Wipe  bool      `json:"wipe,omitempty" mapstructure:"wipe" yaml:"wipe,omitempty"`
	Clone bool      `json:"clone,omitempty" mapstructure:"clone" yaml:"clone,omitempty"`
	Git   GitConfig `json:"git,omitempty" mapstructure:"git" yaml:"git,omitempty"`
}

// GitConfig configures a git backend. URL in the enclosing BackendConfig is
// the remote.
type GitConfig struct {
	LocalPath   string  `json:"local_path" mapstructure:"local_path" yaml:"local_path"`
	RemoteName  string  `json:"remote_name,omitempty" mapstructure:"remote_name" yaml:"remote_name,omitempty"`
	Branch      string  `json:"branch,omitempty" mapstructure:"branch" yaml:"branch,omitempty"`
	AuthorName  string  `json:"author_name,omitempty" mapstructure:"author_name" yaml:"author_name,omitempty"`
	AuthorEmail string  `json:"author_email,omitempty" mapstructure:"author_email" yaml:"author_email,omitempty"`
	Auth        GitAuth `json:"auth,omitempty" mapstructure:"auth" yaml:"auth,omitempty"`
}

// GitAuth holds transport credentials. Token wins over SSH key when both
// are set.
type GitAuth struct {
	Username         string `json:"username,omitempty" mapstructure:"username" yaml:"username,omitempty"`
	Token            string `json:"token,omitempty" mapstructure:"token" yaml:"token,omitempty"`
	SSHKeyPath       string `json:"ssh_key_path,omitempty" mapstructure:"ssh_key_path" yaml:"ssh_key_path,omitempty"`
	SSHKeyPassphrase string `json:"ssh_key_passphrase,omitempty" mapstructure:"ssh_key_passphrase" yaml:"ssh_key_passphrase,omitempty"`
}

// Validate normalizes paths, fills defaults and checks every backend.
func (c *Config) Validate() error {
	var err error

	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}
	if c.JournalPath, err = utils.ResolvePath(c.JournalPath); err != nil {
		return fmt.Errorf("journal path: %w", err)
	}

	if c.StoreDir == "" {
		c.StoreDir = DefaultStoreDir
	}
	if c.StoreDir, err = utils.ResolvePath(c.StoreDir); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}

	if c.LogFile == "" {
		c.LogFile = DefaultLogFilePath
	}
	if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
		return fmt.Errorf("log file: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if len(c.Backends) == 0 {
		return ErrNoBackends
	}

	seen := make(map[int64]struct{}, len(c.Backends))
	for i := range c.Backends {
		b := &c.Backends[i]
		if err := b.Validate(); err != nil {
			return fmt.Errorf("backend %d: %w", b.ID, err)
		}
		if _, ok := seen[b.ID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateID, b.ID)
		}
		seen[b.ID] = struct{}{}
	}

	return nil
}

// Backend looks up a backend by id.
func (c *Config) Backend(id int64) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return BackendConfig{}, false
}

// Validate checks a single backend and fills its defaults.
func (b *BackendConfig) Validate() error {
	if b.ID <= 0 {
		return ErrInvalidID
	}

	b.Kind = repo.Kind(strings.ToLower(string(b.Kind)))
	if !b.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, b.Kind)
	}

	switch b.Kind {
	case repo.KindDirectory:
		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme != repo.FileScheme || !filepath.IsAbs(filepath.FromSlash(u.Path)) {
			return fmt.Errorf("%w: %q must be file:///absolute/path", ErrInvalidURL, b.URL)
		}
	case repo.KindGit:
		if b.URL == "" {
			return fmt.Errorf("%w: remote url is required", ErrInvalidURL)
		}
		if b.Git.LocalPath == "" {
			return fmt.Errorf("%w: local path is required", ErrInvalidGitPath)
		}
		localPath, err := utils.ResolvePath(b.Git.LocalPath)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidGitPath, err)
		}
		b.Git.LocalPath = localPath
		b.Git.ApplyDefaults()
	}

	return nil
}

// ApplyDefaults fills unset fields with the package defaults.
func (g *GitConfig) ApplyDefaults() {
	if g.RemoteName == "" {
		g.RemoteName = DefaultRemoteName
	}
	if g.Branch == "" {
		g.Branch = DefaultBranch
	}
	if g.AuthorName == "" {
		g.AuthorName = DefaultAuthorName
	}
	if g.AuthorEmail == "" {
		g.AuthorEmail = DefaultAuthorEmail
	}
}

// Masked returns a copy safe for printing.
func (c Config) Masked() Config {
	out := c
	out.Backends = make([]BackendConfig, len(c.Backends))
	for i, b := range c.Backends {
		b.Git.Auth.Token = utils.MaskSecret(b.Git.Auth.Token)
		b.Git.Auth.SSHKeyPassphrase = utils.MaskSecret(b.Git.Auth.SSHKeyPassphrase)
		out.Backends[i] = b
	}
	return out
}
