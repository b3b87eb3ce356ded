// Package config loads installer configuration: built-in defaults, an
// optional override file (TOML or YAML, chosen by extension), and
// SCANNER_INSTALL_* environment variables, in that precedence order.
package config

import (
	_ "embed"
	"errors"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	installerrors "github.com/morphiens/scanner-cli-installer/pkg/errors"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// EnvPrefix is the prefix for environment variable overrides, e.g.
// SCANNER_INSTALL_REMOTE_HOST overrides remote.host.
const EnvPrefix = "SCANNER_INSTALL_"

// Remote describes the one fixed remote project the installer fetches.
type Remote struct {
	Host          string `koanf:"host"`
	Owner         string `koanf:"owner"`
	Repo          string `koanf:"repo"`
	SSHUser       string `koanf:"ssh_user"`
	PrimaryBranch string `koanf:"primary_branch"`
	DefaultBranch string `koanf:"default_branch"`
	Subdir        string `koanf:"subdir"`

	// SSHURL and HTTPSURL override the derived clone URLs. Tests use
	// these to point both transports at a local repository.
	SSHURL   string `koanf:"ssh_url"`
	HTTPSURL string `koanf:"https_url"`
}

// Install describes where and what to install locally.
type Install struct {
	DirName     string `koanf:"dir_name"`
	SystemBase  string `koanf:"system_base"`
	UserBase    string `koanf:"user_base"`
	SetupScript string `koanf:"setup_script"`
}

// Config is the resolved installer configuration.
type Config struct {
	Remote   Remote   `koanf:"remote"`
	Install  Install  `koanf:"install"`
	Manifest []string `koanf:"manifest"`
}

// SSHCloneURL returns the key-authenticated clone URL.
func (r Remote) SSHCloneURL() string {
	if r.SSHURL != "" {
		return r.SSHURL
	}
	return r.SSHUser + "@" + r.Host + ":" + r.Owner + "/" + r.Repo + ".git"
}

// HTTPSCloneURL returns the credential-less clone URL.
func (r Remote) HTTPSCloneURL() string {
	if r.HTTPSURL != "" {
		return r.HTTPSURL
	}
	return "https://" + r.Host + "/" + r.Owner + "/" + r.Repo + ".git"
}

// SSHTarget returns the user@host endpoint probed for key auth.
func (r Remote) SSHTarget() string {
	return r.SSHUser + "@" + r.Host
}

// CandidateBaseDirs returns the priority-ordered install-target base
// directories: the system location first, then the per-user fallback.
func (c *Config) CandidateBaseDirs() []string {
	userBase := c.Install.UserBase
	if userBase == "" {
		userBase = filepath.Join(xdg.DataHome, "morphiens")
	}
	return []string{c.Install.SystemBase, userBase}
}

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Load builds the configuration. overridePath may be empty; when set,
// the file must exist and parse.
func Load(overridePath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, installerrors.Wrap(err, installerrors.ErrConfigParse, "failed to load built-in defaults")
	}

	if overridePath != "" {
		parser, err := parserFor(overridePath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(overridePath), parser); err != nil {
			return nil, installerrors.Wrapf(err, installerrors.ErrConfigLoad, "failed to load config from %s", overridePath)
		}
	}

	// SCANNER_INSTALL_REMOTE_PRIMARY_BRANCH -> remote.primary_branch
	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyTransform), nil); err != nil {
		return nil, installerrors.Wrap(err, installerrors.ErrConfigLoad, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, installerrors.Wrap(err, installerrors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeyTransform maps SCANNER_INSTALL_REMOTE_HOST to remote.host.
// Only the first underscore separates the section; the rest stay as
// part of the key (remote.primary_branch, install.dir_name).
func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, installerrors.Newf(installerrors.ErrInvalidInput, "unsupported config format: %s", filepath.Ext(path))
	}
}

func validate(cfg *Config) error {
	if cfg.Remote.Host == "" && cfg.Remote.SSHURL == "" {
		return installerrors.New(installerrors.ErrInvalidInput, "remote host is not configured")
	}
	if cfg.Remote.PrimaryBranch == "" || cfg.Remote.DefaultBranch == "" {
		return installerrors.New(installerrors.ErrInvalidInput, "remote branches are not configured")
	}
	if len(cfg.Manifest) == 0 {
		return installerrors.New(installerrors.ErrInvalidInput, "manifest is empty")
	}
	if cfg.Install.SystemBase == "" {
		return installerrors.New(installerrors.ErrInvalidInput, "install.system_base is not configured")
	}
	return nil
}
