// Package identity builds the immutable execution context for one
// installer run. Every component receives this value instead of
// reading environment state on its own, so that elevation never
// silently relocates credentials to the wrong home directory.
package identity

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/morphiens/scanner-cli-installer/pkg/errors"
)

// Identity is the effective acting user, which under sudo is the
// invoking user rather than root.
type Identity struct {
	Name    string
	HomeDir string
}

// SSHDir returns the identity's ssh credential directory.
func (i Identity) SSHDir() string {
	return filepath.Join(i.HomeDir, ".ssh")
}

// Context is the execution context for a run. It is constructed once
// in cmd and never mutated.
type Context struct {
	Identity Identity

	// Interactive reports whether both stdin and stdout are attached
	// to a terminal, i.e. a human can be prompted.
	Interactive bool

	// Elevated reports whether the process already runs as root.
	Elevated bool
}

// CurrentContext resolves the execution context from the process
// environment. When running under sudo, the acting identity is the
// invoking SUDO_USER, looked up so that its real home directory is
// used for credential material.
func CurrentContext() (Context, error) {
	ident, err := currentIdentity()
	if err != nil {
		return Context{}, err
	}

	return Context{
		Identity:    ident,
		Interactive: stdinIsTerminal() && stdoutIsTerminal(),
		Elevated:    os.Geteuid() == 0,
	}, nil
}

func currentIdentity() (Identity, error) {
	if os.Geteuid() == 0 {
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
			u, err := user.Lookup(sudoUser)
			if err == nil {
				return Identity{Name: u.Username, HomeDir: u.HomeDir}, nil
			}
			// Fall through to the process user when the lookup fails;
			// a stale SUDO_USER must not abort the run.
		}
	}

	u, err := user.Current()
	if err != nil {
		// user.Current can fail in minimal environments (no passwd
		// entry); HOME and USER are the next best source.
		home, herr := os.UserHomeDir()
		if herr != nil {
			return Identity{}, errors.Wrap(err, errors.ErrInternal, "cannot determine acting user")
		}
		return Identity{Name: os.Getenv("USER"), HomeDir: home}, nil
	}
	return Identity{Name: u.Username, HomeDir: u.HomeDir}, nil
}

func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
