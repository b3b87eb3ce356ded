// Package credential manages key-based credential material for the
// acting identity: discovery of existing keypairs, generation of new
// ones, permission fixing, and the interactive provisioning flow that
// waits for out-of-band registration with the remote service.
package credential

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/identity"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

// Kind is the keypair algorithm.
type Kind string

const (
	KindEd25519 Kind = "ed25519"
	KindRSA     Kind = "rsa"
)

// State is the credential lifecycle state.
type State string

const (
	StateAbsent            State = "absent"
	StatePresentUnverified State = "present-unverified"
	StatePresentVerified   State = "present-verified"
)

// Credential is a key-based credential scoped to one identity's home.
// Credentials are never deleted by the installer.
type Credential struct {
	Kind        Kind
	PrivatePath string
	PublicPath  string
	State       State
}

// Exists reports whether credential material is present on disk.
func (c Credential) Exists() bool {
	return c.State != StateAbsent && c.PrivatePath != ""
}

// PublicKey returns the contents of the public half.
func (c Credential) PublicKey() (string, error) {
	data, err := os.ReadFile(c.PublicPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrFileAccess, "cannot read public key")
	}
	return strings.TrimSpace(string(data)), nil
}

// Store inspects and creates credential material for one identity.
type Store struct {
	ident identity.Identity
}

// NewStore creates a store scoped to the identity's home directory.
func NewStore(ident identity.Identity) *Store {
	return &Store{ident: ident}
}

// keyCandidates lists known key filenames in preference order.
var keyCandidates = []struct {
	kind Kind
	name string
}{
	{KindEd25519, "id_ed25519"},
	{KindRSA, "id_rsa"},
}

// Discover finds an existing keypair under the identity's ssh dir.
// A never-probed discovery is always present-unverified; verification
// is the prober's job.
func (s *Store) Discover() Credential {
	logger := logging.GetLogger("credential")
	sshDir := s.ident.SSHDir()

	for _, cand := range keyCandidates {
		private := filepath.Join(sshDir, cand.name)
		public := private + ".pub"
		if fileExists(private) && fileExists(public) {
			logger.Debug().Str("key", private).Msg("Found existing credential")
			return Credential{
				Kind:        cand.kind,
				PrivatePath: private,
				PublicPath:  public,
				State:       StatePresentUnverified,
			}
		}
	}

	return Credential{State: StateAbsent}
}

// Generate creates a new ed25519 keypair with an empty passphrase in
// the identity's ssh dir.
func (s *Store) Generate(ctx context.Context) (Credential, error) {
	logger := logging.GetLogger("credential")
	sshDir := s.ident.SSHDir()

	if err := os.MkdirAll(sshDir, 0700); err != nil {
		return Credential{}, errors.Wrap(err, errors.ErrCredentialGeneration, "cannot create ssh directory")
	}

	private := filepath.Join(sshDir, "id_ed25519")
	comment := fmt.Sprintf("%s@scanner-install", s.ident.Name)

	args := []string{"-t", "ed25519", "-N", "", "-C", comment, "-f", private}
	logging.LogCommand("ssh-keygen", args)
	cmd := exec.CommandContext(ctx, "ssh-keygen", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return Credential{}, errors.Wrapf(err, errors.ErrCredentialGeneration,
			"ssh-keygen failed: %s", strings.TrimSpace(string(output)))
	}

	cred := Credential{
		Kind:        KindEd25519,
		PrivatePath: private,
		PublicPath:  private + ".pub",
		State:       StatePresentUnverified,
	}
	logger.Info().Str("key", private).Msg("Generated new credential")
	return cred, nil
}

// FixPermissions enforces the required modes: owner-only ssh dir and
// private half, world-readable public half.
func (s *Store) FixPermissions(cred Credential) error {
	if !cred.Exists() {
		return nil
	}
	if err := os.Chmod(s.ident.SSHDir(), 0700); err != nil {
		return errors.Wrap(err, errors.ErrFileAccess, "cannot restrict ssh directory")
	}
	if err := os.Chmod(cred.PrivatePath, 0600); err != nil {
		return errors.Wrap(err, errors.ErrFileAccess, "cannot restrict private key")
	}
	if err := os.Chmod(cred.PublicPath, 0644); err != nil {
		return errors.Wrap(err, errors.ErrFileAccess, "cannot set public key mode")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
