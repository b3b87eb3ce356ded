// Package fetch drives the retry/fallback state machine that acquires
// the remote source tree. Candidates are tried in a fixed priority
// order across transport and branch; exhaustion may enter an
// interactive credential-recovery branch at most once per run.
package fetch

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/morphiens/scanner-cli-installer/pkg/config"
	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

// Transport selects the network protocol and credential mechanism.
type Transport string

const (
	TransportSSH   Transport = "ssh"
	TransportHTTPS Transport = "https"
)

// Attempt is one entry in the retry ledger. Diagnostics only; never
// persisted.
type Attempt struct {
	Transport Transport
	Branch    string
	Err       string
}

// Failed reports whether this attempt failed.
func (a Attempt) Failed() bool { return a.Err != "" }

// RecoveryFunc provisions a credential interactively and re-verifies
// it. It reports whether the key-based transport is now verified; an
// error aborts the fetch (e.g. the human declined registration).
type RecoveryFunc func(ctx context.Context) (bool, error)

// Result is a successful fetch: exactly one working clone on disk.
// Cleanup removes it and must be called on every exit path.
type Result struct {
	CloneDir string
	Attempts []Attempt
	Cleanup  func()
}

// Fetcher is the state machine. It owns the ephemeral working clone
// for its whole lifetime.
type Fetcher struct {
	remote      config.Remote
	cloner      Cloner
	sshVerified bool
	interactive bool
	recovery    RecoveryFunc
}

// NewFetcher creates the state machine. recovery may be nil; it is
// only consulted on interactive exhaustion when ssh never verified.
func NewFetcher(remote config.Remote, cloner Cloner, sshVerified, interactive bool, recovery RecoveryFunc) *Fetcher {
	return &Fetcher{
		remote:      remote,
		cloner:      cloner,
		sshVerified: sshVerified,
		interactive: interactive,
		recovery:    recovery,
	}
}

type candidate struct {
	transport Transport
	branch    string
}

// candidates returns the TRY order: the key-based transport with the
// primary then default branch, and unless that transport is verified,
// the credential-less transport with the same branch order.
func (f *Fetcher) candidates(sshVerified bool) []candidate {
	c := []candidate{
		{TransportSSH, f.remote.PrimaryBranch},
		{TransportSSH, f.remote.DefaultBranch},
	}
	if !sshVerified {
		c = append(c,
			candidate{TransportHTTPS, f.remote.PrimaryBranch},
			candidate{TransportHTTPS, f.remote.DefaultBranch},
		)
	}
	// A remote configured with identical branches collapses to one
	// candidate per transport.
	return dedupe(c)
}

func dedupe(in []candidate) []candidate {
	seen := make(map[candidate]bool, len(in))
	out := in[:0]
	for _, c := range in {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (f *Fetcher) urlFor(t Transport) string {
	if t == TransportSSH {
		return f.remote.SSHCloneURL()
	}
	return f.remote.HTTPSCloneURL()
}

// Fetch runs the state machine. On success exactly one working clone
// remains, owned by the returned Result; on any terminal failure no
// clone remains.
func (f *Fetcher) Fetch(ctx context.Context) (*Result, error) {
	logger := logging.GetLogger("fetch")

	var ledger []Attempt
	recovered := false
	verified := f.sshVerified

	for {
		for _, cand := range f.candidates(verified) {
			dir, err := os.MkdirTemp("", "scanner-install-*")
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrInternal, "cannot create working clone directory")
			}
			// os.MkdirTemp creates the directory; git clone wants to
			// create it itself.
			if err := os.Remove(dir); err != nil {
				return nil, errors.Wrap(err, errors.ErrInternal, "cannot prepare working clone directory")
			}

			logger.Info().
				Str("transport", string(cand.transport)).
				Str("branch", cand.branch).
				Msg("Trying fetch candidate")

			err = f.cloner.Clone(ctx, f.urlFor(cand.transport), cand.branch, dir)
			if err != nil {
				os.RemoveAll(dir)
				ledger = append(ledger, Attempt{Transport: cand.transport, Branch: cand.branch, Err: err.Error()})
				logger.Warn().
					Str("transport", string(cand.transport)).
					Str("branch", cand.branch).
					Err(err).
					Msg("Fetch candidate failed")
				continue
			}

			ledger = append(ledger, Attempt{Transport: cand.transport, Branch: cand.branch})
			logger.Info().Str("dir", dir).Msg("Fetch succeeded")
			return &Result{
				CloneDir: dir,
				Attempts: ledger,
				Cleanup:  func() { os.RemoveAll(dir) },
			}, nil
		}

		// Exhausted. The recovery branch is entered at most once, only
		// interactively, and only when ssh never verified.
		if recovered || verified || !f.interactive || f.recovery == nil {
			break
		}
		recovered = true
		logger.Info().Msg("All candidates exhausted, entering interactive credential recovery")

		nowVerified, err := f.recovery(ctx)
		if err != nil {
			return nil, attachLedger(err, ledger)
		}
		verified = nowVerified
	}

	err := errors.Newf(errors.ErrFetchFailed, "all fetch candidates exhausted after %d attempts", len(ledger))
	return nil, attachLedger(err, ledger)
}

// attachLedger records the attempt ledger on a structured error so the
// driver can render it.
func attachLedger(err error, ledger []Attempt) error {
	var ie *errors.InstallError
	if !stderrors.As(err, &ie) {
		ie = errors.Wrap(err, errors.ErrFetchFailed, "fetch failed")
	}
	return ie.WithDetail("attempts", ledger)
}

// LedgerFrom extracts the attempt ledger from a fetch error, if any.
func LedgerFrom(err error) []Attempt {
	var ie *errors.InstallError
	if !stderrors.As(err, &ie) {
		return nil
	}
	if attempts, ok := ie.Details["attempts"].([]Attempt); ok {
		return attempts
	}
	return nil
}
