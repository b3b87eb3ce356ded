// Package installer orchestrates a full run: resolve the install
// target, establish a usable credential, fetch the source, install the
// manifest, and hand off to the privileged setup step. It is the one
// place that decides which failures are recoverable and how terminal
// failures are presented.
package installer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/morphiens/scanner-cli-installer/pkg/config"
	"github.com/morphiens/scanner-cli-installer/pkg/credential"
	"github.com/morphiens/scanner-cli-installer/pkg/elevate"
	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/fetch"
	"github.com/morphiens/scanner-cli-installer/pkg/identity"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
	"github.com/morphiens/scanner-cli-installer/pkg/manifest"
	"github.com/morphiens/scanner-cli-installer/pkg/probe"
	"github.com/morphiens/scanner-cli-installer/pkg/style"
	"github.com/morphiens/scanner-cli-installer/pkg/target"
)

const (
	// After the human confirms registration, the remote may take a
	// moment to recognize the key. The probe retries before the fetch
	// sequence restarts.
	recoveryProbeAttempts = 3
	recoveryProbeBackoff  = 2 * time.Second
)

// Driver runs the install end to end. Collaborators are fields so
// tests can substitute fakes; New wires the real implementations.
type Driver struct {
	cfg         *config.Config
	ictx        identity.Context
	skipHandoff bool

	cloner     fetch.Cloner
	newProber  func(credential.Credential) probe.Prober
	escalator  manifest.Escalator
	sudoCached func(context.Context) bool
	confirm    credential.ConfirmFunc
	display    credential.DisplayFunc
	handoff    func(context.Context, string) (int, error)
}

// New creates a driver with production wiring.
func New(cfg *config.Config, ictx identity.Context, skipHandoff bool) *Driver {
	d := &Driver{
		cfg:         cfg,
		ictx:        ictx,
		skipHandoff: skipHandoff,
	}
	d.newProber = func(cred credential.Credential) probe.Prober {
		return probe.NewSSHProber(cfg.Remote, cred)
	}
	d.escalator = elevate.NewSudoEscalator(ictx.Identity, ictx.Interactive)
	d.sudoCached = elevate.NonInteractiveAuthorized
	d.confirm = style.Confirm
	d.display = style.ShowPublicKey(cfg.Remote.Host)
	d.handoff = elevate.NewHandoff(ictx, cfg.Install.SetupScript).Run
	return d
}

// keyedCloner builds the shell cloner lazily so a credential
// provisioned mid-run is used by the restarted fetch sequence.
type keyedCloner struct {
	keyPath string
}

func (c *keyedCloner) Clone(ctx context.Context, url, branch, destDir string) error {
	return fetch.NewShellCloner(c.keyPath).Clone(ctx, url, branch, destDir)
}

// Run performs the install. The returned int is the process exit code:
// 0 on success, the setup step's own code after handoff, 1 on failure.
// Terminal failures are rendered before returning.
func (d *Driver) Run(ctx context.Context) (int, error) {
	logger := logging.GetLogger("installer")
	ictx := d.ictx

	logger.Info().
		Str("user", ictx.Identity.Name).
		Bool("interactive", ictx.Interactive).
		Bool("elevated", ictx.Elevated).
		Msg("Starting install")

	code, err := d.run(ctx, logger)
	if err != nil {
		style.RenderFailure(err, d.cfg.Remote.Host)
		return 1, err
	}
	return code, nil
}

func (d *Driver) run(ctx context.Context, logger zerolog.Logger) (int, error) {
	ictx := d.ictx

	canElevate := ictx.Elevated || ictx.Interactive || d.sudoCached(ctx)
	tgt, err := target.NewResolver(d.cfg.CandidateBaseDirs(), d.cfg.Install.DirName, canElevate).Resolve()
	if err != nil {
		return 0, err
	}
	logger.Debug().
		Str("path", tgt.Path).
		Bool("elevatedWrite", tgt.RequiresElevatedWrite).
		Msg("Resolved install target")

	store := credential.NewStore(ictx.Identity)
	cred := store.Discover()

	// Without a terminal nobody can register a fresh key with the
	// remote, so an absent credential is terminal before any network
	// activity.
	if !cred.Exists() && !ictx.Interactive {
		return 0, errors.New(errors.ErrAuthUnavailable,
			"no ssh credential found and no terminal available to provision one")
	}

	sshVerified := false
	if cred.Exists() {
		sshVerified = d.newProber(cred).Probe(ctx) == probe.Verified
		logger.Info().Bool("verified", sshVerified).Msg("Probed key authentication")
	}

	kc := &keyedCloner{keyPath: cred.PrivatePath}
	cloner := d.cloner
	if cloner == nil {
		cloner = kc
	}

	var recovery fetch.RecoveryFunc
	if ictx.Interactive {
		recovery = func(ctx context.Context) (bool, error) {
			prov := credential.NewProvisioner(store, ictx.Identity, d.display, d.confirm)
			newCred, err := prov.Provision(ctx)
			if err != nil {
				return false, err
			}
			kc.keyPath = newCred.PrivatePath
			verified := probe.AwaitVerified(ctx, d.newProber(newCred),
				recoveryProbeAttempts, recoveryProbeBackoff) == probe.Verified
			return verified, nil
		}
	}

	fetcher := fetch.NewFetcher(d.cfg.Remote, cloner, sshVerified, ictx.Interactive, recovery)
	res, err := fetcher.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	defer res.Cleanup()

	ins := manifest.NewInstaller(d.cfg.Remote.Subdir, d.escalator)
	installedPath, err := ins.Install(ctx, res.CloneDir, tgt, manifest.Manifest(d.cfg.Manifest))
	if err != nil {
		return 0, err
	}
	style.RenderSuccess(installedPath)

	if d.skipHandoff {
		logger.Info().Msg("Skipping setup handoff")
		return 0, nil
	}
	return d.handoff(ctx, installedPath)
}
