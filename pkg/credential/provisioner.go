package credential

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/identity"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

// DefaultPropagationDelay is the fixed wait after the human confirms
// registration, allowing the remote side to propagate the new key.
const DefaultPropagationDelay = 3 * time.Second

// ConfirmFunc asks the human a yes/no question. It blocks until
// answered; only reachable when the run is interactive.
type ConfirmFunc func(prompt string) (bool, error)

// DisplayFunc shows the public key and registration instructions.
type DisplayFunc func(publicKey string)

// Provisioner drives the interactive flow that produces a registered
// credential: generate if absent, show the public half, wait for the
// human to register it out of band, then let the caller re-probe.
type Provisioner struct {
	store   *Store
	ident   identity.Identity
	confirm ConfirmFunc
	display DisplayFunc

	// PropagationDelay overrides DefaultPropagationDelay; tests set it
	// to zero.
	PropagationDelay time.Duration
}

// NewProvisioner wires the interactive provisioning flow.
func NewProvisioner(store *Store, ident identity.Identity, display DisplayFunc, confirm ConfirmFunc) *Provisioner {
	return &Provisioner{
		store:            store,
		ident:            ident,
		confirm:          confirm,
		display:          display,
		PropagationDelay: DefaultPropagationDelay,
	}
}

// Provision ensures a credential exists and has been acknowledged as
// registered with the remote service. Declining the acknowledgment is
// AUTH_UNAVAILABLE: without registration the key cannot work, and
// there is nothing further to retry.
func (p *Provisioner) Provision(ctx context.Context) (Credential, error) {
	logger := logging.GetLogger("provisioner")

	cred := p.store.Discover()
	if !cred.Exists() {
		generated, err := p.store.Generate(ctx)
		if err != nil {
			return Credential{}, err
		}
		cred = generated
	}

	if err := p.store.FixPermissions(cred); err != nil {
		return Credential{}, err
	}

	publicKey, err := cred.PublicKey()
	if err != nil {
		return Credential{}, err
	}
	p.display(publicKey)

	ok, err := p.confirm("Has the key above been added to the remote service?")
	if err != nil {
		return Credential{}, errors.Wrap(err, errors.ErrAuthUnavailable, "registration prompt failed")
	}
	if !ok {
		return Credential{}, errors.New(errors.ErrAuthUnavailable, "key registration was not acknowledged")
	}

	// Best effort: a missing or unreachable agent must not fail the
	// provisioning flow.
	if err := registerWithAgent(ctx, cred); err != nil {
		logger.Warn().Err(err).Msg("Could not register key with ssh agent")
	}

	if p.PropagationDelay > 0 {
		logger.Debug().Dur("delay", p.PropagationDelay).Msg("Waiting for remote-side propagation")
		select {
		case <-time.After(p.PropagationDelay):
		case <-ctx.Done():
			return Credential{}, errors.Wrap(ctx.Err(), errors.ErrAuthUnavailable, "interrupted while waiting for propagation")
		}
	}

	return cred, nil
}

func registerWithAgent(ctx context.Context, cred Credential) error {
	logging.LogCommand("ssh-add", []string{cred.PrivatePath})
	cmd := exec.CommandContext(ctx, "ssh-add", cred.PrivatePath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "ssh-add: %s", strings.TrimSpace(string(output)))
	}
	return nil
}
