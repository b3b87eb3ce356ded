// Package elevate handles the two places the installer touches
// elevated privileges: creating the system install directory and
// handing off to the downstream setup step. Elevation is obtained via
// sudo; it is only requested interactively when a human is present.
package elevate

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	installerrors "github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/identity"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

// NonInteractiveAuthorized reports whether sudo can be used without
// prompting (cached credential or NOPASSWD).
func NonInteractiveAuthorized(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "sudo", "-n", "true")
	return cmd.Run() == nil
}

// SudoEscalator creates directories via sudo and chowns them to the
// acting user so the unprivileged copy step can write into them.
type SudoEscalator struct {
	owner       string
	interactive bool
}

// NewSudoEscalator creates an escalator for the acting identity.
// interactive allows sudo to prompt for a password.
func NewSudoEscalator(ident identity.Identity, interactive bool) *SudoEscalator {
	return &SudoEscalator{owner: ident.Name, interactive: interactive}
}

// MkdirOwned creates path with elevated privileges and hands ownership
// to the acting user.
func (e *SudoEscalator) MkdirOwned(ctx context.Context, path string) error {
	if err := e.run(ctx, "mkdir", "-p", path); err != nil {
		return err
	}
	if e.owner == "" {
		return nil
	}
	return e.run(ctx, "chown", e.owner, path)
}

func (e *SudoEscalator) run(ctx context.Context, args ...string) error {
	sudoArgs := []string{}
	if !e.interactive {
		sudoArgs = append(sudoArgs, "-n")
	}
	sudoArgs = append(sudoArgs, args...)

	logging.LogCommand("sudo", sudoArgs)
	cmd := exec.CommandContext(ctx, "sudo", sudoArgs...)
	if e.interactive {
		// The password prompt and any failure text go straight to the
		// terminal.
		cmd.Stdin = os.Stdin
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return installerrors.Wrapf(err, installerrors.ErrDirCreate,
				"sudo %s failed", strings.Join(args, " "))
		}
		return nil
	}

	// sudo and mkdir report failures on stderr.
	if output, err := cmd.CombinedOutput(); err != nil {
		return installerrors.Wrapf(err, installerrors.ErrDirCreate,
			"sudo %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(output)))
	}
	return nil
}

// Handoff launches the downstream setup step with the privilege level
// required and propagates its exit code verbatim.
type Handoff struct {
	ctx         identity.Context
	setupScript string
}

// NewHandoff creates the handoff for the resolved execution context.
func NewHandoff(ctx identity.Context, setupScript string) *Handoff {
	return &Handoff{ctx: ctx, setupScript: setupScript}
}

// Run executes <installedPath>/<setupScript> with the installed path
// as its sole argument, elevating when the process is not already
// privileged. The returned int is the downstream exit code.
func (h *Handoff) Run(ctx context.Context, installedPath string) (int, error) {
	logger := logging.GetLogger("handoff")
	script := filepath.Join(installedPath, h.setupScript)

	var cmd *exec.Cmd
	switch {
	case h.ctx.Elevated:
		cmd = exec.CommandContext(ctx, script, installedPath)
	case NonInteractiveAuthorized(ctx):
		cmd = exec.CommandContext(ctx, "sudo", "-n", script, installedPath)
	case h.ctx.Interactive:
		cmd = exec.CommandContext(ctx, "sudo", script, installedPath)
	default:
		return 0, installerrors.New(installerrors.ErrElevationRequired,
			"setup requires elevated privileges and the run is not interactive")
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Info().Str("script", script).Msg("Handing off to setup")
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The downstream exit code is this process's exit code.
		return exitErr.ExitCode(), nil
	}
	return 0, installerrors.Wrap(err, installerrors.ErrInternal, "failed to launch setup step")
}
