package fetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

// Cloner performs one shallow, single-branch fetch of the remote into
// destDir.
type Cloner interface {
	Clone(ctx context.Context, url, branch, destDir string) error
}

// ShellCloner implements Cloner by shelling out to the git command.
type ShellCloner struct {
	sshKeyPath string
}

// NewShellCloner creates a cloner. sshKeyPath may be empty; it is only
// used for key-authenticated URLs.
func NewShellCloner(sshKeyPath string) *ShellCloner {
	return &ShellCloner{sshKeyPath: sshKeyPath}
}

// Clone runs a shallow single-branch clone. Prompts are disabled so a
// misconfigured credential fails instead of hanging a non-interactive
// run.
func (c *ShellCloner) Clone(ctx context.Context, url, branch, destDir string) error {
	args := []string{"clone", "--depth", "1", "--single-branch", "--branch", branch, url, destDir}
	logging.LogCommand("git", args)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if c.sshKeyPath != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		sshCmd := fmt.Sprintf("ssh -i %s -o BatchMode=yes -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyPath))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
