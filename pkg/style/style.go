// Package style renders the installer's terminal output: the
// public-key registration banner, the fetch attempt ledger, and
// failure messages with remediation hints.
package style

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/fetch"
)

// Confirm asks a yes/no question on the terminal.
func Confirm(prompt string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.Show(prompt)
}

// ShowPublicKey prints the public half of a freshly provisioned
// credential together with registration instructions.
func ShowPublicKey(host string) func(publicKey string) {
	return func(publicKey string) {
		pterm.DefaultBox.
			WithTitle("Register this public key").
			Println(publicKey)
		pterm.Info.Printfln("Add the key above to your account on %s, then confirm below.", host)
	}
}

// RenderLedger prints the fetch attempt ledger as a table.
func RenderLedger(attempts []fetch.Attempt) {
	if len(attempts) == 0 {
		return
	}

	data := pterm.TableData{{"Transport", "Branch", "Outcome"}}
	for _, a := range attempts {
		outcome := "success"
		if a.Failed() {
			outcome = a.Err
		}
		data = append(data, []string{string(a.Transport), a.Branch, outcome})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		// Rendering is cosmetic; fall back to plain output.
		for _, a := range attempts {
			fmt.Printf("%s %s: %s\n", a.Transport, a.Branch, a.Err)
		}
	}
}

// RenderFailure prints a terminal failure with its remediation hint.
func RenderFailure(err error, host string) {
	pterm.Error.Println(err.Error())

	if hint := remediation(errors.CodeOf(err), host); hint != "" {
		pterm.Info.Println(hint)
	}

	if attempts := fetch.LedgerFrom(err); len(attempts) > 0 {
		RenderLedger(attempts)
	}
}

// RenderSuccess prints the final success message.
func RenderSuccess(installedPath string) {
	pterm.Success.Printfln("Scanner files installed to %s", installedPath)
}

func remediation(code errors.ErrorCode, host string) string {
	switch code {
	case errors.ErrAuthUnavailable:
		return fmt.Sprintf("Register an ssh public key with your account on %s, or re-run from an interactive terminal.", host)
	case errors.ErrFetchFailed:
		return "Check network connectivity and that your key or account has access to the repository."
	case errors.ErrDirectoryUnavailable:
		return "Re-run with --target pointing at a writable directory."
	case errors.ErrElevationRequired:
		return "Re-run from an interactive terminal, or pre-authorize sudo for this user."
	default:
		return ""
	}
}
