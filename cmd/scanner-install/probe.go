package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morphiens/scanner-cli-installer/pkg/credential"
	"github.com/morphiens/scanner-cli-installer/pkg/probe"
)

// probeCmd checks key authentication against the remote without
// touching the filesystem, for diagnosing access problems.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check ssh key authentication against the remote",
	Long: `Discovers the acting user's ssh credential and attempts a
non-interactive authentication against the configured remote. Reports
whether the credential is recognized; no files are installed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ictx, err := setup()
		if err != nil {
			return err
		}

		cred := credential.NewStore(ictx.Identity).Discover()
		if !cred.Exists() {
			fmt.Printf("credential: absent (no keypair under %s)\n", ictx.Identity.SSHDir())
			fmt.Printf("result:     %s\n", probe.Unverified)
			return nil
		}

		fmt.Printf("credential: %s (%s)\n", cred.PrivatePath, cred.Kind)
		result := probe.NewSSHProber(cfg.Remote, cred).Probe(cmd.Context())
		fmt.Printf("remote:     %s\n", cfg.Remote.SSHTarget())
		fmt.Printf("result:     %s\n", result)
		return nil
	},
}
