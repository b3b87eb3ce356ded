package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/morphiens/scanner-cli-installer/internal/version"
	"github.com/morphiens/scanner-cli-installer/pkg/config"
	"github.com/morphiens/scanner-cli-installer/pkg/identity"
	"github.com/morphiens/scanner-cli-installer/pkg/installer"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

var (
	verbosity      int
	configPath     string
	branch         string
	targetBase     string
	nonInteractive bool
	skipHandoff    bool

	// exitCode carries the setup step's exit status out of the cobra
	// run so main can propagate it.
	exitCode int

	rootCmd = &cobra.Command{
		Use:   "scanner-install",
		Short: "Fetch and install the scanner CLI from its private repository",
		Long: `scanner-install bootstraps the scanner CLI onto this machine: it
resolves a writable install location, establishes a usable ssh
credential for the private repository, fetches the source, copies the
released file set into place, and hands off to the privileged setup
step.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ictx, err := setup()
			if err != nil {
				return err
			}

			code, err := installer.New(cfg, ictx, skipHandoff).Run(cmd.Context())
			if err != nil {
				exitCode = code
				return err
			}
			exitCode = code
			return nil
		},
	}
)

// setup loads configuration, applies flag overrides, and resolves the
// execution context.
func setup() (*config.Config, identity.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, identity.Context{}, err
	}
	if branch != "" {
		cfg.Remote.PrimaryBranch = branch
	}
	if targetBase != "" {
		cfg.Install.SystemBase = targetBase
		cfg.Install.UserBase = targetBase
	}

	ictx, err := identity.CurrentContext()
	if err != nil {
		return nil, identity.Context{}, err
	}
	if nonInteractive {
		ictx.Interactive = false
	}
	return cfg, ictx, nil
}

// Execute runs the root command. It is called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file overriding the built-in defaults (.toml or .yaml)")

	rootCmd.Flags().StringVar(&branch, "branch", "", "Fetch this branch instead of the configured primary")
	rootCmd.Flags().StringVar(&targetBase, "target", "", "Install under this base directory instead of the configured candidates")
	rootCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt, even when attached to a terminal")
	rootCmd.Flags().BoolVar(&skipHandoff, "skip-handoff", false, "Install the files but do not run the setup step")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(probeCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information for scanner-install`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scanner-install version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
