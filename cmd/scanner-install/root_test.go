// cmd/scanner-install/root_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Verify command wiring and flag overrides

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	err := rootCmd.Execute()
	assert.NoError(t, err)
}

func TestFlagsAreRegistered(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.Flags().Lookup("branch"))
	assert.NotNil(t, rootCmd.Flags().Lookup("target"))
	assert.NotNil(t, rootCmd.Flags().Lookup("non-interactive"))
	assert.NotNil(t, rootCmd.Flags().Lookup("skip-handoff"))
}

func TestSetupAppliesOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	branch = "release"
	targetBase = "/tmp/scanner-target"
	nonInteractive = true
	defer func() {
		branch = ""
		targetBase = ""
		nonInteractive = false
	}()

	cfg, ictx, err := setup()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Remote.PrimaryBranch)
	assert.Equal(t, "/tmp/scanner-target", cfg.Install.SystemBase)
	assert.Equal(t, "/tmp/scanner-target", cfg.Install.UserBase)
	assert.False(t, ictx.Interactive)
}
