// pkg/elevate/elevate_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Stub sudo on PATH, temp filesystem
// PURPOSE: Test elevated directory creation and handoff exit-code
// propagation

package elevate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	installerrors "github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/identity"
	"github.com/morphiens/scanner-cli-installer/pkg/testutil"
)

// passthroughSudo executes its arguments directly, skipping sudo flags.
const passthroughSudo = `
while [ "$1" = "-n" ]; do shift; done
exec "$@"
`

func TestNonInteractiveAuthorized(t *testing.T) {
	bin := testutil.StubBinDir(t)
	testutil.WriteStub(t, bin, "sudo", passthroughSudo)
	assert.True(t, NonInteractiveAuthorized(context.Background()))

	testutil.WriteStub(t, bin, "sudo", "exit 1")
	assert.False(t, NonInteractiveAuthorized(context.Background()))
}

func TestMkdirOwned(t *testing.T) {
	bin := testutil.StubBinDir(t)
	testutil.WriteStub(t, bin, "sudo", passthroughSudo)
	// chown needs to be a no-op: the stub environment has no root.
	testutil.WriteStub(t, bin, "chown", "exit 0")

	path := filepath.Join(t.TempDir(), "opt", "scanner")
	esc := NewSudoEscalator(identity.Identity{Name: "tester"}, false)
	require.NoError(t, esc.MkdirOwned(context.Background(), path))
	assert.DirExists(t, path)
}

func TestMkdirOwnedRefused(t *testing.T) {
	bin := testutil.StubBinDir(t)
	testutil.WriteStub(t, bin, "sudo", `echo "sudo: a password is required" >&2; exit 1`)

	esc := NewSudoEscalator(identity.Identity{Name: "tester"}, false)
	err := esc.MkdirOwned(context.Background(), filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrDirCreate))
	// The refusal text arrives on stderr and must survive into the error.
	assert.Contains(t, err.Error(), "a password is required")
}

func writeSetupScript(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.sh"), []byte(script), 0755))
}

func TestHandoffElevatedRunsDirectly(t *testing.T) {
	installed := filepath.Join(t.TempDir(), "scanner")
	marker := filepath.Join(t.TempDir(), "ran")
	writeSetupScript(t, installed, `echo "$1" > `+marker)

	h := NewHandoff(identity.Context{Elevated: true}, "setup.sh")
	code, err := h.Run(context.Background(), installed)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, installed+"\n", string(data))
}

func TestHandoffPropagatesExitCode(t *testing.T) {
	installed := filepath.Join(t.TempDir(), "scanner")
	writeSetupScript(t, installed, "exit 7")

	h := NewHandoff(identity.Context{Elevated: true}, "setup.sh")
	code, err := h.Run(context.Background(), installed)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestHandoffViaCachedSudo(t *testing.T) {
	bin := testutil.StubBinDir(t)
	testutil.WriteStub(t, bin, "sudo", passthroughSudo)

	installed := filepath.Join(t.TempDir(), "scanner")
	writeSetupScript(t, installed, "exit 3")

	h := NewHandoff(identity.Context{Elevated: false, Interactive: false}, "setup.sh")
	code, err := h.Run(context.Background(), installed)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestHandoffNonInteractiveWithoutSudoFails(t *testing.T) {
	bin := testutil.StubBinDir(t)
	// sudo -n true fails: no cached credential.
	testutil.WriteStub(t, bin, "sudo", "exit 1")

	installed := filepath.Join(t.TempDir(), "scanner")
	writeSetupScript(t, installed, "exit 0")

	h := NewHandoff(identity.Context{Elevated: false, Interactive: false}, "setup.sh")
	_, err := h.Run(context.Background(), installed)
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrElevationRequired))
}
