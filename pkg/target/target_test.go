// pkg/target/target_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Temp filesystem
// PURPOSE: Test install-target resolution priority and elevation flag

package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	installerrors "github.com/morphiens/scanner-cli-installer/pkg/errors"
)

func TestResolveSystemCandidateWritable(t *testing.T) {
	system := t.TempDir()
	user := t.TempDir()

	r := NewResolver([]string{system, user}, "scanner", false)
	target, err := r.Resolve()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(system, "scanner"), target.Path)
	assert.True(t, target.IsWritable)
	assert.False(t, target.RequiresElevatedWrite)
	assert.Equal(t, filepath.Join(user, "scanner"), target.FallbackPath)
}

func TestResolveCreatesMissingBase(t *testing.T) {
	root := t.TempDir()
	system := filepath.Join(root, "opt", "morphiens")

	r := NewResolver([]string{system}, "scanner", false)
	target, err := r.Resolve()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(system, "scanner"), target.Path)
	// The parent is created, the install dir itself is not.
	assert.DirExists(t, system)
	assert.NoDirExists(t, target.Path)
}

func TestResolveUnwritableSystemPrefersElevation(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are meaningless as root")
	}

	system := t.TempDir()
	require.NoError(t, os.Chmod(system, 0555))
	t.Cleanup(func() { _ = os.Chmod(system, 0755) })
	user := t.TempDir()

	r := NewResolver([]string{system, user}, "scanner", true)
	target, err := r.Resolve()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(system, "scanner"), target.Path)
	assert.True(t, target.RequiresElevatedWrite)
	assert.Equal(t, filepath.Join(user, "scanner"), target.FallbackPath)
}

func TestResolveUnwritableSystemFallsBackWithoutElevation(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are meaningless as root")
	}

	system := t.TempDir()
	require.NoError(t, os.Chmod(system, 0555))
	t.Cleanup(func() { _ = os.Chmod(system, 0755) })
	user := t.TempDir()

	r := NewResolver([]string{system, user}, "scanner", false)
	target, err := r.Resolve()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(user, "scanner"), target.Path)
	assert.True(t, target.IsWritable)
	assert.False(t, target.RequiresElevatedWrite)
}

func TestResolveNothingUsable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are meaningless as root")
	}

	locked := t.TempDir()
	require.NoError(t, os.Chmod(locked, 0555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })
	// A child of the locked dir cannot be created either.
	uncreatable := filepath.Join(locked, "sub")

	r := NewResolver([]string{locked, uncreatable}, "scanner", false)
	_, err := r.Resolve()
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrDirectoryUnavailable))
}

func TestResolveNoCandidates(t *testing.T) {
	r := NewResolver(nil, "scanner", false)
	_, err := r.Resolve()
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrInvalidInput))
}

func TestResolveFileAsCandidateIsSkipped(t *testing.T) {
	dir := t.TempDir()
	notADir := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0644))
	user := t.TempDir()

	r := NewResolver([]string{notADir, user}, "scanner", false)
	target, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(user, "scanner"), target.Path)
}
