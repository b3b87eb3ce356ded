// pkg/manifest/manifest_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Temp filesystem
// PURPOSE: Test manifest verification, atomic copying, and the
// elevated-creation fallback

package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	installerrors "github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/target"
)

var testManifest = Manifest{
	"setup.sh",
	"scanner.py",
	"requirements.txt",
	"config/default.yaml",
	"lib/common.sh",
}

// writeSource populates a fake clone with the given manifest entries
// under the scanner-cli subdir.
func writeSource(t *testing.T, entries []string) string {
	t.Helper()
	cloneDir := t.TempDir()
	for _, entry := range entries {
		full := filepath.Join(cloneDir, "scanner-cli", entry)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("content of "+entry+"\n"), 0644))
	}
	return cloneDir
}

func plainTarget(t *testing.T) target.InstallTarget {
	t.Helper()
	return target.InstallTarget{
		Path:       filepath.Join(t.TempDir(), "scanner"),
		IsWritable: true,
	}
}

func TestInstallCopiesAllFiles(t *testing.T) {
	cloneDir := writeSource(t, testManifest)
	tgt := plainTarget(t)

	ins := NewInstaller("scanner-cli", nil)
	dir, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.NoError(t, err)
	assert.Equal(t, tgt.Path, dir)

	for _, entry := range testManifest {
		data, err := os.ReadFile(filepath.Join(dir, entry))
		require.NoError(t, err, entry)
		assert.Equal(t, "content of "+entry+"\n", string(data))
	}
}

func TestInstallSetsExecutableBit(t *testing.T) {
	cloneDir := writeSource(t, testManifest)
	tgt := plainTarget(t)

	ins := NewInstaller("scanner-cli", nil)
	dir, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "setup.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111, "setup.sh should be executable")

	info, err = os.Stat(filepath.Join(dir, "requirements.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&0111, "requirements.txt should not be executable")
}

func TestInstallSourceSubtreeMissing(t *testing.T) {
	cloneDir := t.TempDir() // no scanner-cli subdir
	tgt := plainTarget(t)

	ins := NewInstaller("scanner-cli", nil)
	_, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrSourceSubtreeMissing))
}

func TestInstallMissingFourthFileCopiesNothing(t *testing.T) {
	// All entries except the fourth one.
	present := []string{"setup.sh", "scanner.py", "requirements.txt", "lib/common.sh"}
	cloneDir := writeSource(t, present)
	tgt := plainTarget(t)

	ins := NewInstaller("scanner-cli", nil)
	_, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.Error(t, err)

	assert.True(t, installerrors.IsCode(err, installerrors.ErrManifestFileMissing))
	assert.Contains(t, err.Error(), "config/default.yaml")

	// Files 1-3 must not be left in the target.
	assert.NoFileExists(t, filepath.Join(tgt.Path, "setup.sh"))
	assert.NoFileExists(t, filepath.Join(tgt.Path, "scanner.py"))
	assert.NoFileExists(t, filepath.Join(tgt.Path, "requirements.txt"))
}

func TestInstallFailedCopyRemovesCreatedDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	entries := Manifest{"setup.sh", "config/default.yaml", "lib/common.sh"}
	cloneDir := writeSource(t, entries)
	tgt := plainTarget(t)

	// Verification sees the file; the copy of the last entry fails.
	unreadable := filepath.Join(cloneDir, "scanner-cli", "lib", "common.sh")
	require.NoError(t, os.Chmod(unreadable, 0000))

	ins := NewInstaller("scanner-cli", nil)
	_, err := ins.Install(context.Background(), cloneDir, tgt, entries)
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrFileAccess))

	// Nothing from this run survives, including the directories.
	assert.NoDirExists(t, filepath.Join(tgt.Path, "config"))
	assert.NoDirExists(t, filepath.Join(tgt.Path, "lib"))
	assert.NoDirExists(t, tgt.Path)
}

func TestInstallFailedCopyKeepsPreexistingTarget(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	entries := Manifest{"setup.sh", "lib/common.sh"}
	cloneDir := writeSource(t, entries)
	tgt := plainTarget(t)

	// The target directory predates this run and holds unrelated data.
	require.NoError(t, os.MkdirAll(tgt.Path, 0755))
	keeper := filepath.Join(tgt.Path, "keep.txt")
	require.NoError(t, os.WriteFile(keeper, []byte("existing"), 0644))

	unreadable := filepath.Join(cloneDir, "scanner-cli", "lib", "common.sh")
	require.NoError(t, os.Chmod(unreadable, 0000))

	ins := NewInstaller("scanner-cli", nil)
	_, err := ins.Install(context.Background(), cloneDir, tgt, entries)
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(tgt.Path, "setup.sh"))
	assert.NoDirExists(t, filepath.Join(tgt.Path, "lib"))
	assert.FileExists(t, keeper)
	assert.DirExists(t, tgt.Path)
}

type fakeEscalator struct {
	refuse bool
	calls  int
}

func (f *fakeEscalator) MkdirOwned(_ context.Context, path string) error {
	f.calls++
	if f.refuse {
		return fmt.Errorf("sudo: a password is required")
	}
	return os.MkdirAll(path, 0755)
}

func TestInstallElevatedCreation(t *testing.T) {
	cloneDir := writeSource(t, testManifest)
	esc := &fakeEscalator{}
	tgt := target.InstallTarget{
		Path:                  filepath.Join(t.TempDir(), "system", "scanner"),
		RequiresElevatedWrite: true,
	}

	ins := NewInstaller("scanner-cli", esc)
	dir, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.NoError(t, err)

	assert.Equal(t, tgt.Path, dir)
	assert.Equal(t, 1, esc.calls)
}

func TestInstallElevatedRefusedFallsBack(t *testing.T) {
	cloneDir := writeSource(t, testManifest)
	esc := &fakeEscalator{refuse: true}
	fallback := filepath.Join(t.TempDir(), "user", "scanner")
	tgt := target.InstallTarget{
		Path:                  "/opt/morphiens/scanner",
		RequiresElevatedWrite: true,
		FallbackPath:          fallback,
	}

	ins := NewInstaller("scanner-cli", esc)
	dir, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.NoError(t, err)

	assert.Equal(t, fallback, dir)
	assert.FileExists(t, filepath.Join(fallback, "setup.sh"))
}

func TestInstallElevatedRefusedNoFallback(t *testing.T) {
	cloneDir := writeSource(t, testManifest)
	esc := &fakeEscalator{refuse: true}
	tgt := target.InstallTarget{
		Path:                  filepath.Join(t.TempDir(), "nope", "scanner"),
		RequiresElevatedWrite: true,
	}

	ins := NewInstaller("scanner-cli", esc)
	_, err := ins.Install(context.Background(), cloneDir, tgt, testManifest)
	require.Error(t, err)
	assert.True(t, installerrors.IsCode(err, installerrors.ErrDirCreate))
}
