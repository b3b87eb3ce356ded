// Package manifest copies the fixed set of required files from the
// working clone into the install target. Installation is all or
// nothing: every entry is verified before the first byte is copied,
// and a failed copy removes everything copied so far.
package manifest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
	"github.com/morphiens/scanner-cli-installer/pkg/target"
)

// Manifest is the fixed, ordered list of required relative paths.
type Manifest []string

// Escalator creates a directory with elevated privileges, owned by the
// acting user so that subsequent copies run unprivileged.
type Escalator interface {
	MkdirOwned(ctx context.Context, path string) error
}

// Installer copies the manifest out of a working clone.
type Installer struct {
	subdir    string
	escalator Escalator
}

// NewInstaller creates an installer. subdir is the fixed relative
// source subdirectory inside the clone. escalator may be nil when no
// candidate requires elevated writes.
func NewInstaller(subdir string, escalator Escalator) *Installer {
	return &Installer{subdir: subdir, escalator: escalator}
}

// Install verifies and copies every manifest entry into the target,
// returning the directory the files landed in. When elevated creation
// of the target is refused, it falls back once to the per-user path
// carried by the target.
func (ins *Installer) Install(ctx context.Context, cloneDir string, tgt target.InstallTarget, m Manifest) (string, error) {
	logger := logging.GetLogger("manifest")

	src := filepath.Join(cloneDir, ins.subdir)
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return "", errors.Newf(errors.ErrSourceSubtreeMissing,
			"expected subdirectory %q not found in fetched source", ins.subdir)
	}

	// Fail fast on the first missing entry, before any copy happens.
	for _, entry := range m {
		if !regularFileExists(filepath.Join(src, entry)) {
			return "", errors.Newf(errors.ErrManifestFileMissing,
				"required file %q is missing from the fetched source", entry).
				WithDetail("file", entry)
		}
	}

	destDir, created, err := ins.ensureTargetDir(ctx, tgt)
	if err != nil {
		return "", err
	}

	var copied []string
	for _, entry := range m {
		dst := filepath.Join(destDir, entry)
		if err := copyFile(filepath.Join(src, entry), dst); err != nil {
			// No partial target: undo everything from this run.
			rollback(destDir, created, copied, m)
			return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to copy %q", entry)
		}
		copied = append(copied, dst)

		if wantsExecutableBit(entry) {
			if err := os.Chmod(dst, 0755); err != nil {
				// Non-fatal: the setup step can still be invoked via sh.
				logger.Warn().Err(err).Str("file", dst).Msg("Could not set executable bit")
			}
		}
	}

	logger.Info().Str("dir", destDir).Int("files", len(m)).Msg("Manifest installed")
	return destDir, nil
}

// rollback undoes a partial install: the copied files, the
// intermediate directories of nested entries, and the target directory
// itself when this run created it. os.Remove refuses non-empty
// directories, so anything that existed before with content stays put.
func rollback(destDir string, created bool, copied []string, m Manifest) {
	for i := len(copied) - 1; i >= 0; i-- {
		os.Remove(copied[i])
	}
	for _, entry := range m {
		for d := filepath.Dir(entry); d != "." && d != string(filepath.Separator); d = filepath.Dir(d) {
			os.Remove(filepath.Join(destDir, d))
		}
	}
	if created {
		os.Remove(destDir)
	}
}

// ensureTargetDir creates the install directory, escalating when the
// resolver flagged the target, with one automatic fallback to the
// per-user directory if elevation is refused. The returned bool
// reports whether the directory was created by this run.
func (ins *Installer) ensureTargetDir(ctx context.Context, tgt target.InstallTarget) (string, bool, error) {
	logger := logging.GetLogger("manifest")

	if !tgt.RequiresElevatedWrite {
		created := !dirExists(tgt.Path)
		if err := os.MkdirAll(tgt.Path, 0755); err != nil {
			return "", false, errors.Wrapf(err, errors.ErrDirCreate, "cannot create install directory %s", tgt.Path)
		}
		return tgt.Path, created, nil
	}

	if ins.escalator != nil {
		created := !dirExists(tgt.Path)
		if err := ins.escalator.MkdirOwned(ctx, tgt.Path); err == nil {
			return tgt.Path, created, nil
		} else {
			logger.Warn().Err(err).Str("path", tgt.Path).Msg("Elevated directory creation refused")
		}
	}

	if tgt.FallbackPath == "" {
		return "", false, errors.Newf(errors.ErrDirCreate,
			"cannot create %s with elevated privileges and no fallback is available", tgt.Path)
	}
	logger.Info().Str("path", tgt.FallbackPath).Msg("Falling back to per-user install directory")
	created := !dirExists(tgt.FallbackPath)
	if err := os.MkdirAll(tgt.FallbackPath, 0755); err != nil {
		return "", false, errors.Wrapf(err, errors.ErrDirCreate, "cannot create fallback install directory %s", tgt.FallbackPath)
	}
	return tgt.FallbackPath, created, nil
}

func wantsExecutableBit(entry string) bool {
	return strings.HasSuffix(entry, ".sh")
}

func regularFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// copyFile copies src to dst byte for byte, creating parent
// directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
