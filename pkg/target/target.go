// Package target picks the local install directory. Candidates are
// tried in priority order: the system location first, then the
// per-user fallback. Only the parent of the install directory is
// created here; the directory itself is created by the manifest
// installer, which may need elevated privileges.
package target

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/morphiens/scanner-cli-installer/pkg/errors"
	"github.com/morphiens/scanner-cli-installer/pkg/logging"
)

// InstallTarget is the resolved install location for this run. It is
// immutable once the fetch has started.
type InstallTarget struct {
	// Path is the install directory itself (base + dir name).
	Path string

	// IsWritable reports whether the parent is writable by the
	// effective user without elevation.
	IsWritable bool

	// RequiresElevatedWrite is set when the system candidate was
	// chosen but creating the install directory needs elevation.
	RequiresElevatedWrite bool

	// FallbackPath is the per-user install directory to fall back to
	// if elevated creation is refused. Empty when no usable fallback
	// exists.
	FallbackPath string
}

// Resolver evaluates the candidate base directories.
type Resolver struct {
	candidates []string
	dirName    string
	canElevate bool
}

// NewResolver creates a resolver over the priority-ordered candidate
// base directories. canElevate reports whether the run could obtain
// elevated privileges later (already root, interactive sudo, or a
// cached sudo credential).
func NewResolver(candidates []string, dirName string, canElevate bool) *Resolver {
	return &Resolver{candidates: candidates, dirName: dirName, canElevate: canElevate}
}

// Resolve picks the install target. A candidate that cannot be used is
// skipped; when the system candidate is unusable but elevation is
// possible it is still preferred, carrying a usable fallback for the
// installer. Resolution fails with DIRECTORY_UNAVAILABLE only when no
// candidate can serve.
func (r *Resolver) Resolve() (InstallTarget, error) {
	logger := logging.GetLogger("target")

	if len(r.candidates) == 0 {
		return InstallTarget{}, errors.New(errors.ErrInvalidInput, "no candidate install directories configured")
	}

	var usable []string
	for _, base := range r.candidates {
		ok := baseUsable(base)
		logger.Debug().Str("base", base).Bool("usable", ok).Msg("Evaluated candidate base directory")
		if ok {
			usable = append(usable, base)
		}
	}

	system := r.candidates[0]

	// The system candidate wins whenever it is directly usable.
	if len(usable) > 0 && usable[0] == system {
		return InstallTarget{
			Path:         filepath.Join(system, r.dirName),
			IsWritable:   true,
			FallbackPath: r.fallbackFrom(usable, system),
		}, nil
	}

	// System candidate needs elevation: prefer it when elevation is a
	// realistic option, keeping a usable fallback for the installer.
	if r.canElevate {
		t := InstallTarget{
			Path:                  filepath.Join(system, r.dirName),
			RequiresElevatedWrite: true,
		}
		if len(usable) > 0 {
			t.FallbackPath = filepath.Join(usable[0], r.dirName)
		}
		logger.Info().Str("path", t.Path).Msg("Install target requires elevated write")
		return t, nil
	}

	// No elevation possible: first usable non-system candidate wins.
	if len(usable) > 0 {
		return InstallTarget{
			Path:       filepath.Join(usable[0], r.dirName),
			IsWritable: true,
		}, nil
	}

	return InstallTarget{}, errors.Newf(errors.ErrDirectoryUnavailable,
		"no writable install directory among %v", r.candidates)
}

func (r *Resolver) fallbackFrom(usable []string, chosen string) string {
	for _, base := range usable {
		if base != chosen {
			return filepath.Join(base, r.dirName)
		}
	}
	return ""
}

// baseUsable reports whether the base directory exists and is writable
// or can be created by the effective user.
func baseUsable(base string) bool {
	info, err := os.Stat(base)
	if err == nil {
		if !info.IsDir() {
			return false
		}
		return unix.Access(base, unix.W_OK) == nil
	}
	if !os.IsNotExist(err) {
		return false
	}
	// Attempt creation; per the contract this side effect is allowed
	// for the parent of the install directory.
	return os.MkdirAll(base, 0755) == nil
}
