// Package testutil provides shared test fixtures: isolated home
// directories, stub executables on PATH, and local git remotes.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/morphiens/scanner-cli-installer/pkg/identity"
)

// TempIdentity creates an identity rooted in a temp home directory.
func TempIdentity(t *testing.T) identity.Identity {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return identity.Identity{Name: "tester", HomeDir: home}
}

// StubBinDir creates a directory that is prepended to PATH for the
// duration of the test. Use WriteStub to drop fake executables into it.
func StubBinDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir
}

// WriteStub writes an executable shell script with the given name into
// dir. The script body runs under /bin/sh.
func WriteStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

// InitGitRemote creates a local git repository with an initial commit
// on the given branch, usable as a clone URL in tests.
func InitGitRemote(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()
	GitRun(t, "", "init", "-b", branch, dir)
	GitRun(t, dir, "config", "user.email", "test@test.com")
	GitRun(t, dir, "config", "user.name", "Test")
	return dir
}

// CommitFile writes content to relPath inside the repo (creating
// parent directories) and commits it.
func CommitFile(t *testing.T, repoDir, relPath, content string) {
	t.Helper()
	full := filepath.Join(repoDir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	GitRun(t, repoDir, "add", relPath)
	GitRun(t, repoDir, "commit", "-m", fmt.Sprintf("add %s", relPath))
}

// GitRun runs a git command, failing the test on error. An empty
// repoDir runs git without -C.
func GitRun(t *testing.T, repoDir string, args ...string) {
	t.Helper()
	full := args
	if repoDir != "" {
		full = append([]string{"-C", repoDir}, args...)
	}
	cmd := exec.Command("git", full...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}
