// Package testutil provides utilities for testing e-webapp in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the directories SetupTestEnv created.
type Env struct {
	Root     string
	Home     string
	Cache    string
	Build    string
	Staging  string
	Template string
}

// SetupTestEnv creates isolated test directories for each test and points
// HOME, TMPDIR and the EWEBAPP_* directory settings at them, so tests never
// touch the user's installed apps or caches.
//
// Cleanup is handled by t.TempDir and t.Setenv.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	root := t.TempDir()
	env := Env{
		Root:     root,
		Home:     filepath.Join(root, "home"),
		Cache:    filepath.Join(root, "cache"),
		Build:    filepath.Join(root, "cache", "build"),
		Staging:  filepath.Join(root, "tmp", "ewebapp_node_modules"),
		Template: filepath.Join(root, "template"),
	}

	t.Setenv("HOME", env.Home)
	t.Setenv("TMPDIR", filepath.Join(root, "tmp"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "xdg-cache"))
	t.Setenv("EWEBAPP_CACHE_DIR", env.Cache)
	t.Setenv("EWEBAPP_BUILD_DIR", env.Build)
	t.Setenv("EWEBAPP_STAGING_DIR", env.Staging)
	t.Setenv("EWEBAPP_TEMPLATE_DIR", env.Template)

	for _, dir := range []string{env.Home, env.Cache, env.Build, filepath.Join(root, "tmp"), env.Template} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}

// WriteFile creates path with content and mode, creating parents.
func WriteFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}
