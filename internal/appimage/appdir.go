package appimage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kem-a/e-webapp/internal/desktop"
	"github.com/kem-a/e-webapp/internal/fsutil"
)

// UnpackedDir is where electron-builder leaves the unpacked Linux app,
// relative to the app directory.
var UnpackedDir = filepath.Join("dist", "linux-unpacked")

// ErrBrokenLauncher is returned when the AppDir launcher symlink does not
// resolve to an executable file.
var ErrBrokenLauncher = errors.New("launcher symlink does not resolve to an executable")

// StageOptions describes an AppDir to create.
type StageOptions struct {
	// AppDir is the app working directory holding dist/linux-unpacked
	// and icon.png. The AppDir is created inside it.
	AppDir string
	// Entry is the desktop entry base for the app; its Exec is rewritten
	// to launch the bundled binary.
	Entry desktop.Entry
	// AppRun is the AppImage entry point script to copy in.
	AppRun string
}

// StageAppDir lays out <lower>.AppDir:
//
//	usr/lib64/        the unpacked app (moved, not copied)
//	usr/bin/<lower>   symlink to ../lib64/<lower>
//	AppRun
//	<lower>.png
//	<Name>.desktop
//
// and returns its path.
func StageAppDir(opts StageOptions) (string, error) {
	name := opts.Entry.Name
	if name == "" {
		return "", errors.New("app name is required")
	}
	lower := strings.ToLower(name)

	appDir := filepath.Join(opts.AppDir, lower+".AppDir")
	binDir := filepath.Join(appDir, "usr", "bin")
	libDir := filepath.Join(appDir, "usr", "lib64")

	if err := os.RemoveAll(appDir); err != nil {
		return "", fmt.Errorf("remove previous AppDir: %w", err)
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create AppDir: %w", err)
	}

	unpacked := filepath.Join(opts.AppDir, UnpackedDir)
	if err := os.Rename(unpacked, libDir); err != nil {
		return "", fmt.Errorf("move unpacked app: %w", err)
	}

	launcher := filepath.Join(binDir, lower)
	if err := os.Symlink(filepath.Join("..", "lib64", lower), launcher); err != nil {
		return "", fmt.Errorf("create launcher symlink: %w", err)
	}
	if err := checkLauncher(launcher); err != nil {
		return "", err
	}

	if err := fsutil.CopyFile(opts.AppRun, filepath.Join(appDir, "AppRun"), 0o755); err != nil {
		return "", fmt.Errorf("copy AppRun: %w", err)
	}
	if err := fsutil.CopyFile(filepath.Join(opts.AppDir, "icon.png"), filepath.Join(appDir, lower+".png"), 0o644); err != nil {
		return "", fmt.Errorf("copy icon: %w", err)
	}

	entry := desktop.InAppDir(opts.Entry)
	if err := entry.WriteFile(filepath.Join(appDir, desktop.FileName(name))); err != nil {
		return "", err
	}

	return appDir, nil
}

// checkLauncher resolves the symlink relative to its own location and
// requires a regular file with an execute bit.
func checkLauncher(link string) error {
	target, err := os.Readlink(link)
	if err != nil {
		return fmt.Errorf("read launcher symlink: %w", err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBrokenLauncher, target, err)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s", ErrBrokenLauncher, target)
	}
	return nil
}
