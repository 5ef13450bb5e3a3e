// Package install places built apps into the user's home directory and
// removes them again.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kem-a/e-webapp/internal/desktop"
	"github.com/kem-a/e-webapp/internal/fsutil"
	"github.com/kem-a/e-webapp/internal/toolexec"
	"go.uber.org/zap"
)

// ErrNotInstalled is returned by Uninstall when nothing was found.
var ErrNotInstalled = errors.New("application is not installed")

// Installer copies artifacts into a Layout.
type Installer struct {
	layout   Layout
	lookPath func(string) (string, bool)
	logger   *zap.Logger
}

// New creates an Installer for layout.
func New(layout Layout, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{layout: layout, lookPath: toolexec.LookPath, logger: logger}
}

// Layout returns the install locations.
func (i *Installer) Layout() Layout {
	return i.layout
}

// NativeRequest describes an unpacked app to install.
type NativeRequest struct {
	// Entry is the desktop entry base (desktop.Base).
	Entry desktop.Entry
	// Unpacked is the electron-builder output directory.
	Unpacked string
	// Exclude lists doublestar patterns skipped while copying Unpacked.
	Exclude []string
	// UninstallScript is copied to ~/.local/bin.
	UninstallScript string
	// Icon is optional.
	Icon string
}

// Result lists what an install wrote.
type Result struct {
	AppPath     string
	DesktopPath string
	IconPath    string
}

// Native installs an unpacked app, replacing a previous install.
func (i *Installer) Native(ctx context.Context, req NativeRequest) (*Result, error) {
	name := req.Entry.Name
	if name == "" {
		return nil, errors.New("app name is required")
	}

	res := &Result{
		AppPath:     i.layout.AppDir(name),
		DesktopPath: i.layout.DesktopPath(name),
	}

	i.logger.Info("installing app", zap.String("name", name), zap.String("path", res.AppPath))
	if err := fsutil.CopyReplace(ctx, req.Unpacked, res.AppPath, req.Exclude); err != nil {
		return nil, fmt.Errorf("install app files: %w", err)
	}

	if err := os.MkdirAll(i.layout.BinDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create bin dir: %w", err)
	}
	script := i.layout.UninstallScriptPath()
	if err := os.RemoveAll(script); err != nil {
		return nil, fmt.Errorf("remove old uninstall script: %w", err)
	}
	if err := fsutil.CopyFile(req.UninstallScript, script, 0o755); err != nil {
		return nil, fmt.Errorf("install uninstall script: %w", err)
	}

	if err := i.writeEntry(desktop.Installed(req.Entry, i.layout.Home), res.DesktopPath); err != nil {
		return nil, err
	}

	iconPath, err := i.installIcon(name, req.Icon)
	if err != nil {
		return nil, err
	}
	res.IconPath = iconPath
	return res, nil
}

// AppImageRequest describes a built AppImage to install.
type AppImageRequest struct {
	Entry    desktop.Entry
	Artifact string
	Wayland  bool
	Icon     string
}

// AppImage moves the artifact to ~/Applications and writes a host desktop
// entry launching it. The uninstall action is offered only when
// uninstall_appimage is on PATH.
func (i *Installer) AppImage(ctx context.Context, req AppImageRequest) (*Result, error) {
	name := req.Entry.Name
	if name == "" {
		return nil, errors.New("app name is required")
	}

	res := &Result{
		AppPath:     i.layout.AppImagePath(name),
		DesktopPath: i.layout.DesktopPath(name),
	}

	i.logger.Info("installing AppImage", zap.String("name", name), zap.String("path", res.AppPath))
	if err := fsutil.Replace(ctx, req.Artifact, res.AppPath); err != nil {
		return nil, fmt.Errorf("install AppImage: %w", err)
	}
	if err := os.Chmod(res.AppPath, 0o755); err != nil {
		return nil, fmt.Errorf("chmod AppImage: %w", err)
	}

	_, uninstallAvailable := i.lookPath(desktop.UninstallAppImageTool)
	entry := desktop.ForAppImage(req.Entry, i.layout.Home, req.Wayland, uninstallAvailable)
	if err := i.writeEntry(entry, res.DesktopPath); err != nil {
		return nil, err
	}

	iconPath, err := i.installIcon(name, req.Icon)
	if err != nil {
		return nil, err
	}
	res.IconPath = iconPath
	return res, nil
}

// Uninstall removes an installed app. The shared uninstall script stays.
func (i *Installer) Uninstall(name string, appImage bool) ([]string, error) {
	if name == "" {
		return nil, errors.New("app name is required")
	}

	appPath := i.layout.AppDir(name)
	if appImage {
		appPath = i.layout.AppImagePath(name)
	}

	var removed []string
	for _, p := range []string{appPath, i.layout.DesktopPath(name), i.layout.IconPath(name)} {
		if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
		i.logger.Debug("removed", zap.String("path", p))
		removed = append(removed, p)
	}
	if len(removed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return removed, nil
}

func (i *Installer) writeEntry(e desktop.Entry, path string) error {
	if err := os.MkdirAll(i.layout.ApplicationsDir(), 0o755); err != nil {
		return fmt.Errorf("create applications dir: %w", err)
	}
	return e.WriteFile(path)
}

func (i *Installer) installIcon(name, icon string) (string, error) {
	if icon == "" {
		return "", nil
	}
	dst := i.layout.IconPath(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create icons dir: %w", err)
	}
	if err := fsutil.CopyFile(icon, dst, 0o644); err != nil {
		return "", fmt.Errorf("install icon: %w", err)
	}
	return dst, nil
}
