package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kem-a/e-webapp/internal/desktop"
)

// Layout resolves install locations under a home directory.
type Layout struct {
	Home string
}

// DefaultLayout uses the current user's home directory.
func DefaultLayout() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Layout{Home: home}, nil
}

// ApplicationsDir holds desktop entries.
func (l Layout) ApplicationsDir() string {
	return filepath.Join(l.Home, ".local", "share", "applications")
}

// DesktopPath is the installed desktop entry of an app.
func (l Layout) DesktopPath(name string) string {
	return filepath.Join(l.ApplicationsDir(), desktop.FileName(name))
}

// AppDir is where a native app is installed.
func (l Layout) AppDir(name string) string {
	return filepath.Join(l.Home, ".local", "share", "e-webapp", desktop.AppID(name))
}

// BinDir holds the shared uninstall script.
func (l Layout) BinDir() string {
	return filepath.Join(l.Home, ".local", "bin")
}

// UninstallScriptPath is the installed uninstall script.
func (l Layout) UninstallScriptPath() string {
	return filepath.Join(l.BinDir(), desktop.UninstallScript)
}

// AppImagePath is where an app's AppImage is installed.
func (l Layout) AppImagePath(name string) string {
	return filepath.Join(l.Home, "Applications", desktop.AppImageFileName(name))
}

// IconPath is the themed icon looked up through the entry's Icon key.
func (l Layout) IconPath(name string) string {
	return filepath.Join(l.Home, ".local", "share", "icons", strings.ToLower(name)+".png")
}
