package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kem-a/e-webapp/internal/desktop"
	"github.com/kem-a/e-webapp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstaller(t *testing.T, tools ...string) (*Installer, testutil.Env) {
	t.Helper()
	env := testutil.SetupTestEnv(t)
	inst := New(Layout{Home: env.Home}, nil)
	inst.lookPath = func(name string) (string, bool) {
		for _, tool := range tools {
			if tool == name {
				return "/usr/bin/" + name, true
			}
		}
		return "", false
	}
	return inst, env
}

func unpacked(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "mail", "dist", "linux-unpacked")
	testutil.WriteFile(t, filepath.Join(dir, "mail"), "#!/bin/sh\n", 0o755)
	testutil.WriteFile(t, filepath.Join(dir, "resources", "app.asar"), "asar", 0o644)
	testutil.WriteFile(t, filepath.Join(dir, "locales", "de.pak"), "de", 0o644)
	return dir
}

func TestLayout(t *testing.T) {
	l := Layout{Home: "/home/u"}
	assert.Equal(t, "/home/u/.local/share/applications/Mail.desktop", l.DesktopPath("Mail"))
	assert.Equal(t, "/home/u/.local/share/e-webapp/e-webapp-mail", l.AppDir("Mail"))
	assert.Equal(t, "/home/u/.local/bin/uninstall-e-webapp", l.UninstallScriptPath())
	assert.Equal(t, "/home/u/Applications/e-webapp-mail.AppImage", l.AppImagePath("Mail"))
	assert.Equal(t, "/home/u/.local/share/icons/mail.png", l.IconPath("Mail"))
}

func TestNative(t *testing.T) {
	inst, env := newTestInstaller(t)
	src := unpacked(t, env.Build)
	script := filepath.Join(env.Template, desktop.UninstallScript)
	testutil.WriteFile(t, script, "#!/bin/sh\necho bye\n", 0o644)
	icon := filepath.Join(env.Build, "mail", "icon.png")
	testutil.WriteFile(t, icon, "png", 0o644)

	// a previous install is replaced, not merged
	testutil.WriteFile(t, filepath.Join(inst.Layout().AppDir("Mail"), "stale"), "old", 0o644)

	res, err := inst.Native(context.Background(), NativeRequest{
		Entry:           desktop.Base("Mail", nil, nil),
		Unpacked:        src,
		Exclude:         []string{"locales/**"},
		UninstallScript: script,
		Icon:            icon,
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(res.AppPath, "mail"))
	assert.FileExists(t, filepath.Join(res.AppPath, "resources", "app.asar"))
	assert.NoFileExists(t, filepath.Join(res.AppPath, "locales", "de.pak"))
	assert.NoFileExists(t, filepath.Join(res.AppPath, "stale"))
	assert.DirExists(t, src, "unpacked app is copied, not moved")

	info, err := os.Stat(inst.Layout().UninstallScriptPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	data, err := os.ReadFile(res.DesktopPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Exec="+env.Home+"/.local/share/e-webapp/e-webapp-mail/mail %U\n")
	assert.Contains(t, text, "Exec="+env.Home+"/.local/bin/uninstall-e-webapp -n Mail\n")

	assert.Equal(t, inst.Layout().IconPath("Mail"), res.IconPath)
	assert.FileExists(t, res.IconPath)
}

func TestNative_MissingUnpacked(t *testing.T) {
	inst, env := newTestInstaller(t)
	_, err := inst.Native(context.Background(), NativeRequest{
		Entry:    desktop.Base("Mail", nil, nil),
		Unpacked: filepath.Join(env.Build, "missing"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "install app files")
	assert.NoFileExists(t, inst.Layout().DesktopPath("Mail"))
}

func TestAppImage(t *testing.T) {
	tests := []struct {
		name          string
		tools         []string
		wayland       bool
		wantExec      string
		wantUninstall bool
	}{
		{"plain", nil, false, "/Applications/e-webapp-mail.AppImage %U", false},
		{"wayland", nil, true, "/Applications/e-webapp-mail.AppImage " + desktop.WaylandFlags + " %U", false},
		{"uninstall helper", []string{desktop.UninstallAppImageTool}, false, "/Applications/e-webapp-mail.AppImage %U", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, env := newTestInstaller(t, tt.tools...)
			artifact := filepath.Join(env.Build, "mail", "e-webapp-mail.AppImage")
			testutil.WriteFile(t, artifact, "RRRRIIII", 0o644)
			testutil.WriteFile(t, inst.Layout().AppImagePath("Mail"), "old", 0o755)

			res, err := inst.AppImage(context.Background(), AppImageRequest{
				Entry:    desktop.Base("Mail", nil, nil),
				Artifact: artifact,
				Wayland:  tt.wayland,
			})
			require.NoError(t, err)

			data, err := os.ReadFile(res.AppPath)
			require.NoError(t, err)
			assert.Equal(t, "RRRRIIII", string(data))
			info, err := os.Stat(res.AppPath)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
			assert.NoFileExists(t, artifact)
			assert.Empty(t, res.IconPath)

			entry, err := os.ReadFile(res.DesktopPath)
			require.NoError(t, err)
			assert.Contains(t, string(entry), "Exec="+env.Home+tt.wantExec+"\n")
			assert.Equal(t, tt.wantUninstall, strings.Contains(string(entry), "Exec=uninstall_appimage Mail"))
		})
	}
}

func TestUninstall(t *testing.T) {
	inst, _ := newTestInstaller(t)
	l := inst.Layout()
	testutil.WriteFile(t, filepath.Join(l.AppDir("Mail"), "mail"), "bin", 0o755)
	testutil.WriteFile(t, l.DesktopPath("Mail"), "[Desktop Entry]\n", 0o644)
	testutil.WriteFile(t, l.UninstallScriptPath(), "#!/bin/sh\n", 0o755)

	removed, err := inst.Uninstall("Mail", false)
	require.NoError(t, err)
	assert.Equal(t, []string{l.AppDir("Mail"), l.DesktopPath("Mail")}, removed)
	assert.NoDirExists(t, l.AppDir("Mail"))
	assert.FileExists(t, l.UninstallScriptPath())

	_, err = inst.Uninstall("Mail", false)
	assert.True(t, errors.Is(err, ErrNotInstalled))
}

func TestUninstall_AppImage(t *testing.T) {
	inst, _ := newTestInstaller(t)
	l := inst.Layout()
	testutil.WriteFile(t, l.AppImagePath("Mail"), "bin", 0o755)
	testutil.WriteFile(t, l.IconPath("Mail"), "png", 0o644)
	testutil.WriteFile(t, filepath.Join(l.AppDir("Mail"), "mail"), "native", 0o755)

	removed, err := inst.Uninstall("Mail", true)
	require.NoError(t, err)
	assert.Equal(t, []string{l.AppImagePath("Mail"), l.IconPath("Mail")}, removed)
	assert.DirExists(t, l.AppDir("Mail"), "native install untouched")
}

func TestRequiresName(t *testing.T) {
	inst, _ := newTestInstaller(t)
	_, err := inst.Native(context.Background(), NativeRequest{})
	assert.Error(t, err)
	_, err = inst.AppImage(context.Background(), AppImageRequest{})
	assert.Error(t, err)
	_, err = inst.Uninstall("", false)
	assert.Error(t, err)
}
