// Package desktop renders freedesktop.org desktop entries for packaged
// web applications.
package desktop

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
)

const (
	// ProjectURL is advertised in every entry's Comment.
	ProjectURL = "https://github.com/kem-a/e-webapp"

	// WaylandFlags make Electron render natively under Wayland.
	WaylandFlags = "--enable-features=UseOzonePlatform,WaylandWindowDecorations --ozone-platform-hint=auto --no-sandbox"

	// UninstallAppImageTool is the optional helper offered as an AppImage
	// uninstall action when present on PATH.
	UninstallAppImageTool = "uninstall_appimage"

	// UninstallScript is installed alongside native apps.
	UninstallScript = "uninstall-e-webapp"
)

var (
	defaultCategories = []string{"Network", "Qt", "GTK"}
	defaultKeywords   = []string{"electron", "kemm-a", "e-webapp"}
)

// Action is a [Desktop Action <ID>] group.
type Action struct {
	ID   string
	Name string
	Exec string
}

// Entry is the [Desktop Entry] group plus its actions.
type Entry struct {
	Name              string
	Comment           string
	GenericName       string
	Exec              string
	Icon              string
	Terminal          bool
	Categories        []string
	Keywords          []string
	StartupWMClass    string
	StartupNotify     bool
	UsesNotifications bool
	Actions           []Action
}

// AppID is the window class and user data directory name of an app.
func AppID(name string) string {
	return "e-webapp-" + strings.ToLower(name)
}

// FileName is the .desktop file name used for an app.
func FileName(name string) string {
	return name + ".desktop"
}

// Base returns the fields shared by every entry for name. extraCategories
// and extraKeywords are appended to the defaults.
func Base(name string, extraCategories, extraKeywords []string) Entry {
	lower := strings.ToLower(name)
	return Entry{
		Name:              name,
		Comment:           fmt.Sprintf("%s Electron web application wrapper. Github:%s", name, ProjectURL),
		GenericName:       name + " Electron Application",
		Icon:              lower,
		Categories:        append(append([]string{}, defaultCategories...), extraCategories...),
		Keywords:          append(append([]string{name}, defaultKeywords...), extraKeywords...),
		StartupWMClass:    AppID(name),
		StartupNotify:     true,
		UsesNotifications: true,
	}
}

// Installed is the entry for a native install under home.
func Installed(e Entry, home string) Entry {
	lower := strings.ToLower(e.Name)
	e.Exec = filepath.Join(home, ".local", "share", "e-webapp", AppID(e.Name), lower) + " %U"
	e.Actions = []Action{{
		ID:   "Uninstall",
		Name: "Uninstall Application",
		Exec: filepath.Join(home, ".local", "bin", UninstallScript) + " -n " + e.Name,
	}}
	return e
}

// InAppDir is the entry shipped inside an AppDir, launching the bundled binary.
func InAppDir(e Entry) Entry {
	e.Exec = strings.ToLower(e.Name) + " %U"
	e.Actions = nil
	return e
}

// AppImageFileName is the installed name of an app's AppImage.
func AppImageFileName(name string) string {
	return AppID(name) + ".AppImage"
}

// ForAppImage is the host entry launching an installed AppImage. The
// uninstall action is only offered when the helper tool exists.
func ForAppImage(e Entry, home string, wayland, uninstallAvailable bool) Entry {
	exec := filepath.Join(home, "Applications", AppImageFileName(e.Name))
	if wayland {
		exec += " " + WaylandFlags
	}
	e.Exec = exec + " %U"
	e.Actions = nil
	if uninstallAvailable {
		e.Actions = []Action{{
			ID:   "Uninstall",
			Name: "Uninstall Application",
			Exec: UninstallAppImageTool + " " + e.Name,
		}}
	}
	return e
}

// Render formats the entry in key=value desktop file syntax.
func (e Entry) Render() string {
	var b strings.Builder

	b.WriteString("[Desktop Entry]\n")
	writeKey(&b, "Name", e.Name)
	writeKey(&b, "Comment", e.Comment)
	writeKey(&b, "GenericName", e.GenericName)
	writeKey(&b, "Terminal", fmt.Sprint(e.Terminal))
	writeKey(&b, "Type", "Application")
	writeKey(&b, "Icon", e.Icon)
	writeList(&b, "Categories", e.Categories, ";", true)
	writeList(&b, "Keywords", e.Keywords, ",", false)
	writeKey(&b, "StartupWMClass", e.StartupWMClass)
	writeKey(&b, "StartupNotify", fmt.Sprint(e.StartupNotify))
	if e.UsesNotifications {
		writeKey(&b, "X-GNOME-UsesNotifications", "true")
	}
	writeKey(&b, "Exec", e.Exec)

	if len(e.Actions) > 0 {
		ids := make([]string, 0, len(e.Actions))
		for _, a := range e.Actions {
			ids = append(ids, a.ID)
		}
		writeList(&b, "Actions", ids, ";", true)

		for _, a := range e.Actions {
			b.WriteString("\n[Desktop Action ")
			b.WriteString(a.ID)
			b.WriteString("]\n")
			writeKey(&b, "Name", a.Name)
			writeKey(&b, "Exec", a.Exec)
		}
	}

	return b.String()
}

// WriteFile atomically writes the rendered entry to path.
func (e Entry) WriteFile(path string) error {
	if err := renameio.WriteFile(path, []byte(e.Render()), 0o644); err != nil {
		return fmt.Errorf("write desktop entry: %w", err)
	}
	return nil
}

func writeKey(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeList(b *strings.Builder, key string, values []string, sep string, trailing bool) {
	if len(values) == 0 {
		return
	}
	v := strings.Join(values, sep)
	if trailing {
		v += sep
	}
	writeKey(b, key, v)
}
