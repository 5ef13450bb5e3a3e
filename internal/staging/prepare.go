package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/kem-a/e-webapp/internal/config"
	"github.com/kem-a/e-webapp/internal/desktop"
	"github.com/kem-a/e-webapp/internal/fsutil"
)

// Template layout, relative to the template directory.
var (
	TemplateAppDir      = "app"
	TemplateAppRun      = filepath.Join("build", "AppRun")
	TemplateDefaultIcon = filepath.Join("assets", "default.png")
	TemplateUninstall   = desktop.UninstallScript
)

// Files written into an app directory.
const (
	ConfigFileName  = "config.js"
	PackageFileName = "package.json"
	NodeModulesDir  = "node_modules"
)

// EasylistPath is where the shell loads its ad-block rules from.
func EasylistPath(appDir string) string {
	return filepath.Join(appDir, "resources", "easylist.txt")
}

// ShellConfig is the config.js object read by the Electron shell.
type ShellConfig struct {
	AppName               string `json:"appName"`
	WebPath               string `json:"webPath"`
	EnforceSingleInstance bool   `json:"enforceSingleInstance"`
	TrayIconName          string `json:"trayIconName"`
	UserAgentString       string `json:"userAgentString"`
	MainMenuHidden        bool   `json:"mainMenuHidden"`
	ShouldShowContextMenu bool   `json:"shouldShowContextMenu"`
	EnableAdBlocker       bool   `json:"enableAdBlocker"`
	InjectCustomCSS       bool   `json:"injectCustomCSS"`
	InjectCustomJS        bool   `json:"injectCustomJS"`
}

// DefaultShellConfig returns the shell settings for app.
func DefaultShellConfig(app *config.App) ShellConfig {
	return ShellConfig{
		AppName:               app.Name,
		WebPath:               app.URL,
		EnforceSingleInstance: true,
		UserAgentString:       "chrome",
		MainMenuHidden:        true,
		ShouldShowContextMenu: true,
		EnableAdBlocker:       true,
	}
}

// RenderConfigJS renders cfg as a CommonJS module.
func RenderConfigJS(cfg ShellConfig) ([]byte, error) {
	body, err := marshalIndent(cfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("// Generated by e-webapp\n")
	buf.WriteString("module.exports = ")
	buf.Write(bytes.TrimRight(body, "\n"))
	buf.WriteString(";\n")
	return buf.Bytes(), nil
}

// packageJSON is the manifest electron-builder reads.
type packageJSON struct {
	Name            string            `json:"name"`
	ProductName     string            `json:"productName"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Main            string            `json:"main"`
	Author          string            `json:"author"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Build           builderConfig     `json:"build"`
}

type builderConfig struct {
	AppID          string      `json:"appId"`
	ProductName    string      `json:"productName"`
	ExecutableName string      `json:"executableName"`
	Linux          linuxConfig `json:"linux"`
}

type linuxConfig struct {
	Target   []string `json:"target"`
	Icon     string   `json:"icon"`
	Category string   `json:"category"`
}

// stagedManifest is the subset of the staging package.json that npm
// maintains.
type stagedManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Prepare turns appDir into a buildable Electron project: the template app
// is copied in, the staged node_modules are copied next to it and
// config.js and package.json are written. Existing files in appDir that
// are not part of the template (icon, metadata) are kept.
func (s *Stager) Prepare(ctx context.Context, templateDir, appDir string, app *config.App) error {
	src := filepath.Join(templateDir, TemplateAppDir)
	if err := copyInto(ctx, src, appDir); err != nil {
		return fmt.Errorf("copy template: %w", err)
	}

	modules := filepath.Join(s.dir, NodeModulesDir)
	if _, err := os.Stat(modules); err != nil {
		return fmt.Errorf("staged dependencies missing: %w", err)
	}
	if err := fsutil.CopyReplace(ctx, modules, filepath.Join(appDir, NodeModulesDir), nil); err != nil {
		return fmt.Errorf("copy node_modules: %w", err)
	}

	cfg, err := RenderConfigJS(DefaultShellConfig(app))
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(appDir, ConfigFileName), cfg, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFileName, err)
	}

	staged, err := readStagedManifest(filepath.Join(s.dir, PackageFileName))
	if err != nil {
		return err
	}
	pkg, err := renderPackageJSON(app, staged)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(appDir, PackageFileName), pkg, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", PackageFileName, err)
	}
	return nil
}

// copyInto copies every top-level entry of src into dir, replacing
// entries of the same name.
func copyInto(ctx context.Context, src, dir string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := fsutil.CopyReplace(ctx, from, to, nil); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		if err := fsutil.CopyFile(from, to, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func readStagedManifest(path string) (*stagedManifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &stagedManifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read staged %s: %w", PackageFileName, err)
	}
	var m stagedManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode staged %s: %w", PackageFileName, err)
	}
	return &m, nil
}

func renderPackageJSON(app *config.App, staged *stagedManifest) ([]byte, error) {
	lower := app.LowerName()
	description := app.Description
	if description == "" {
		description = app.Name + " web application"
	}
	pkg := packageJSON{
		Name:            desktop.AppID(app.Name),
		ProductName:     app.Name,
		Version:         "1.0.0",
		Description:     description,
		Main:            "index.js",
		Author:          "e-webapp",
		Dependencies:    staged.Dependencies,
		DevDependencies: staged.DevDependencies,
		Build: builderConfig{
			AppID:          desktop.AppID(app.Name),
			ProductName:    app.Name,
			ExecutableName: lower,
			Linux: linuxConfig{
				Target:   []string{"dir"},
				Icon:     "icon.png",
				Category: "Network",
			},
		},
	}
	return marshalIndent(pkg)
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}
