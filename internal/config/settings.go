package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "EWEBAPP"

// DefaultRuntimeBaseURL is where the AppImage type2 runtime is published;
// the file name is "runtime-<arch>".
const DefaultRuntimeBaseURL = "https://github.com/AppImage/type2-runtime/releases/download/continuous"

// Settings holds process-wide configuration read from EWEBAPP_* variables.
type Settings struct {
	BuildDir   string `envconfig:"BUILD_DIR"`
	CacheDir   string `envconfig:"CACHE_DIR"`
	StagingDir string `envconfig:"STAGING_DIR"`

	RuntimeURL          string `envconfig:"RUNTIME_URL"`
	RuntimeSignatureURL string `envconfig:"RUNTIME_SIGNATURE_URL"`
	RuntimeKeyring      string `envconfig:"RUNTIME_KEYRING"`

	EasylistURL string `envconfig:"EASYLIST_URL" default:"https://easylist.to/easylist/easylist.txt"`

	Mksquashfs   string `envconfig:"MKSQUASHFS" default:"mksquashfs"`
	Appimagetool string `envconfig:"APPIMAGETOOL" default:"appimagetool"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	ToolTimeout time.Duration `envconfig:"TOOL_TIMEOUT" default:"30m"`
	HTTPRetries int           `envconfig:"HTTP_RETRIES" default:"3"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`

	// Directory holding the Electron app template (app/, build/AppRun,
	// assets/default.png and the uninstall script)
	TemplateDir string `envconfig:"TEMPLATE_DIR"`
}

// Load reads Settings from the environment and fills in path defaults.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.resolve(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// resolve fills empty directories from the XDG locations.
func (s *Settings) resolve() error {
	if s.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("resolve cache dir: %w", err)
		}
		s.CacheDir = filepath.Join(base, "e-webapp")
	}
	if s.BuildDir == "" {
		s.BuildDir = filepath.Join(s.CacheDir, "build")
	}
	if s.StagingDir == "" {
		s.StagingDir = filepath.Join(os.TempDir(), "ewebapp_node_modules")
	}
	if s.TemplateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve template dir: %w", err)
		}
		s.TemplateDir = filepath.Join(home, ".local", "share", "e-webapp", "template")
	}
	return nil
}

// Validate rejects settings that cannot work.
func (s *Settings) Validate() error {
	if s.RuntimeURL != "" {
		if err := ValidateURL(s.RuntimeURL); err != nil {
			return &ValidationError{Field: "EWEBAPP_RUNTIME_URL", Message: err.Error()}
		}
	}
	if s.RuntimeSignatureURL != "" {
		if err := ValidateURL(s.RuntimeSignatureURL); err != nil {
			return &ValidationError{Field: "EWEBAPP_RUNTIME_SIGNATURE_URL", Message: err.Error()}
		}
		if s.RuntimeKeyring == "" {
			return &ValidationError{
				Field:   "EWEBAPP_RUNTIME_KEYRING",
				Message: "required when EWEBAPP_RUNTIME_SIGNATURE_URL is set",
			}
		}
	}
	if err := ValidateURL(s.EasylistURL); err != nil {
		return &ValidationError{Field: "EWEBAPP_EASYLIST_URL", Message: err.Error()}
	}
	if s.HTTPTimeout < 0 {
		return &ValidationError{Field: "EWEBAPP_HTTP_TIMEOUT", Message: "must not be negative"}
	}
	if s.ToolTimeout < 0 {
		return &ValidationError{Field: "EWEBAPP_TOOL_TIMEOUT", Message: "must not be negative"}
	}
	if s.HTTPRetries < 0 {
		return &ValidationError{Field: "EWEBAPP_HTTP_RETRIES", Message: "must not be negative"}
	}
	return nil
}

// RuntimeURLFor returns the configured runtime URL, or the published
// runtime for runtimeArch (as returned by platform.RuntimeArch).
func (s *Settings) RuntimeURLFor(runtimeArch string) string {
	if s.RuntimeURL != "" {
		return s.RuntimeURL
	}
	return DefaultRuntimeBaseURL + "/runtime-" + runtimeArch
}
