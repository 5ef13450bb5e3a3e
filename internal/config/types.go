// Package config loads e-webapp's settings from the environment and
// parses app definitions written in a sandboxed Lua dialect.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// App describes one web page packaged as a desktop application.
type App struct {
	// Display name, e.g. "WhatsApp"
	Name string `json:"name"`

	// Page the application wraps
	URL string `json:"url"`

	// Optional page description used for the desktop entry comment
	Description string `json:"description,omitempty"`

	// Add Wayland flags to the launcher
	Wayland bool `json:"wayland,omitempty"`

	// Electron version pinned at staging time; empty means latest
	ElectronVersion string `json:"electron_version,omitempty"`

	// Build a portable AppImage instead of a native install
	AppImage bool `json:"appimage,omitempty"`

	// Extra desktop categories appended to the defaults
	Categories []string `json:"categories,omitempty"`

	// Extra desktop keywords appended to the defaults
	Keywords []string `json:"keywords,omitempty"`

	// Glob patterns (doublestar syntax) skipped when copying the unpacked app
	Exclude []string `json:"exclude,omitempty"`
}

// LowerName is the identifier used in file names, executables and
// install paths.
func (a *App) LowerName() string {
	return strings.ToLower(a.Name)
}

var (
	appNamePattern         = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	electronVersionPattern = regexp.MustCompile(`^(latest|v?[0-9]+(\.[0-9]+){0,2}([-.][0-9A-Za-z.]+)?)$`)
)

// Validate checks an App for values that would produce a broken build.
func (a *App) Validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "name cannot be empty"}
	}
	if len(a.Name) > MaxNameLength {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("name too long (%d chars, max %d)", len(a.Name), MaxNameLength),
		}
	}
	if !appNamePattern.MatchString(a.Name) {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid name %q (letters, digits, '.', '_' and '-' only)", a.Name),
		}
	}

	if err := ValidateURL(a.URL); err != nil {
		return &ValidationError{Field: "url", Message: err.Error()}
	}

	if a.ElectronVersion != "" && !electronVersionPattern.MatchString(a.ElectronVersion) {
		return &ValidationError{
			Field:   "electron_version",
			Message: fmt.Sprintf("invalid version %q", a.ElectronVersion),
		}
	}

	lists := []struct {
		field  string
		values []string
	}{
		{luaFieldCategories, a.Categories},
		{luaFieldKeywords, a.Keywords},
		{luaFieldExclude, a.Exclude},
	}
	for _, l := range lists {
		if len(l.values) > MaxListEntries {
			return &ValidationError{
				Field:   l.field,
				Message: fmt.Sprintf("too many entries (%d), maximum is %d", len(l.values), MaxListEntries),
			}
		}
		for i, v := range l.values {
			if err := validateListEntry(v); err != nil {
				return &ValidationError{
					Field:   fmt.Sprintf("%s[%d]", l.field, i),
					Message: err.Error(),
				}
			}
		}
	}

	return nil
}

// ValidateURL requires an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q (expected http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// validateListEntry rejects entries that would corrupt a desktop file
// line, such as separators or control characters.
func validateListEntry(v string) error {
	if v == "" {
		return fmt.Errorf("entry cannot be empty")
	}
	if len(v) > MaxEntryLength {
		return fmt.Errorf("entry too long (%d chars, max %d)", len(v), MaxEntryLength)
	}
	if strings.ContainsAny(v, ";\n\r\x00") {
		return fmt.Errorf("entry %q contains forbidden characters", v)
	}
	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}
