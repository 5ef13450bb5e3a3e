package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kem-a/e-webapp/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// MaxFileSize bounds the size of a Lua app definition.
const MaxFileSize = 64 * 1024

// Parser parses Lua app definitions with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile reads and parses a Lua app definition from disk.
func (p *Parser) ParseFile(ctx context.Context, path string) (*App, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, maximum is %d", path, info.Size(), MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua app definition from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*App, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractApp(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractApp reads the global "ewebapp" table.
func extractApp(L *lua.LState) (*App, error) {
	global := L.GetGlobal(luaGlobalApp)
	if global.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'ewebapp' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}
	table := global.(*lua.LTable)

	app := &App{
		Name:            getString(table, luaFieldName),
		URL:             getString(table, luaFieldURL),
		Description:     getString(table, luaFieldDescription),
		ElectronVersion: getString(table, luaFieldElectronVersion),
		Wayland:         getBool(table, luaFieldWayland),
		AppImage:        getBool(table, luaFieldInstallAppImage),
		Categories:      getStrings(table, luaFieldCategories),
		Keywords:        getStrings(table, luaFieldKeywords),
		Exclude:         getStrings(table, luaFieldExclude),
	}

	if err := app.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return app, nil
}

func getString(table *lua.LTable, field string) string {
	if v := table.RawGetString(field); v.Type() == lua.LTString {
		return v.String()
	}
	return ""
}

func getBool(table *lua.LTable, field string) bool {
	if v := table.RawGetString(field); v.Type() == lua.LTBool {
		return bool(v.(lua.LBool))
	}
	return false
}

// getStrings extracts an array of strings, skipping nil and non-string
// values left behind by platform conditionals.
func getStrings(table *lua.LTable, field string) []string {
	v := table.RawGetString(field)
	if v.Type() != lua.LTTable {
		return nil
	}

	var out []string
	v.(*lua.LTable).ForEach(func(_, value lua.LValue) {
		if value.Type() != lua.LTString {
			return
		}
		out = append(out, value.String())
	})
	return out
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
