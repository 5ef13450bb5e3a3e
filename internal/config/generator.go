package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
)

// Generator generates Lua app definitions from Go structs.
type Generator struct {
	indent string
	now    func() time.Time
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
		now:    time.Now,
	}
}

// Generate renders app as a Lua definition that ParseString accepts.
func (g *Generator) Generate(app *App) (string, error) {
	if app == nil {
		return "", fmt.Errorf("generate config: nil app")
	}

	var buf bytes.Buffer

	buf.WriteString("-- e-webapp application definition\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().UTC().Format(time.RFC3339))
	buf.WriteString("\n\n")

	buf.WriteString(luaGlobalApp + " = {\n")
	g.writeString(&buf, luaFieldName, app.Name)
	g.writeString(&buf, luaFieldURL, app.URL)
	if app.Description != "" {
		g.writeString(&buf, luaFieldDescription, app.Description)
	}
	if app.ElectronVersion != "" {
		g.writeString(&buf, luaFieldElectronVersion, app.ElectronVersion)
	}
	if app.Wayland {
		g.writeBool(&buf, luaFieldWayland, true)
	}
	if app.AppImage {
		g.writeBool(&buf, luaFieldInstallAppImage, true)
	}
	g.writeList(&buf, luaFieldCategories, app.Categories)
	g.writeList(&buf, luaFieldKeywords, app.Keywords)
	g.writeList(&buf, luaFieldExclude, app.Exclude)
	buf.WriteString("}\n")

	return buf.String(), nil
}

// WriteFile generates app and atomically writes it to dir/AppFileName.
func (g *Generator) WriteFile(dir string, app *App) (string, error) {
	content, err := g.Generate(app)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, AppFileName)
	if err := renameio.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", AppFileName, err)
	}
	return path, nil
}

func (g *Generator) writeString(buf *bytes.Buffer, field, value string) {
	buf.WriteString(g.indent)
	buf.WriteString(field)
	buf.WriteString(" = ")
	buf.WriteString(g.quoteLuaString(value))
	buf.WriteString(",\n")
}

func (g *Generator) writeBool(buf *bytes.Buffer, field string, value bool) {
	fmt.Fprintf(buf, "%s%s = %t,\n", g.indent, field, value)
}

func (g *Generator) writeList(buf *bytes.Buffer, field string, values []string) {
	if len(values) == 0 {
		return
	}
	buf.WriteString(g.indent)
	buf.WriteString(field)
	buf.WriteString(" = {\n")
	for _, v := range values {
		buf.WriteString(g.indent)
		buf.WriteString(g.indent)
		buf.WriteString(g.quoteLuaString(v))
		buf.WriteString(",\n")
	}
	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
