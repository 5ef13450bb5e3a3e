package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kem-a/e-webapp/internal/platform"
)

type fakeDetector struct {
	info *platform.Info
	err  error
}

func (f *fakeDetector) Detect(ctx context.Context) (*platform.Info, error) {
	return f.info, f.err
}

func TestParser_ParseString(t *testing.T) {
	fedora := &fakeDetector{info: &platform.Info{
		OS:       "linux",
		Arch:     "amd64",
		ArchRaw:  "amd64",
		Platform: "fedora",
		Family:   "fedora",
		Version:  "40",
	}}

	tests := []struct {
		name     string
		detector platform.Detector
		code     string
		want     *App
		wantErr  bool
	}{
		{
			name: "minimal",
			code: `ewebapp = { name = "WhatsApp", url = "https://web.whatsapp.com" }`,
			want: &App{Name: "WhatsApp", URL: "https://web.whatsapp.com"},
		},
		{
			name: "all fields",
			code: `
				ewebapp = {
					name = "Slack",
					url = "https://app.slack.com",
					description = "Team chat",
					wayland = true,
					appimage = true,
					electron_version = "31.2.0",
					categories = { "Chat", "Office" },
					keywords = { "team" },
					exclude = { "**/*.map", "locales/*.pak" },
				}
			`,
			want: &App{
				Name:            "Slack",
				URL:             "https://app.slack.com",
				Description:     "Team chat",
				Wayland:         true,
				AppImage:        true,
				ElectronVersion: "31.2.0",
				Categories:      []string{"Chat", "Office"},
				Keywords:        []string{"team"},
				Exclude:         []string{"**/*.map", "locales/*.pak"},
			},
		},
		{
			name:     "platform conditionals",
			detector: fedora,
			code: `
				ewebapp = {
					name = "Teams",
					url = "https://teams.microsoft.com",
					wayland = platform.is_fedora_family,
					keywords = { "work", platform.when(platform.is_debian_family, "debian") },
				}
			`,
			want: &App{
				Name:     "Teams",
				URL:      "https://teams.microsoft.com",
				Wayland:  true,
				Keywords: []string{"work"},
			},
		},
		{
			name: "non-string list entries ignored",
			code: `ewebapp = { name = "A", url = "https://a.example", keywords = { "x", 42, true } }`,
			want: &App{Name: "A", URL: "https://a.example", Keywords: []string{"x"}},
		},
		{
			name:    "missing table",
			code:    `app = { name = "A" }`,
			wantErr: true,
		},
		{
			name:    "syntax error",
			code:    `ewebapp = {`,
			wantErr: true,
		},
		{
			name:    "validation failure",
			code:    `ewebapp = { name = "A", url = "ftp://a.example" }`,
			wantErr: true,
		},
		{
			name:    "sandbox violation",
			code:    `os.execute("true"); ewebapp = { name = "A", url = "https://a.example" }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(tt.detector)
			got, err := parser.ParseString(context.Background(), tt.code)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("expected *ParseError, got %T: %v", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseString() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParser_DetectorFailure(t *testing.T) {
	parser := NewParser(&fakeDetector{err: errors.New("no platform")})
	_, err := parser.ParseString(context.Background(), `ewebapp = { name = "A", url = "https://a.example" }`)
	if err == nil {
		t.Fatal("expected error but got none")
	}
	if !strings.Contains(err.Error(), "platform detection failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.lua")
	if err := os.WriteFile(good, []byte(`ewebapp = { name = "A", url = "https://a.example" }`), 0o644); err != nil {
		t.Fatal(err)
	}
	app, err := NewParser(nil).ParseFile(context.Background(), good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Name != "A" {
		t.Errorf("Name = %q, want %q", app.Name, "A")
	}

	big := filepath.Join(dir, "big.lua")
	if err := os.WriteFile(big, make([]byte, MaxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewParser(nil).ParseFile(context.Background(), big); err == nil {
		t.Error("expected error for oversized file but got none")
	}

	if _, err := NewParser(nil).ParseFile(context.Background(), filepath.Join(dir, "missing.lua")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestFormatError(t *testing.T) {
	err := &ParseError{Message: "Lua syntax error", Detail: "line 1: unexpected EOF\nstack traceback:\n\t[G]: ?"}

	short := FormatError(err, false)
	if strings.Contains(short, "stack traceback") {
		t.Errorf("non-verbose output contains traceback: %q", short)
	}
	if !strings.HasPrefix(short, "Lua syntax error: line 1") {
		t.Errorf("FormatError() = %q", short)
	}

	verbose := FormatError(err, true)
	if !strings.Contains(verbose, "stack traceback") {
		t.Errorf("verbose output missing detail: %q", verbose)
	}

	if got := FormatError(errors.New("plain"), false); got != "plain" {
		t.Errorf("FormatError(plain) = %q", got)
	}
}
