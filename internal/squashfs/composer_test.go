package squashfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kem-a/e-webapp/internal/toolexec"
)

// writesImage fakes mksquashfs by writing content to its output argument.
func writesImage(content string) func(cmd toolexec.Command) ([]byte, error) {
	return func(cmd toolexec.Command) ([]byte, error) {
		return nil, os.WriteFile(cmd.Args[1], []byte(content), 0o644)
	}
}

func TestMksquashfs_Compose(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "build", "app.squashfs")

	runner := &toolexec.FakeRunner{Handler: writesImage("IIIII")}
	c := New(runner, "", nil)

	if err := c.Compose(context.Background(), dir, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := runner.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "mksquashfs" {
		t.Errorf("tool = %q, want mksquashfs", calls[0].Name)
	}
	wantArgs := []string{dir, out, "-comp", "gzip"}
	if !reflect.DeepEqual(calls[0].Args, wantArgs) {
		t.Errorf("args = %v, want %v", calls[0].Args, wantArgs)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("image not created: %v", err)
	}
	if string(data) != "IIIII" {
		t.Errorf("image = %q", data)
	}
}

func TestMksquashfs_Compose_RemovesStaleImage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "app.squashfs")
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &toolexec.FakeRunner{Handler: func(cmd toolexec.Command) ([]byte, error) {
		if _, err := os.Stat(cmd.Args[1]); !os.IsNotExist(err) {
			t.Error("stale image still present when mksquashfs runs")
		}
		return writesImage("fresh")(cmd)
	}}

	if err := New(runner, "", nil).Compose(context.Background(), dir, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMksquashfs_Compose_ToolFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "app.squashfs")

	runner := &toolexec.FakeRunner{Handler: func(cmd toolexec.Command) ([]byte, error) {
		os.WriteFile(cmd.Args[1], []byte("partial"), 0o644)
		return nil, &toolexec.ToolError{Tool: cmd.Name, Args: cmd.Args, ExitCode: 2, Output: "FATAL ERROR"}
	}}

	err := New(runner, "/opt/bin/mksquashfs", nil).Compose(context.Background(), dir, out)
	if err == nil {
		t.Fatal("expected error but got none")
	}
	if code, ok := toolexec.ExitCode(err); !ok || code != 2 {
		t.Errorf("ExitCode = %d, %v; want 2, true", code, ok)
	}
	if !errors.Is(err, toolexec.ErrToolFailed) {
		t.Errorf("expected ErrToolFailed, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("partial image left behind")
	}
	if got := runner.Calls()[0].Name; got != "/opt/bin/mksquashfs" {
		t.Errorf("tool = %q", got)
	}
}

func TestMksquashfs_Compose_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input func(t *testing.T) string
	}{
		{
			name:  "missing directory",
			input: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
		},
		{
			name: "regular file",
			input: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "file")
				os.WriteFile(p, []byte("x"), 0o644)
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &toolexec.FakeRunner{}
			err := New(runner, "", nil).Compose(context.Background(), tt.input(t), filepath.Join(t.TempDir(), "out"))
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if len(runner.Calls()) != 0 {
				t.Error("mksquashfs must not run for invalid input")
			}
		})
	}
}

func TestMksquashfs_Compose_NoOutput(t *testing.T) {
	runner := &toolexec.FakeRunner{}
	err := New(runner, "", nil).Compose(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error when the tool writes nothing")
	}
}
