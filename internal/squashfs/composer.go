// Package squashfs turns a directory tree into a gzip-compressed squashfs
// image by invoking mksquashfs.
package squashfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kem-a/e-webapp/internal/toolexec"
	"go.uber.org/zap"
)

// DefaultTool is the mksquashfs executable looked up on PATH.
const DefaultTool = "mksquashfs"

// Compression is the compressor the AppImage runtime expects.
const Compression = "gzip"

// Composer builds a filesystem image from a directory.
type Composer interface {
	Compose(ctx context.Context, dir, out string) error
}

// Mksquashfs is the Composer backed by the mksquashfs tool.
type Mksquashfs struct {
	runner toolexec.Runner
	tool   string
	logger *zap.Logger
}

// New creates a Mksquashfs composer. An empty tool means DefaultTool.
func New(runner toolexec.Runner, tool string, logger *zap.Logger) *Mksquashfs {
	if tool == "" {
		tool = DefaultTool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mksquashfs{runner: runner, tool: tool, logger: logger}
}

// Args returns the mksquashfs argument list for dir and out.
func Args(dir, out string) []string {
	return []string{dir, out, "-comp", Compression}
}

// Compose runs `mksquashfs <dir> <out> -comp gzip`. A non-zero exit is
// returned as a *toolexec.ToolError carrying the exit code.
func (m *Mksquashfs) Compose(ctx context.Context, dir, out string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat input dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input %s is not a directory", dir)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	// mksquashfs appends to an existing image instead of replacing it.
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale image: %w", err)
	}

	m.logger.Info("creating squashfs image",
		zap.String("dir", dir),
		zap.String("out", out),
		zap.String("comp", Compression),
	)

	if _, err := m.runner.Run(ctx, toolexec.Command{Name: m.tool, Args: Args(dir, out)}); err != nil {
		os.Remove(out)
		return fmt.Errorf("compose image: %w", err)
	}

	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%s produced no image: %w", m.tool, err)
	}
	return nil
}
