package appimage

import (
	"context"
	"fmt"
	"os"

	"github.com/kem-a/e-webapp/internal/toolexec"
	"go.uber.org/zap"
)

// DefaultPackagingTool builds an AppImage from an AppDir.
const DefaultPackagingTool = "appimagetool"

// Packager wraps appimagetool.
type Packager struct {
	runner toolexec.Runner
	tool   string
	logger *zap.Logger
}

// NewPackager creates a Packager. An empty tool means DefaultPackagingTool.
func NewPackager(runner toolexec.Runner, tool string, logger *zap.Logger) *Packager {
	if tool == "" {
		tool = DefaultPackagingTool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packager{runner: runner, tool: tool, logger: logger}
}

// Package runs `appimagetool <appdir> <out>` and checks that out exists.
func (p *Packager) Package(ctx context.Context, appDir, out string) error {
	if info, err := os.Stat(appDir); err != nil {
		return fmt.Errorf("stat AppDir: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("AppDir %s is not a directory", appDir)
	}

	p.logger.Info("packaging AppImage", zap.String("appdir", appDir), zap.String("out", out))

	if _, err := p.runner.Run(ctx, toolexec.Command{Name: p.tool, Args: []string{appDir, out}}); err != nil {
		return fmt.Errorf("package AppImage: %w", err)
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%s produced no AppImage: %w", p.tool, err)
	}
	return nil
}
