// Package staging installs the npm dependencies of the Electron shell and
// turns a prepared app directory into an unpacked Linux build.
package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kem-a/e-webapp/internal/toolexec"
	"go.uber.org/zap"
)

// ErrNPMNotFound is returned when npm exists neither on the host nor in a
// toolbox container.
var ErrNPMNotFound = errors.New("npm does not exist on host system or in toolbox; install npm and nodejs")

// Mode says where npm runs.
type Mode string

const (
	ModeHost    Mode = "host"
	ModeToolbox Mode = "toolbox"
)

// Packages installed into the staging directory. The electron entry is
// completed with the requested version.
var (
	devPackages     = []string{"electron-builder"}
	runtimePackages = []string{"electron-window-state", "@ghostery/adblocker-electron"}
)

// Stager runs npm in a dependency staging directory shared across builds.
type Stager struct {
	runner   toolexec.Runner
	dir      string
	lookPath func(string) (string, bool)
	logger   *zap.Logger
}

// New creates a Stager using dir as the staging directory.
func New(runner toolexec.Runner, dir string, logger *zap.Logger) *Stager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stager{
		runner:   runner,
		dir:      dir,
		lookPath: toolexec.LookPath,
		logger:   logger,
	}
}

// Dir returns the staging directory.
func (s *Stager) Dir() string {
	return s.dir
}

// Detect finds npm on the host, then inside toolbox.
func (s *Stager) Detect(ctx context.Context) (Mode, error) {
	if _, ok := s.lookPath("npm"); ok {
		s.logger.Info("npm exists on host system")
		return ModeHost, nil
	}
	if _, ok := s.lookPath("toolbox"); ok {
		_, err := s.runner.Run(ctx, toolexec.Command{Name: "toolbox", Args: []string{"run", "which", "npm"}})
		if err == nil {
			s.logger.Info("npm exists in toolbox")
			return ModeToolbox, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.logger.Debug("npm not found in toolbox", zap.Error(err))
	}
	return "", ErrNPMNotFound
}

// InstallCommands returns the npm argument lists run by Install. An empty
// version means latest.
func InstallCommands(electronVersion string) [][]string {
	if electronVersion == "" {
		electronVersion = "latest"
	}
	cmds := [][]string{{"install", "electron@" + electronVersion, "--save-dev"}}
	for _, p := range devPackages {
		cmds = append(cmds, []string{"install", p, "--save-dev"})
	}
	for _, p := range runtimePackages {
		cmds = append(cmds, []string{"install", "--save", p})
	}
	return cmds
}

// Install detects npm and installs every package into the staging
// directory, stopping at the first failure.
func (s *Stager) Install(ctx context.Context, electronVersion string) (Mode, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	mode, err := s.Detect(ctx)
	if err != nil {
		return "", err
	}

	for _, args := range InstallCommands(electronVersion) {
		cmd := s.command(mode, s.dir, "npm", args...)
		s.logger.Info("installing npm package", zap.String("cmd", cmd.String()), zap.String("dir", s.dir))
		if _, err := s.runner.Run(ctx, cmd); err != nil {
			return "", fmt.Errorf("npm %s: %w", args[1], err)
		}
	}
	return mode, nil
}

// BuildUnpacked runs electron-builder in appDir, producing
// dist/linux-unpacked.
func (s *Stager) BuildUnpacked(ctx context.Context, mode Mode, appDir string) (string, error) {
	cmd := s.command(mode, appDir, "npx", "electron-builder", "--linux", "--dir")
	s.logger.Info("building unpacked app", zap.String("cmd", cmd.String()), zap.String("dir", appDir))
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("electron-builder: %w", err)
	}

	unpacked := filepath.Join(appDir, "dist", "linux-unpacked")
	if info, err := os.Stat(unpacked); err != nil || !info.IsDir() {
		return "", fmt.Errorf("electron-builder produced no %s", unpacked)
	}
	return unpacked, nil
}

func (s *Stager) command(mode Mode, dir, name string, args ...string) toolexec.Command {
	if mode == ModeToolbox {
		return toolexec.Command{
			Name: "toolbox",
			Args: append([]string{"run", name}, args...),
			Dir:  dir,
		}
	}
	return toolexec.Command{Name: name, Args: args, Dir: dir}
}
