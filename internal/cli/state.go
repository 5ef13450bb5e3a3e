// Package cli implements the e-webapp and build-appimage commands.
package cli

import (
	"context"
	"fmt"

	"github.com/kem-a/e-webapp/internal/appimage"
	"github.com/kem-a/e-webapp/internal/config"
	"github.com/kem-a/e-webapp/internal/httpclient"
	"github.com/kem-a/e-webapp/internal/logging"
	"github.com/kem-a/e-webapp/internal/platform"
	"github.com/kem-a/e-webapp/internal/runtime"
	"github.com/kem-a/e-webapp/internal/squashfs"
	"github.com/kem-a/e-webapp/internal/toolexec"
	"go.uber.org/zap"
)

// Options wires the commands to their environment. Zero values select the
// real implementations.
type Options struct {
	Runner   toolexec.Runner
	Detector platform.Detector
	Logger   *zap.Logger
}

// state is built once per invocation, after argument validation.
type state struct {
	opts     Options
	settings *config.Settings
	logger   *zap.Logger
	http     *httpclient.Client
	runner   toolexec.Runner
	detector platform.Detector
}

func newState(opts Options) *state {
	return &state{opts: opts}
}

// setup loads settings and creates the shared clients.
func (s *state) setup() error {
	if s.settings != nil {
		return nil
	}

	settings, err := config.Load()
	if err != nil {
		return err
	}

	logger := s.opts.Logger
	if logger == nil {
		logger, err = logging.New(logging.Config{
			Level:       settings.LogLevel,
			Development: settings.LogDev,
		})
		if err != nil {
			return err
		}
	}

	runner := s.opts.Runner
	if runner == nil {
		runner = toolexec.NewExecRunner(settings.ToolTimeout, logger)
	}
	detector := s.opts.Detector
	if detector == nil {
		detector = platform.NewDetector()
	}

	httpOpts := httpclient.DefaultOptions()
	httpOpts.Timeout = settings.HTTPTimeout
	httpOpts.Retries = settings.HTTPRetries
	httpOpts.Logger = logger

	s.settings = settings
	s.logger = logger
	s.runner = runner
	s.detector = detector
	s.http = httpclient.New(httpOpts)
	return nil
}

// runtimeURL returns the configured runtime or the one published for
// this machine's architecture.
func (s *state) runtimeURL(ctx context.Context) (string, error) {
	if s.settings.RuntimeURL != "" {
		return s.settings.RuntimeURL, nil
	}
	info, err := s.detector.Detect(ctx)
	if err != nil {
		return "", err
	}
	arch, err := info.RuntimeArch()
	if err != nil {
		return "", err
	}
	return s.settings.RuntimeURLFor(arch), nil
}

func (s *state) fetcher() (*runtime.Fetcher, error) {
	opts := []runtime.Option{runtime.WithLogger(s.logger)}
	if s.settings.RuntimeSignatureURL != "" {
		v, err := runtime.NewVerifier(s.settings.RuntimeKeyring)
		if err != nil {
			return nil, fmt.Errorf("load runtime keyring: %w", err)
		}
		opts = append(opts, runtime.WithSignature(s.settings.RuntimeSignatureURL, v))
	}
	return runtime.NewFetcher(s.http, opts...), nil
}

func (s *state) builder(ctx context.Context) (*appimage.Builder, error) {
	url, err := s.runtimeURL(ctx)
	if err != nil {
		return nil, err
	}
	fetcher, err := s.fetcher()
	if err != nil {
		return nil, err
	}
	composer := squashfs.New(s.runner, s.settings.Mksquashfs, s.logger)
	return appimage.NewBuilder(fetcher, composer, url, s.logger), nil
}
