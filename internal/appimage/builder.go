package appimage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/kem-a/e-webapp/internal/runtime"
	"github.com/kem-a/e-webapp/internal/squashfs"
	"github.com/kem-a/e-webapp/internal/transaction"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImageFileName is the intermediate squashfs image inside the work dir.
const ImageFileName = "app.squashfs"

// Build step names recorded in the build record.
const (
	StepFetchRuntime = "fetch-runtime"
	StepCompose      = "compose"
	StepAssemble     = "assemble"
)

// Request describes one AppImage build.
type Request struct {
	InputDir   string
	OutputPath string
	// WorkDir holds the runtime cache, the intermediate image and the
	// build lock. One build owns it at a time.
	WorkDir string
	// RuntimeURL overrides the builder's default runtime source.
	RuntimeURL string
}

// Result describes a finished build.
type Result struct {
	BuildID    string
	OutputPath string
	Size       int64
	Runtime    runtime.Result
	Duration   time.Duration
}

// Builder runs fetch and compose concurrently, then assembles the artifact.
type Builder struct {
	fetcher    runtime.Ensurer
	composer   squashfs.Composer
	runtimeURL string
	logger     *zap.Logger
}

// NewBuilder creates a Builder. runtimeURL is used when a Request does not
// name one.
func NewBuilder(fetcher runtime.Ensurer, composer squashfs.Composer, runtimeURL string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		fetcher:    fetcher,
		composer:   composer,
		runtimeURL: runtimeURL,
		logger:     logger,
	}
}

// Build produces req.OutputPath. Any failure in fetching or composing
// aborts before assembly, so no artifact is created.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := b.validate(&req); err != nil {
		return nil, err
	}

	record := transaction.New(transaction.OperationBuildAppImage, StepFetchRuntime, StepCompose, StepAssemble)
	logger := b.logger.With(zap.String("build_id", record.ID))

	lock, err := transaction.AcquireLock(ctx, req.WorkDir, record.ID)
	if err != nil {
		return nil, fmt.Errorf("lock work dir: %w", err)
	}
	defer lock.Release()

	defer func() {
		record.Finish()
		if err := record.Save(req.WorkDir); err != nil {
			logger.Warn("failed to save build record", zap.Error(err))
		}
	}()

	runtimePath := filepath.Join(req.WorkDir, runtimeFileName(req.RuntimeURL))
	imagePath := filepath.Join(req.WorkDir, ImageFileName)

	var fetched *runtime.Result
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		record.Begin(StepFetchRuntime)
		res, err := b.fetcher.Ensure(gctx, req.RuntimeURL, runtimePath)
		if err != nil {
			record.Fail(StepFetchRuntime, err)
			return fmt.Errorf("fetch runtime: %w", err)
		}
		fetched = res
		if res.Downloaded {
			record.Complete(StepFetchRuntime, res.Reason)
		} else {
			record.Skip(StepFetchRuntime, res.Reason)
		}
		return nil
	})

	g.Go(func() error {
		record.Begin(StepCompose)
		if err := b.composer.Compose(gctx, req.InputDir, imagePath); err != nil {
			record.Fail(StepCompose, err)
			return err
		}
		record.Complete(StepCompose, imagePath)
		return nil
	})

	if err := g.Wait(); err != nil {
		os.Remove(imagePath)
		return nil, err
	}

	record.Begin(StepAssemble)
	logger.Info("assembling AppImage", zap.String("output", req.OutputPath))
	if err := Assemble(runtimePath, imagePath, req.OutputPath); err != nil {
		record.Fail(StepAssemble, err)
		os.Remove(imagePath)
		return nil, fmt.Errorf("assemble: %w", err)
	}
	record.Complete(StepAssemble, req.OutputPath)

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	result := &Result{
		BuildID:    record.ID,
		OutputPath: req.OutputPath,
		Size:       info.Size(),
		Duration:   time.Since(start),
	}
	if fetched != nil {
		result.Runtime = *fetched
	}

	logger.Info("AppImage created",
		zap.String("output", result.OutputPath),
		zap.Int64("bytes", result.Size),
		zap.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (b *Builder) validate(req *Request) error {
	if req.InputDir == "" {
		return errors.New("input directory is required")
	}
	if req.OutputPath == "" {
		return errors.New("output file is required")
	}
	if req.WorkDir == "" {
		return errors.New("work directory is required")
	}
	if req.RuntimeURL == "" {
		req.RuntimeURL = b.runtimeURL
	}
	if req.RuntimeURL == "" {
		return errors.New("runtime URL is required")
	}

	info, err := os.Stat(req.InputDir)
	if err != nil {
		return fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input %s is not a directory", req.InputDir)
	}

	if info, err := os.Stat(req.OutputPath); err == nil && info.IsDir() {
		return fmt.Errorf("output %s is a directory", req.OutputPath)
	}
	return nil
}

// runtimeFileName derives the cache file name from the runtime URL,
// e.g. "runtime-x86_64".
func runtimeFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "runtime"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "runtime"
	}
	return name
}
