package appimage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kem-a/e-webapp/internal/runtime"
	"github.com/kem-a/e-webapp/internal/squashfs"
	"github.com/kem-a/e-webapp/internal/toolexec"
	"github.com/kem-a/e-webapp/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRuntimeURL = "https://example.com/releases/runtime-x86_64"

// fakeFetcher writes a fixed runtime to the cache path.
type fakeFetcher struct {
	content string
	err     error
	calls   atomic.Int32
	block   chan struct{}
}

func (f *fakeFetcher) Ensure(ctx context.Context, url, cachePath string) (*runtime.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(cachePath, []byte(f.content), 0o644); err != nil {
		return nil, err
	}
	return &runtime.Result{URL: url, Path: cachePath, Downloaded: true, Reason: "no cached runtime"}, nil
}

// composerFunc adapts a function to squashfs.Composer.
type composerFunc func(ctx context.Context, dir, out string) error

func (f composerFunc) Compose(ctx context.Context, dir, out string) error {
	return f(ctx, dir, out)
}

func imageComposer(content string) composerFunc {
	return func(ctx context.Context, dir, out string) error {
		return os.WriteFile(out, []byte(content), 0o644)
	}
}

func newRequest(t *testing.T) Request {
	t.Helper()
	root := t.TempDir()
	input := filepath.Join(root, "whatsapp.AppDir")
	require.NoError(t, os.MkdirAll(input, 0o755))
	return Request{
		InputDir:   input,
		OutputPath: filepath.Join(root, "out", "e-webapp-whatsapp.AppImage"),
		WorkDir:    filepath.Join(root, "build"),
	}
}

func TestBuilder_Build(t *testing.T) {
	fetcher := &fakeFetcher{content: "RRRRRRRRRR"}
	b := NewBuilder(fetcher, imageComposer("IIIII"), testRuntimeURL, nil)
	req := newRequest(t)

	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	data, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "RRRRRRRRRRIIIII", string(data))
	assert.Equal(t, int64(15), res.Size)
	assert.True(t, res.Runtime.Downloaded)
	assert.NotEmpty(t, res.BuildID)

	info, err := os.Stat(req.OutputPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100)

	_, err = os.Stat(filepath.Join(req.WorkDir, ImageFileName))
	assert.True(t, os.IsNotExist(err), "intermediate image not removed")

	_, err = os.Stat(filepath.Join(req.WorkDir, "runtime-x86_64"))
	assert.NoError(t, err, "runtime should be cached under the work dir")

	_, err = os.Stat(filepath.Join(req.WorkDir, transaction.LockFileName))
	assert.True(t, os.IsNotExist(err), "lock not released")

	record, err := transaction.Load(filepath.Join(req.WorkDir, transaction.RecordFileName))
	require.NoError(t, err)
	assert.Equal(t, res.BuildID, record.ID)
	assert.True(t, record.Succeeded())
}

func TestBuilder_Build_ComposeFailureAbortsBeforeAssembly(t *testing.T) {
	runner := &toolexec.FakeRunner{Handler: func(cmd toolexec.Command) ([]byte, error) {
		return []byte("FATAL ERROR: bad input"), &toolexec.ToolError{Tool: cmd.Name, Args: cmd.Args, ExitCode: 2}
	}}
	composer := squashfs.New(runner, "", nil)
	b := NewBuilder(&fakeFetcher{content: "RRRRRRRRRR"}, composer, testRuntimeURL, nil)
	req := newRequest(t)

	_, err := b.Build(context.Background(), req)
	require.Error(t, err)

	code, ok := toolexec.ExitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	_, statErr := os.Stat(req.OutputPath)
	assert.True(t, os.IsNotExist(statErr), "artifact must not exist")

	record, err := transaction.Load(filepath.Join(req.WorkDir, transaction.RecordFileName))
	require.NoError(t, err)
	assert.Equal(t, transaction.StateFailed, record.StepState(StepCompose))
	assert.Equal(t, transaction.StatePending, record.StepState(StepAssemble))
}

func TestBuilder_Build_FetchFailureCancelsCompose(t *testing.T) {
	fetchErr := &runtime.RetrievalError{Op: "HEAD", URL: testRuntimeURL, StatusCode: 503}

	var composeCancelled atomic.Bool
	composer := composerFunc(func(ctx context.Context, dir, out string) error {
		select {
		case <-ctx.Done():
			composeCancelled.Store(true)
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return os.WriteFile(out, []byte("I"), 0o644)
		}
	})

	b := NewBuilder(&fakeFetcher{err: fetchErr}, composer, testRuntimeURL, nil)
	req := newRequest(t)

	_, err := b.Build(context.Background(), req)
	require.Error(t, err)

	var retrievalErr *runtime.RetrievalError
	assert.True(t, errors.As(err, &retrievalErr), "expected RetrievalError, got %v", err)
	assert.True(t, composeCancelled.Load(), "compose should observe cancellation")

	_, statErr := os.Stat(req.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuilder_Build_RunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{content: "R", block: release}

	composer := composerFunc(func(ctx context.Context, dir, out string) error {
		// The fetch is still blocked; compose must run anyway.
		close(release)
		return os.WriteFile(out, []byte("I"), 0o644)
	})

	b := NewBuilder(fetcher, composer, testRuntimeURL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := b.Build(ctx, newRequest(t))
	require.NoError(t, err)
}

func TestBuilder_Build_WorkDirLocked(t *testing.T) {
	req := newRequest(t)
	lock, err := transaction.AcquireLock(context.Background(), req.WorkDir, "other")
	require.NoError(t, err)
	defer lock.Release()

	fetcher := &fakeFetcher{content: "R"}
	b := NewBuilder(fetcher, imageComposer("I"), testRuntimeURL, nil)

	_, err = b.Build(context.Background(), req)
	assert.True(t, errors.Is(err, transaction.ErrLockExists), "got %v", err)
	assert.Zero(t, fetcher.calls.Load())
}

func TestBuilder_Build_InvalidRequest(t *testing.T) {
	valid := newRequest(t)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"missing input", func(r *Request) { r.InputDir = "" }},
		{"missing output", func(r *Request) { r.OutputPath = "" }},
		{"missing work dir", func(r *Request) { r.WorkDir = "" }},
		{"input does not exist", func(r *Request) { r.InputDir = filepath.Join(r.WorkDir, "nope") }},
		{"output is a directory", func(r *Request) { r.OutputPath = r.InputDir }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			fetcher := &fakeFetcher{content: "R"}
			_, err := NewBuilder(fetcher, imageComposer("I"), testRuntimeURL, nil).Build(context.Background(), req)
			assert.Error(t, err)
			assert.Zero(t, fetcher.calls.Load())
		})
	}

	t.Run("missing runtime url", func(t *testing.T) {
		_, err := NewBuilder(&fakeFetcher{}, imageComposer("I"), "", nil).Build(context.Background(), newRequest(t))
		assert.Error(t, err)
	})
}

func TestRuntimeFileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{testRuntimeURL, "runtime-x86_64"},
		{"https://mirror.example/runtime-aarch64?token=1", "runtime-aarch64"},
		{"https://mirror.example/", "runtime"},
		{"https://mirror.example", "runtime"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, runtimeFileName(tt.url), tt.url)
	}
}
