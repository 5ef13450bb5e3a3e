// Package runtime keeps a local copy of the AppImage runtime binary up to
// date. Freshness is decided by comparing the server's Last-Modified
// header with the cached file's modification time.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kem-a/e-webapp/internal/httpclient"
	"go.uber.org/zap"
)

// maxSignatureSize bounds a detached signature download.
const maxSignatureSize = 64 * 1024

// Ensurer makes a runtime binary available at a local path.
type Ensurer interface {
	Ensure(ctx context.Context, url, cachePath string) (*Result, error)
}

// Result describes the outcome of Ensure.
type Result struct {
	URL            string
	Path           string
	Downloaded     bool
	Size           int64
	RemoteModified time.Time // zero when the server sent no Last-Modified
	Reason         string
}

// RetrievalError reports a failed HEAD or GET against the runtime source.
type RetrievalError struct {
	Op         string // "HEAD" or "GET"
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("runtime %s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("runtime %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

var errEmptyBody = errors.New("empty response body")

// Fetcher downloads the runtime when the cached copy is missing or stale.
type Fetcher struct {
	client       *httpclient.Client
	logger       *zap.Logger
	verifier     *Verifier
	signatureURL string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithSignature enables detached OpenPGP verification of every download.
func WithSignature(signatureURL string, v *Verifier) Option {
	return func(f *Fetcher) {
		f.signatureURL = signatureURL
		f.verifier = v
	}
}

// NewFetcher creates a Fetcher using client for all requests.
func NewFetcher(client *httpclient.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ensure guarantees a usable runtime at cachePath. It downloads iff there
// is no cached copy, the server gives no Last-Modified, or the remote copy
// is strictly newer than the cached one. Network failures are returned as
// *RetrievalError and never mistaken for "up to date".
func (f *Fetcher) Ensure(ctx context.Context, url, cachePath string) (*Result, error) {
	remote, known, err := f.lastModified(ctx, url)
	if err != nil {
		return nil, err
	}

	local, err := localModTime(cachePath)
	if err != nil {
		return nil, err
	}

	result := &Result{URL: url, Path: cachePath}
	if known {
		result.RemoteModified = remote
	}

	download, reason := needsDownload(local, remote, known)
	result.Reason = reason
	if !download {
		f.logger.Info("using cached runtime", zap.String("path", cachePath), zap.String("reason", reason))
		return result, nil
	}

	f.logger.Info("downloading runtime", zap.String("url", url), zap.String("reason", reason))
	size, err := f.download(ctx, url, cachePath)
	if err != nil {
		return nil, err
	}

	if f.verifier != nil && f.signatureURL != "" {
		if err := f.verify(ctx, cachePath); err != nil {
			os.Remove(cachePath)
			return nil, err
		}
	}

	if known {
		if err := os.Chtimes(cachePath, remote, remote); err != nil {
			return nil, fmt.Errorf("set runtime mtime: %w", err)
		}
	}

	result.Downloaded = true
	result.Size = size
	f.logger.Info("runtime downloaded", zap.String("path", cachePath), zap.Int64("bytes", size))
	return result, nil
}

// needsDownload applies the freshness rule. A nil local time means no
// cached copy exists.
func needsDownload(local *time.Time, remote time.Time, remoteKnown bool) (bool, string) {
	switch {
	case !remoteKnown:
		return true, "remote timestamp unavailable"
	case local == nil:
		return true, "no cached runtime"
	case remote.After(*local):
		return true, "newer runtime available"
	default:
		return false, "cached runtime is current"
	}
}

func localModTime(path string) (*time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat cached runtime: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cached runtime %s is a directory", path)
	}
	mt := info.ModTime()
	return &mt, nil
}

// lastModified issues a HEAD request. known is false when the header is
// absent or unparseable.
func (f *Fetcher) lastModified(ctx context.Context, url string) (time.Time, bool, error) {
	req, err := f.client.NewRequest(ctx, http.MethodHead, url, nil)
	if err != nil {
		return time.Time{}, false, &RetrievalError{Op: http.MethodHead, URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return time.Time{}, false, &RetrievalError{Op: http.MethodHead, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return time.Time{}, false, &RetrievalError{Op: http.MethodHead, URL: url, StatusCode: resp.StatusCode}
	}

	header := resp.Header.Get("Last-Modified")
	if header == "" {
		return time.Time{}, false, nil
	}
	t, err := http.ParseTime(header)
	if err != nil {
		f.logger.Warn("unparseable Last-Modified header", zap.String("value", header), zap.Error(err))
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// download GETs url into destPath through a temporary file and rename.
func (f *Fetcher) download(ctx context.Context, url, destPath string) (int64, error) {
	retrievalErr := func(status int, err error) error {
		return &RetrievalError{Op: http.MethodGet, URL: url, StatusCode: status, Err: err}
	}

	req, err := f.client.NewRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, retrievalErr(0, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, retrievalErr(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, retrievalErr(resp.StatusCode, nil)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create runtime dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		return 0, retrievalErr(0, fmt.Errorf("copy response body: %w", err))
	}
	if n == 0 {
		return 0, retrievalErr(0, errEmptyBody)
	}

	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return n, nil
}

// fetchSignature downloads the detached signature into memory.
func (f *Fetcher) fetchSignature(ctx context.Context) ([]byte, error) {
	req, err := f.client.NewRequest(ctx, http.MethodGet, f.signatureURL, nil)
	if err != nil {
		return nil, &RetrievalError{Op: http.MethodGet, URL: f.signatureURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RetrievalError{Op: http.MethodGet, URL: f.signatureURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RetrievalError{Op: http.MethodGet, URL: f.signatureURL, StatusCode: resp.StatusCode}
	}

	sig, err := io.ReadAll(io.LimitReader(resp.Body, maxSignatureSize))
	if err != nil {
		return nil, &RetrievalError{Op: http.MethodGet, URL: f.signatureURL, Err: err}
	}
	if len(sig) == 0 {
		return nil, &RetrievalError{Op: http.MethodGet, URL: f.signatureURL, Err: errEmptyBody}
	}
	return sig, nil
}

func (f *Fetcher) verify(ctx context.Context, path string) error {
	sig, err := f.fetchSignature(ctx)
	if err != nil {
		return err
	}
	if err := f.verifier.VerifyFile(path, sig); err != nil {
		return fmt.Errorf("verify runtime signature: %w", err)
	}
	f.logger.Info("runtime signature verified", zap.String("path", path))
	return nil
}
