// Package easylist keeps the ad-block filter list bundled with each app
// reasonably fresh.
package easylist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/renameio"
	"github.com/kem-a/e-webapp/internal/httpclient"
	"go.uber.org/zap"
)

const (
	DefaultURL = "https://easylist.to/easylist/easylist.txt"
	FileName   = "easylist.txt"
	MaxAge     = 10 * 24 * time.Hour
)

// Refresher downloads the filter list when the local copy is missing or old.
type Refresher struct {
	http   *resty.Client
	url    string
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithURL overrides the list location.
func WithURL(url string) Option {
	return func(r *Refresher) { r.url = url }
}

// WithMaxAge overrides how old the local copy may get.
func WithMaxAge(d time.Duration) Option {
	return func(r *Refresher) { r.maxAge = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Refresher) { r.logger = logger }
}

// New creates a Refresher.
func New(client *httpclient.Client, opts ...Option) *Refresher {
	r := &Refresher{
		http:   client.Resty,
		url:    DefaultURL,
		maxAge: MaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Stale reports whether path is missing or older than the maximum age.
func (r *Refresher) Stale(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", FileName, err)
	}
	return r.now().Sub(info.ModTime()) > r.maxAge, nil
}

// Refresh downloads the list to path when Stale says so and reports
// whether it did. The previous copy is kept when the download fails.
func (r *Refresher) Refresh(ctx context.Context, path string) (bool, error) {
	stale, err := r.Stale(path)
	if err != nil {
		return false, err
	}
	if !stale {
		r.logger.Debug("easylist is up to date", zap.String("path", path))
		return false, nil
	}

	r.logger.Info("downloading easylist", zap.String("url", r.url))
	resp, err := r.http.R().SetContext(ctx).Get(r.url)
	if err != nil {
		return false, fmt.Errorf("download %s: %w", FileName, err)
	}
	if !resp.IsSuccess() {
		return false, fmt.Errorf("download %s: unexpected status %d", FileName, resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return false, fmt.Errorf("download %s: empty response", FileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := renameio.WriteFile(path, resp.Body(), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", FileName, err)
	}
	r.logger.Info("easylist updated", zap.String("path", path), zap.Int("bytes", len(resp.Body())))
	return true, nil
}
