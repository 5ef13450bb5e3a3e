package webmeta

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/renameio"
	"go.uber.org/zap"
)

// IconFileName is the icon written into an app directory.
const IconFileName = "icon.png"

// IconSource tells where SaveIcon got the icon from.
type IconSource string

const (
	IconDownloaded IconSource = "downloaded"
	IconDefault    IconSource = "default"
)

// SaveIcon downloads iconURL to destPath. When iconURL is empty, the
// download fails, or the payload is not an image, defaultIcon is copied
// instead.
func (s *Scraper) SaveIcon(ctx context.Context, iconURL, destPath, defaultIcon string) (IconSource, error) {
	if iconURL != "" {
		s.logger.Info("downloading icon", zap.String("url", iconURL))
		err := s.downloadIcon(ctx, iconURL, destPath)
		if err == nil {
			return IconDownloaded, nil
		}
		s.logger.Warn("failed to download the icon", zap.String("url", iconURL), zap.Error(err))
	}

	s.logger.Info("using the default icon", zap.String("path", defaultIcon))
	data, err := os.ReadFile(defaultIcon)
	if err != nil {
		return "", fmt.Errorf("read default icon: %w", err)
	}
	if err := renameio.WriteFile(destPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write icon: %w", err)
	}
	return IconDefault, nil
}

func (s *Scraper) downloadIcon(ctx context.Context, iconURL, destPath string) error {
	resp, err := s.http.R().SetContext(ctx).Get(iconURL)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("empty icon")
	}
	if mt := mimetype.Detect(body); !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("icon is %s, not an image", mt.String())
	}

	return renameio.WriteFile(destPath, body, 0o644)
}
