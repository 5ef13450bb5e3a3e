// Package webmeta scrapes the title, description, keywords and best icon
// of a web page, the way the desktop entry and launcher icon need them.
package webmeta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/google/renameio"
	"github.com/kem-a/e-webapp/internal/httpclient"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// FileName is where Save writes metadata inside an app directory.
const FileName = "webpage_meta.json"

// MaxHTMLSize limits the page body that gets parsed.
const MaxHTMLSize = 10 * 1024 * 1024

// Metadata is what the packager needs to know about a page.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	IconURL     string `json:"icon_url"`
}

type manifest struct {
	Icons []manifestIcon `json:"icons"`
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
}

// Scraper fetches metadata and icons over HTTP.
type Scraper struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a Scraper using the resty half of client.
func New(client *httpclient.Client, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{http: client.Resty, logger: logger}
}

// Fetch collects metadata for pageURL. An unreachable page or a missing
// manifest yields empty fields, not an error; only an invalid URL fails.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Metadata, error) {
	page, err := url.Parse(pageURL)
	if err != nil || page.Scheme == "" || page.Host == "" {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}

	md := &Metadata{}

	doc, err := s.loadPage(ctx, pageURL)
	if err != nil {
		s.logger.Warn("failed to fetch the webpage", zap.String("url", pageURL), zap.Error(err))
	} else {
		md.Title = strings.TrimSpace(doc.Find("title").First().Text())
		md.Description = metaContent(doc, "description")
		md.Keywords = metaContent(doc, "keywords")
	}

	m, manifestURL := s.manifestFromRoot(ctx, page)
	if m == nil && doc != nil {
		m, manifestURL = s.manifestFromPage(ctx, doc, page)
	}
	if m != nil {
		md.IconURL = largestIcon(m, manifestURL)
	}
	if md.IconURL == "" {
		s.logger.Info("no icons found in the manifest", zap.String("url", pageURL))
	}

	return md, nil
}

func (s *Scraper) loadPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := s.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) > MaxHTMLSize {
		return nil, fmt.Errorf("page exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return LoadHTML(body, resp.Header().Get("Content-Type"))
}

// LoadHTML parses data as HTML, converting it to UTF-8 using the charset
// from contentType or, when that has none, the detected one.
func LoadHTML(data []byte, contentType string) (*goquery.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("html content required")
	}

	if !hasCharset(contentType) {
		contentType = "text/html; charset=" + DetectCharset(data)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return goquery.NewDocumentFromReader(bytes.NewReader(data))
	}
	return goquery.NewDocumentFromReader(utf8Reader)
}

// DetectCharset guesses the charset of data, defaulting to utf-8.
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func hasCharset(contentType string) bool {
	if contentType == "" {
		return false
	}
	_, params, err := mime.ParseMediaType(contentType)
	return err == nil && params["charset"] != ""
}

func metaContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
	return strings.TrimSpace(content)
}

// manifestFromRoot tries <scheme>://<host>/manifest.json.
func (s *Scraper) manifestFromRoot(ctx context.Context, page *url.URL) (*manifest, string) {
	rootURL := (&url.URL{Scheme: page.Scheme, Host: page.Host, Path: "/manifest.json"}).String()
	m, err := s.fetchManifest(ctx, rootURL)
	if err != nil {
		s.logger.Debug("no manifest at site root", zap.String("url", rootURL), zap.Error(err))
		return nil, ""
	}
	s.logger.Info("manifest found at the root", zap.String("url", rootURL))
	return m, rootURL
}

// manifestFromPage follows <link rel="manifest">.
func (s *Scraper) manifestFromPage(ctx context.Context, doc *goquery.Document, page *url.URL) (*manifest, string) {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		for _, r := range strings.Fields(rel) {
			if strings.EqualFold(r, "manifest") {
				href, _ = sel.Attr("href")
				return false
			}
		}
		return true
	})
	if href == "" {
		return nil, ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, ""
	}
	manifestURL := page.ResolveReference(ref).String()

	m, err := s.fetchManifest(ctx, manifestURL)
	if err != nil {
		s.logger.Warn("failed to fetch the manifest", zap.String("url", manifestURL), zap.Error(err))
		return nil, ""
	}
	s.logger.Info("manifest found in page", zap.String("url", manifestURL))
	return m, manifestURL
}

func (s *Scraper) fetchManifest(ctx context.Context, manifestURL string) (*manifest, error) {
	resp, err := s.http.R().SetContext(ctx).Get(manifestURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	var m manifest
	if err := json.Unmarshal(resp.Body(), &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// largestIcon picks the icon whose first declared width is largest; icons
// without sizes count as 0 and the first of equal widths wins. The src is
// resolved against the manifest URL.
func largestIcon(m *manifest, manifestURL string) string {
	if len(m.Icons) == 0 {
		return ""
	}

	best, bestWidth := -1, -1
	for i, icon := range m.Icons {
		if icon.Src == "" {
			continue
		}
		if w := iconWidth(icon.Sizes); w > bestWidth {
			best, bestWidth = i, w
		}
	}
	if best < 0 {
		return ""
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(m.Icons[best].Src)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func iconWidth(sizes string) int {
	first, _, _ := strings.Cut(strings.TrimSpace(sizes), "x")
	w, err := strconv.Atoi(first)
	if err != nil {
		return 0
	}
	return w
}

// Save writes md as indented JSON to dir/FileName.
func (md *Metadata) Save(dir string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(md); err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", FileName, err)
	}
	return path, nil
}

// Load reads metadata written by Save.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &md, nil
}
