package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// FetcherConfig holds configuration for the media fetcher.
type FetcherConfig struct {
	Timeout  time.Duration // HTTP timeout per download
	TempDir  string        // directory for scratch files; empty means os.TempDir()
	MaxBytes int64         // hard cap on downloaded/decoded size
}

// DefaultFetcherConfig returns default configuration.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:  30 * time.Second,
		MaxBytes: 100 * 1024 * 1024, // 100MB
	}
}

// Fetcher resolves a Reference into an exclusively-owned temp file.
// The caller owns the returned TempFile and must Close it on every path.
type Fetcher struct {
	config     FetcherConfig
	httpClient *http.Client
	log        *log.Helper
}

// NewFetcher creates a new Fetcher.
func NewFetcher(config FetcherConfig, logger log.Logger) *Fetcher {
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultFetcherConfig().MaxBytes
	}
	return &Fetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		log: log.NewHelper(logger),
	}
}

// Fetch resolves ref into a temp file, streaming the body to disk rather
// than buffering it. Any failure removes the partial file before returning.
func (f *Fetcher) Fetch(ctx context.Context, ref Reference) (*TempFile, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.config.TempDir, "media_"+uuid.NewString()+extensionFor(ref.Mime))
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", ErrFetch, err)
	}

	if ref.URL != "" {
		err = f.download(ctx, ref.URL, out)
	} else {
		err = f.decode(ref.Base64, out)
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: flush temp file: %w", ErrFetch, cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return NewTempFile(path), nil
}

func (f *Fetcher) download(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d from %s", ErrFetch, resp.StatusCode, url)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if n > f.config.MaxBytes {
		return fmt.Errorf("%w: media exceeds %d bytes", ErrFetch, f.config.MaxBytes)
	}
	f.log.Debugf("downloaded %d bytes from %s", n, url)
	return nil
}

func (f *Fetcher) decode(payload string, out io.Writer) error {
	dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload))
	n, err := io.Copy(out, io.LimitReader(dec, f.config.MaxBytes+1))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if n > f.config.MaxBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrDecode, f.config.MaxBytes)
	}
	return nil
}

// extensionFor maps a mime hint to a file extension so downstream tooling
// (ffmpeg) can sniff the container if it wants to.
func extensionFor(mime string) string {
	switch mime {
	case "video/mp4", "":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
