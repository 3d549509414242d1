package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxImageBytes bounds a single download.
const maxImageBytes = 50 << 20

// ErrNotAnImage is returned when the remote content cannot be decoded as an image.
var ErrNotAnImage = errors.New("media: content is not a decodable image")

// Download is a remote image stored on local disk.
type Download struct {
	LocalPath string
	MimeType  string
	Width     int
	Height    int
}

// Fetcher retrieves a remote image into local storage.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Download, error)
}

// FetcherConfig configures an HTTPFetcher.
type FetcherConfig struct {
	Dir            string
	MaxDimension   int // 0 keeps the original size
	JPEGQuality    int
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
	UserAgent      string
}

// HTTPFetcher downloads images over HTTP, re-encodes them as JPEG bounded to a
// maximum dimension and stores them under a generated name.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     FetcherConfig
}

// NewHTTPFetcher creates an HTTPFetcher. The limiter is shared by all fetches.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "catalogctl/1.0"
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		cfg:     cfg,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Download, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("media: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("media: build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media: fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", url, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("media: %s exceeds %d bytes", url, maxImageBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAnImage, url, err)
	}

	bounds := img.Bounds()
	if limit := f.cfg.MaxDimension; limit > 0 && (bounds.Dx() > limit || bounds.Dy() > limit) {
		img = imaging.Fit(img, limit, limit, imaging.Lanczos)
	}

	if err := os.MkdirAll(f.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create media dir: %w", err)
	}
	path := filepath.Join(f.cfg.Dir, uuid.NewString()+".jpg")
	if err := imaging.Save(img, path, imaging.JPEGQuality(f.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("media: save %s: %w", path, err)
	}

	b := img.Bounds()
	return &Download{LocalPath: path, MimeType: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}
