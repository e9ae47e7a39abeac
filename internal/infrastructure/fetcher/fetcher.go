package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/ports"
)

// HTTPFetcher streams remote images to disk.
type HTTPFetcher struct {
	client *http.Client
}

var _ ports.ImageFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets a 60s timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

// Fetch writes the body of url to destPath, replacing any previous file.
// The file may hold a truncated image when the server is still producing it.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "SpriteForge/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request image: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: image host returned %s", domain.ErrNetwork, resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: stream image: %v", domain.ErrNetwork, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", destPath, err)
	}
	return nil
}
