package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"promptbatch/runner"
)

// MaxDownloadBytes caps a downloaded image.
const MaxDownloadBytes = 64 << 20

// Downloader fetches images that a service returned by URL. It is safe
// for concurrent use.
type Downloader struct {
	client *http.Client
}

// NewDownloader uses client, or http.DefaultClient when nil.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client}
}

// DownloadBytes returns the body and Content-Type of url. HTTP failures
// come back as runner.ServiceError so they are retried or not according
// to the status.
func (d *Downloader) DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("imagegen: URL cannot be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to create download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", runner.FromStatus(resp.StatusCode, "image download failed")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to read image data: %w", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, "", runner.NewPermanent(runner.CodeInternal, fmt.Sprintf("image larger than %d bytes", MaxDownloadBytes), nil)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
