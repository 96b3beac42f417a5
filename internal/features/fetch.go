package features

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/cover-matcher/internal/constants"
)

// Fetcher downloads photo bytes for URL-only photos.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads photos over HTTP, capping the body at MaxBytes.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: 30 * time.Second},
		MaxBytes: constants.MaxFetchBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s failed with status %d", url, resp.StatusCode)
	}

	// One extra byte tells an oversized body apart from one exactly at the limit
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("photo at %s exceeds %d bytes", url, f.MaxBytes)
	}
	return data, nil
}
