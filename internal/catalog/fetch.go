package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Dataset names published by the iptv-org API.
const (
	DatasetCountries = "countries"
	DatasetChannels  = "channels"
	DatasetStreams   = "streams"
	DatasetLogos     = "logos"
)

var datasets = []string{DatasetCountries, DatasetChannels, DatasetStreams, DatasetLogos}

// maxDatasetSize caps a single download; streams.json is the largest at a
// few tens of megabytes.
const maxDatasetSize = 256 << 20

// Fetcher downloads raw dataset JSON from the upstream API.
type Fetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewFetcher returns a Fetcher for baseURL (e.g. "https://iptv-org.github.io/api").
func NewFetcher(baseURL, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch downloads <baseURL>/<dataset>.json and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, dataset string) ([]byte, error) {
	url := f.baseURL + "/" + dataset + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dataset, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", dataset, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", dataset, err)
	}
	return body, nil
}
