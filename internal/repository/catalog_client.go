package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultCatalogTimeout = 3 * time.Second

// CatalogClient fetches a whole remote collection from a read-only JSON endpoint.
type CatalogClient[T any] struct {
	name   string
	url    string
	client *http.Client
}

// NewCatalogClient constructs a client for url. A nil httpClient gets a
// dedicated client with the given timeout.
func NewCatalogClient[T any](name, url string, timeout time.Duration, httpClient *http.Client) *CatalogClient[T] {
	if timeout <= 0 {
		timeout = defaultCatalogTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &CatalogClient[T]{name: name, url: url, client: httpClient}
}

// Name returns the catalog label.
func (c *CatalogClient[T]) Name() string {
	return c.name
}

// FetchAll downloads and decodes the complete collection.
func (c *CatalogClient[T]) FetchAll(ctx context.Context) ([]T, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%s catalog url not configured", c.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s catalog request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s catalog: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s catalog: unexpected status %d", c.name, resp.StatusCode)
	}

	var items []T
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode %s catalog: %w", c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
