package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient resolves businesses and users against the directory service's
// internal JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *HTTPClient) FindBusiness(ctx context.Context, id string) (Business, bool, error) {
	var b Business
	ok, err := c.get(ctx, "/api/v1/internal/businesses/"+url.PathEscape(id), &b)
	return b, ok, err
}

func (c *HTTPClient) FindUser(ctx context.Context, id string) (User, bool, error) {
	var u User
	ok, err := c.get(ctx, "/api/v1/internal/users/"+url.PathEscape(id), &u)
	return u, ok, err
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

var _ Provider = (*HTTPClient)(nil)
