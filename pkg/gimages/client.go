// Package gimages searches product photos through the Google Custom Search
// image API.
package gimages

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Client performs image searches.
type Client interface {
	SearchImages(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is one image hit.
type Result struct {
	URL      string
	Width    int
	Height   int
	MimeType string
	Source   string // hosting domain
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithDomainBlocklist filters results hosted on the given domains. Social and
// stock-photo sites return watermarked or unlicensed images.
func WithDomainBlocklist(domains []string) Option {
	return func(c *httpClient) {
		c.blocklist = domains
	}
}

type httpClient struct {
	apiKey    string
	engineID  string
	baseURL   string
	blocklist []string
	http      *http.Client
}

// NewClient creates a Custom Search image client.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Mime  string `json:"mime"`
		Image struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"image"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

func (c *httpClient) SearchImages(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("q", query)
	q.Set("searchType", "image")
	q.Set("num", strconv.Itoa(limit))
	q.Set("imgSize", "large")
	q.Set("safe", "active")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "gimages: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewRecoverable(eris.Wrap(err, "gimages: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gimages: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("gimages: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRecoverableHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewRecoverable(err, resp.StatusCode)
		}
		return nil, err
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "gimages: unmarshal response")
	}

	out := make([]Result, 0, len(result.Items))
	for _, item := range result.Items {
		if c.blocked(item.DisplayLink) {
			continue
		}
		out = append(out, Result{
			URL:      item.Link,
			Width:    item.Image.Width,
			Height:   item.Image.Height,
			MimeType: item.Mime,
			Source:   item.DisplayLink,
		})
	}
	return out, nil
}

func (c *httpClient) blocked(domain string) bool {
	domain = strings.ToLower(domain)
	for _, b := range c.blocklist {
		if domain == b || strings.HasSuffix(domain, "."+b) {
			return true
		}
	}
	return false
}
