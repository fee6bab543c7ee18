// Package supplier fetches per-product detail data from the supplier's
// catalog endpoint.
package supplier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

// Detail is one product's detail payload.
type Detail struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Price      float64           `json:"price"`
	Attributes map[string]string `json:"attributes"`
	ImageURLs  []string          `json:"image_urls"`
}

// Client fetches product details.
type Client interface {
	GetDetail(ctx context.Context, code string) (*Detail, error)
}

// ErrDetailNotFound means the supplier does not know the product code.
var ErrDetailNotFound = eris.New("supplier: detail not found")

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a supplier detail client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) GetDetail(ctx context.Context, code string) (*Detail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/products/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, eris.Wrap(err, "supplier: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewRecoverable(eris.Wrap(err, "supplier: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "supplier: read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrDetailNotFound
	case resp.StatusCode != http.StatusOK:
		err := eris.Errorf("supplier: status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRecoverableHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewRecoverable(err, resp.StatusCode)
		}
		return nil, err
	}

	var detail Detail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, eris.Wrap(err, "supplier: unmarshal response")
	}
	return &detail, nil
}
