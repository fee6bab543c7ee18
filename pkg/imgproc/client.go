// Package imgproc talks to the image processing service (resize, format
// conversion, background removal) and the object storage endpoint that hosts
// the final listing photos.
package imgproc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

// Client processes and hosts listing images.
type Client interface {
	// ProcessImage downloads the source URL through the processing service
	// and returns the resulting image bytes.
	ProcessImage(ctx context.Context, sourceURL string, removeBackground bool) ([]byte, error)
	// Upload stores image bytes and returns the public URL.
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	processURL string
	uploadURL  string
	uploadKey  string
	http       *http.Client
}

// NewClient creates an image processing client.
func NewClient(processURL, uploadURL, uploadKey string, opts ...Option) Client {
	c := &httpClient{
		processURL: processURL,
		uploadURL:  uploadURL,
		uploadKey:  uploadKey,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type processRequest struct {
	SourceURL        string `json:"source_url"`
	RemoveBackground bool   `json:"remove_background"`
	Format           string `json:"format"`
	MaxDimension     int    `json:"max_dimension"`
}

func (c *httpClient) ProcessImage(ctx context.Context, sourceURL string, removeBackground bool) ([]byte, error) {
	payload, err := json.Marshal(processRequest{
		SourceURL:        sourceURL,
		RemoveBackground: removeBackground,
		Format:           "jpeg",
		MaxDimension:     1200,
	})
	if err != nil {
		return nil, eris.Wrap(err, "imgproc: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "imgproc: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewRecoverable(eris.Wrap(err, "imgproc: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "imgproc: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("imgproc: process status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRecoverableHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewRecoverable(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (c *httpClient) Upload(ctx context.Context, name string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.uploadURL+"/"+name, bytes.NewReader(data))
	if err != nil {
		return "", eris.Wrap(err, "imgproc: create upload request")
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Authorization", "Bearer "+c.uploadKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.NewRecoverable(eris.Wrap(err, "imgproc: send upload"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "imgproc: read upload response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := eris.Errorf("imgproc: upload status %d: %s", resp.StatusCode, string(body))
		if resilience.IsRecoverableHTTPStatus(resp.StatusCode) {
			return "", resilience.NewRecoverable(err, resp.StatusCode)
		}
		return "", err
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", eris.Wrap(err, "imgproc: unmarshal upload response")
	}
	if out.URL == "" {
		return "", eris.New("imgproc: upload response missing url")
	}
	return out.URL, nil
}
