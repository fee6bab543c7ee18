// Package mercadolibre is a thin client for the MercadoLibre marketplace API:
// the OAuth token endpoints plus the item operations the publisher needs.
package mercadolibre

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

const defaultBaseURL = "https://api.mercadolibre.com"

// Client performs MercadoLibre API operations.
type Client interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Me(ctx context.Context, accessToken string) (*User, error)
	PublishItem(ctx context.Context, accessToken string, item ItemRequest) (*Item, error)
	SetDescription(ctx context.Context, accessToken, itemID, plainText string) error
	SetStatus(ctx context.Context, accessToken, itemID, status string) error
}

// TokenResponse is the OAuth token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// ExpiresAt converts the relative expiry to an absolute time.
func (t *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// User is the authenticated account, from /users/me.
type User struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	SiteID   string `json:"site_id"`
	UserType string `json:"user_type"`
}

// Attribute is one item attribute, GTIN included.
type Attribute struct {
	ID        string `json:"id"`
	ValueName string `json:"value_name"`
}

// Picture references an image by URL.
type Picture struct {
	Source string `json:"source"`
}

// ItemRequest is the payload for creating a listing.
type ItemRequest struct {
	Title             string      `json:"title"`
	CategoryID        string      `json:"category_id,omitempty"`
	Price             float64     `json:"price"`
	CurrencyID        string      `json:"currency_id"`
	AvailableQuantity int         `json:"available_quantity"`
	BuyingMode        string      `json:"buying_mode"`
	ListingTypeID     string      `json:"listing_type_id"`
	Condition         string      `json:"condition"`
	Attributes        []Attribute `json:"attributes,omitempty"`
	Pictures          []Picture   `json:"pictures,omitempty"`
}

// Item is the created or updated listing.
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Permalink string `json:"permalink"`
}

// APIError is a non-2xx response from the marketplace.
type APIError struct {
	StatusCode int
	MLError    string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadolibre: status %d %s: %s", e.StatusCode, e.MLError, e.Message)
}

// IsInvalidGrant reports whether the error means the refresh token itself was
// rejected, so the account needs a fresh authorization and retrying is useless.
func IsInvalidGrant(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.MLError == "invalid_grant"
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

type httpClient struct {
	clientID string
	secret   string
	baseURL  string
	http     *http.Client
}

// NewClient creates a MercadoLibre API client for one application.
func NewClient(clientID, secret string, opts ...Option) Client {
	c := &httpClient{
		clientID: clientID,
		secret:   secret,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	var tok TokenResponse
	if err := c.postForm(ctx, "/oauth/token", form, &tok); err != nil {
		return nil, eris.Wrap(err, "exchange code")
	}
	return &tok, nil
}

func (c *httpClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)
	form.Set("refresh_token", refreshToken)

	var tok TokenResponse
	if err := c.postForm(ctx, "/oauth/token", form, &tok); err != nil {
		return nil, eris.Wrap(err, "refresh token")
	}
	return &tok, nil
}

func (c *httpClient) Me(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me", accessToken, nil, &user); err != nil {
		return nil, eris.Wrap(err, "get user")
	}
	return &user, nil
}

func (c *httpClient) PublishItem(ctx context.Context, accessToken string, item ItemRequest) (*Item, error) {
	var out Item
	if err := c.do(ctx, http.MethodPost, "/items", accessToken, item, &out); err != nil {
		return nil, eris.Wrap(err, "publish item")
	}
	return &out, nil
}

func (c *httpClient) SetDescription(ctx context.Context, accessToken, itemID, plainText string) error {
	body := map[string]string{"plain_text": plainText}
	if err := c.do(ctx, http.MethodPut, "/items/"+itemID+"/description", accessToken, body, nil); err != nil {
		return eris.Wrapf(err, "set description for %s", itemID)
	}
	return nil
}

func (c *httpClient) SetStatus(ctx context.Context, accessToken, itemID, status string) error {
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPut, "/items/"+itemID, accessToken, body, nil); err != nil {
		return eris.Wrapf(err, "set status %s for %s", status, itemID)
	}
	return nil
}

func (c *httpClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "mercadolibre: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

func (c *httpClient) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "mercadolibre: marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "mercadolibre: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *httpClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewRecoverable(eris.Wrap(err, "mercadolibre: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "mercadolibre: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		if resilience.IsRecoverableHTTPStatus(resp.StatusCode) {
			return resilience.NewRecoverable(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "mercadolibre: unmarshal response")
	}
	return nil
}
