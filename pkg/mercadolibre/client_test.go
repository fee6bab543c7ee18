package mercadolibre

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

func TestRefreshToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    21600,
			UserID:       123456,
		})
	}))
	defer srv.Close()

	client := NewClient("app-id", "app-secret", WithBaseURL(srv.URL))
	tok, err := client.RefreshToken(context.Background(), "old-refresh")

	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	now := time.Now()
	assert.Equal(t, now.Add(6*time.Hour), tok.ExpiresAt(now))
}

func TestRefreshToken_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "message": "refresh token expired"}`))
	}))
	defer srv.Close()

	client := NewClient("app-id", "app-secret", WithBaseURL(srv.URL))
	_, err := client.RefreshToken(context.Background(), "stale-refresh")

	require.Error(t, err)
	assert.True(t, IsInvalidGrant(err))
	assert.False(t, resilience.IsRecoverable(err))
}

func TestRefreshToken_ServerErrorIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("app-id", "app-secret", WithBaseURL(srv.URL))
	_, err := client.RefreshToken(context.Background(), "any")

	require.Error(t, err)
	assert.True(t, resilience.IsRecoverable(err))
	assert.False(t, IsInvalidGrant(err))
}

func TestPublishItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		var req ItemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Impresora HP LaserJet M428", req.Title)
		require.Len(t, req.Attributes, 1)
		assert.Equal(t, "GTIN", req.Attributes[0].ID)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Item{ID: "MEC1234", Status: "active"})
	}))
	defer srv.Close()

	client := NewClient("app-id", "app-secret", WithBaseURL(srv.URL))
	item, err := client.PublishItem(context.Background(), "access-1", ItemRequest{
		Title:      "Impresora HP LaserJet M428",
		Price:      349.99,
		CurrencyID: "USD",
		Attributes: []Attribute{{ID: "GTIN", ValueName: "0194850902345"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "MEC1234", item.ID)
}

func TestSetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/items/MEC1234", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "paused", body["status"])

		_ = json.NewEncoder(w).Encode(Item{ID: "MEC1234", Status: "paused"})
	}))
	defer srv.Close()

	client := NewClient("app-id", "app-secret", WithBaseURL(srv.URL))
	err := client.SetStatus(context.Background(), "access-1", "MEC1234", "paused")
	require.NoError(t, err)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		_ = json.NewEncoder(w).Encode(User{ID: 123456, Nickname: "TEST_USER_1", SiteID: "MEC"})
	}))
	defer srv.Close()

	client := NewClient("app-id", "app-secret", WithBaseURL(srv.URL))
	user, err := client.Me(context.Background(), "access-1")

	require.NoError(t, err)
	assert.Equal(t, int64(123456), user.ID)
	assert.Equal(t, "MEC", user.SiteID)
}
