package model

import "time"

// tokenExpiryMargin is the safety buffer before the stored expiry at which a
// token is treated as expired and refreshed.
const tokenExpiryMargin = 5 * time.Minute

// Token holds the OAuth2 credentials for one marketplace account. One active
// record per account, keyed by user ID plus the test-user flag.
type Token struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsTestUser   bool      `json:"is_test_user"`
	Invalid      bool      `json:"invalid"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresSoon reports whether the token is expired or within the safety
// margin of expiring at the given instant.
func (t *Token) ExpiresSoon(now time.Time) bool {
	return !now.Before(t.ExpiresAt.Add(-tokenExpiryMargin))
}
