// Package auth manages the lifecycle of marketplace OAuth tokens: proactive
// refresh ahead of expiry, serialized across concurrent callers, with a
// terminal invalid state when the refresh token itself is rejected.
package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/mercadolibre"
)

// ErrReauthRequired means no usable token exists for the account and only a
// new authorization flow can produce one. Retrying cannot help.
var ErrReauthRequired = errors.New("auth: re-authorization required")

// Manager hands out valid access tokens for one marketplace account.
type Manager struct {
	store store.Store
	ml    mercadolibre.Client
	key   store.TokenKey
	now   func() time.Time
	log   *zap.Logger
}

// NewManager creates a Manager for the given account. With sandbox set the
// account resolves to whichever stored token is flagged as a test user.
func NewManager(st store.Store, ml mercadolibre.Client, userID string, sandbox bool) *Manager {
	return &Manager{
		store: st,
		ml:    ml,
		key:   store.TokenKey{UserID: userID, Sandbox: sandbox},
		now:   time.Now,
		log:   zap.L(),
	}
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithLogger replaces the logger, for tests.
func (m *Manager) WithLogger(log *zap.Logger) *Manager {
	m.log = log
	return m
}

// AccessToken returns an access token guaranteed to remain valid for at least
// the expiry margin. Expired or near-expiry tokens are refreshed first; the
// refresh is serialized through the store's token lock so concurrent callers
// produce exactly one refresh call.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok, err := m.store.GetToken(ctx, m.key)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrReauthRequired
	}
	if err != nil {
		return "", eris.Wrap(err, "auth: load token")
	}
	if tok.Invalid {
		return "", ErrReauthRequired
	}
	if !tok.ExpiresSoon(m.now()) {
		return tok.AccessToken, nil
	}

	refreshed, err := m.store.WithTokenLock(ctx, m.key, m.refreshLocked)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrReauthRequired
		}
		return "", err
	}
	return refreshed.AccessToken, nil
}

// refreshLocked runs with the token row locked. Whatever token it returns is
// persisted before the lock is released.
func (m *Manager) refreshLocked(ctx context.Context, cur *model.Token) (*model.Token, error) {
	if cur.Invalid {
		return nil, ErrReauthRequired
	}
	// Another caller may have refreshed while we waited on the lock.
	if !cur.ExpiresSoon(m.now()) {
		return nil, nil
	}

	m.log.Info("refreshing marketplace token", zap.String("user_id", cur.UserID))
	resp, err := m.ml.RefreshToken(ctx, cur.RefreshToken)
	if err != nil {
		if mercadolibre.IsInvalidGrant(err) {
			m.log.Warn("refresh token rejected, marking account invalid",
				zap.String("user_id", cur.UserID))
			marked := *cur
			marked.Invalid = true
			return &marked, ErrReauthRequired
		}
		return nil, eris.Wrap(err, "auth: refresh token")
	}

	updated := *cur
	updated.AccessToken = resp.AccessToken
	updated.ExpiresAt = resp.ExpiresAt(m.now())
	if resp.RefreshToken != "" {
		updated.RefreshToken = resp.RefreshToken
	}
	return &updated, nil
}

// InitFromCode exchanges an authorization code for a token pair and stores it,
// replacing any previous record for the account. This is the recovery path
// from the invalid state.
func (m *Manager) InitFromCode(ctx context.Context, code, redirectURI string, testUser bool) (*model.Token, error) {
	resp, err := m.ml.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, eris.Wrap(err, "auth: exchange code")
	}

	now := m.now()
	tok := &model.Token{
		UserID:       strconv.FormatInt(resp.UserID, 10),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt(now),
		IsTestUser:   testUser,
		UpdatedAt:    now,
	}
	if err := m.store.UpsertToken(ctx, tok); err != nil {
		return nil, eris.Wrap(err, "auth: store token")
	}
	m.log.Info("stored marketplace token",
		zap.String("user_id", tok.UserID),
		zap.Bool("test_user", testUser))
	return tok, nil
}

// Verify confirms the stored token works by fetching the account it belongs to.
func (m *Manager) Verify(ctx context.Context) (*mercadolibre.User, error) {
	access, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	user, err := m.ml.Me(ctx, access)
	if err != nil {
		return nil, eris.Wrap(err, "auth: verify token")
	}
	return user, nil
}
