package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var productRowColumns = []string{
	"id", "code", "description", "normalized_name", "sku", "model_name",
	"price", "category", "specs", "gtin", "gtin_source",
	"seo_title", "seo_description", "is_active", "is_eligible",
	"image_count", "last_updated",
}

func productRow(mock pgxmock.PgxPoolIface, id int64, code string) *pgxmock.Rows {
	return mock.NewRows(productRowColumns).AddRow(
		id, code, "HP LaserJet M428", "hp laserjet m428", "4ZB45A", "M428",
		349.99, "printers", []byte(`{"marca":"HP"}`), "", "",
		"", "", true, true,
		int64(0), time.Now(),
	)
}

func TestPostgresStore_GetProductByCode(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM products p WHERE p\.code = \$1`).
		WithArgs("HP-M428").
		WillReturnRows(productRow(mock, 7, "HP-M428"))

	p, err := s.GetProductByCode(context.Background(), "HP-M428")
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "HP", p.Specs["marca"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProductByCode_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM products p WHERE p\.code = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProductByCode(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListGTINCandidates_ExcludesExhausted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`gtin_source <> \$2`).
		WithArgs(15, model.GTINNotFound).
		WillReturnRows(productRow(mock, 1, "A-1"))

	out, err := s.ListGTINCandidates(context.Background(), CandidateFilter{Limit: 15})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListGTINCandidates_Force(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE p\.is_active AND p\.is_eligible ORDER BY`).
		WithArgs(5).
		WillReturnRows(mock.NewRows(productRowColumns))

	out, err := s.ListGTINCandidates(context.Background(), CandidateFilter{Limit: 5, Force: true})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateGTIN(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE products SET gtin = \$1, gtin_source = \$2`).
		WithArgs("0194850902345", "specs", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateGTIN(context.Background(), 7, "0194850902345", "specs")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPrice(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO products \(code, price, category\)`).
		WithArgs("HP-M428", 349.99, "printers").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertPrice(context.Background(), "HP-M428", 349.99, "printers")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertImages_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO product_images`).
		WithArgs(int64(7), "https://img.example.com/a.webp", 0, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO product_images`).
		WithArgs(int64(7), "https://img.example.com/b.webp", 1, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.InsertImages(context.Background(), 7, []model.ProductImage{
		{URL: "https://img.example.com/a.webp", Order: 0, Processed: true},
		{URL: "https://img.example.com/b.webp", Order: 1, Processed: false},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertImages_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.InsertImages(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetListingStatus_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(product_id\)`).
		WithArgs(int64(7), model.ListingError, "no usable image").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetListingStatus(context.Background(), 7, model.ListingError, "no usable image")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func tokenRow(mock pgxmock.PgxPoolIface, userID string, expiresAt time.Time) *pgxmock.Rows {
	return mock.NewRows([]string{
		"user_id", "access_token", "refresh_token", "expires_at", "is_test_user", "invalid", "updated_at",
	}).AddRow(userID, "old-access", "old-refresh", expiresAt, false, false, time.Now())
}

func TestPostgresStore_WithTokenLock_PersistsUpdate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expiry := time.Now().Add(6 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM ml_tokens WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("123456").
		WillReturnRows(tokenRow(mock, "123456", time.Now()))
	mock.ExpectExec(`UPDATE ml_tokens SET access_token = \$1`).
		WithArgs("new-access", "new-refresh", expiry, false, "123456").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	out, err := s.WithTokenLock(context.Background(), TokenKey{UserID: "123456"},
		func(_ context.Context, tok *model.Token) (*model.Token, error) {
			updated := *tok
			updated.AccessToken = "new-access"
			updated.RefreshToken = "new-refresh"
			updated.ExpiresAt = expiry
			return &updated, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "new-access", out.AccessToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTokenLock_NoWriteWhenUnchanged(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM ml_tokens WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("123456").
		WillReturnRows(tokenRow(mock, "123456", time.Now().Add(time.Hour)))
	mock.ExpectCommit()

	out, err := s.WithTokenLock(context.Background(), TokenKey{UserID: "123456"},
		func(_ context.Context, tok *model.Token) (*model.Token, error) {
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "old-access", out.AccessToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTokenLock_SandboxResolvesTestUser(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE is_test_user ORDER BY user_id LIMIT 1 FOR UPDATE`).
		WillReturnRows(tokenRow(mock, "sandbox-1", time.Now().Add(time.Hour)))
	mock.ExpectCommit()

	out, err := s.WithTokenLock(context.Background(), TokenKey{Sandbox: true},
		func(_ context.Context, tok *model.Token) (*model.Token, error) {
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "sandbox-1", out.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTokenLock_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM ml_tokens WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.WithTokenLock(context.Background(), TokenKey{UserID: "ghost"},
		func(_ context.Context, tok *model.Token) (*model.Token, error) {
			t.Fatal("fn must not run without a token row")
			return nil, nil
		})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
