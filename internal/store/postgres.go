package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Querier is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    Querier
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithQuerier wraps an existing querier, used by tests.
func NewPostgresWithQuerier(q Querier) *PostgresStore {
	return &PostgresStore{pool: q}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id              BIGSERIAL PRIMARY KEY,
	code            TEXT NOT NULL UNIQUE,
	description     TEXT NOT NULL DEFAULT '',
	normalized_name TEXT NOT NULL DEFAULT '',
	sku             TEXT NOT NULL DEFAULT '',
	model_name      TEXT NOT NULL DEFAULT '',
	price           NUMERIC(10,2),
	category        TEXT NOT NULL DEFAULT '',
	specs           JSONB NOT NULL DEFAULT '{}'::jsonb,
	gtin            TEXT NOT NULL DEFAULT '',
	gtin_source     TEXT NOT NULL DEFAULT '',
	seo_title       TEXT NOT NULL DEFAULT '',
	seo_description TEXT NOT NULL DEFAULT '',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	is_eligible     BOOLEAN NOT NULL DEFAULT FALSE,
	last_updated    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS detail_scrapes (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	name       TEXT NOT NULL DEFAULT '',
	price      NUMERIC(10,2),
	attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
	image_urls JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS product_images (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	img_order  INTEGER NOT NULL,
	processed  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (product_id, img_order)
);

CREATE TABLE IF NOT EXISTS listings (
	id          BIGSERIAL PRIMARY KEY,
	product_id  BIGINT NOT NULL UNIQUE REFERENCES products(id) ON DELETE CASCADE,
	ml_id       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'PENDING',
	sync_error  TEXT NOT NULL DEFAULT '',
	last_synced TIMESTAMPTZ,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ml_tokens (
	user_id       TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	is_test_user  BOOLEAN NOT NULL DEFAULT FALSE,
	invalid       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_gtin_source ON products(gtin_source);
CREATE INDEX IF NOT EXISTS idx_products_eligible ON products(is_eligible) WHERE is_eligible;
CREATE INDEX IF NOT EXISTS idx_detail_scrapes_product ON detail_scrapes(product_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id, img_order);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
CREATE INDEX IF NOT EXISTS idx_ml_tokens_test ON ml_tokens(is_test_user) WHERE is_test_user;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const productColumns = `
	p.id, p.code, p.description, p.normalized_name, p.sku, p.model_name,
	COALESCE(p.price, 0), p.category, p.specs, p.gtin, p.gtin_source,
	p.seo_title, p.seo_description, p.is_active, p.is_eligible,
	(SELECT count(*) FROM product_images i WHERE i.product_id = p.id),
	p.last_updated`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	var specsJSON []byte
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.NormalizedName, &p.SKU, &p.ModelName,
		&p.Price, &p.Category, &specsJSON, &p.GTIN, &p.GTINSource,
		&p.SEOTitle, &p.SEODescription, &p.IsActive, &p.IsEligible,
		&p.ImageCount, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if len(specsJSON) > 0 {
		if err := json.Unmarshal(specsJSON, &p.Specs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal specs")
		}
	}
	return &p, nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, sql string, args ...any) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query products")
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func (s *PostgresStore) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+productColumns+` FROM products p WHERE p.code = $1`, code)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", code)
	}
	return p, nil
}

func (s *PostgresStore) ListScrapeCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active
		   AND NOT EXISTS (SELECT 1 FROM detail_scrapes d WHERE d.product_id = p.id)
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit)
}

func (s *PostgresStore) ListNormalizeCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active AND p.normalized_name = ''
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit)
}

func (s *PostgresStore) ListSpecCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active AND p.specs = '{}'::jsonb
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit)
}

func (s *PostgresStore) ListContentCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible AND (p.seo_title = '' OR p.seo_description = '')
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit)
}

func (s *PostgresStore) ListGTINCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible AND p.gtin = '' AND p.gtin_source <> $2
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit, model.GTINNotFound)
}

func (s *PostgresStore) ListImageCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible
		   AND NOT EXISTS (SELECT 1 FROM product_images i WHERE i.product_id = p.id)
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit)
}

func (s *PostgresStore) ListEligibilityCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT $1`,
		f.Limit)
}

func (s *PostgresStore) ListPublishCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+productColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible AND p.seo_title <> ''
			 ORDER BY p.last_updated LIMIT $1`,
			f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible AND p.seo_title <> ''
		   AND NOT EXISTS (SELECT 1 FROM listings l WHERE l.product_id = p.id AND l.status = $2)
		 ORDER BY p.last_updated LIMIT $1`,
		f.Limit, model.ListingActive)
}

func (s *PostgresStore) ListProducts(ctx context.Context, limit, offset int) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT`+productColumns+` FROM products p ORDER BY p.code LIMIT $1 OFFSET $2`,
		limit, offset)
}

func (s *PostgresStore) UpdateNormalized(ctx context.Context, productID int64, name, sku, modelName string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE products SET normalized_name = $1, sku = $2, model_name = $3, last_updated = now() WHERE id = $4`,
		name, sku, modelName, productID)
	return eris.Wrapf(err, "postgres: update normalized %d", productID)
}

func (s *PostgresStore) UpdateSpecs(ctx context.Context, productID int64, specs map[string]string) error {
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal specs")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE products SET specs = $1, last_updated = now() WHERE id = $2`,
		specsJSON, productID)
	return eris.Wrapf(err, "postgres: update specs %d", productID)
}

func (s *PostgresStore) UpdateContent(ctx context.Context, productID int64, title, description string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE products SET seo_title = $1, seo_description = $2, last_updated = now() WHERE id = $3`,
		title, description, productID)
	return eris.Wrapf(err, "postgres: update content %d", productID)
}

func (s *PostgresStore) UpdateGTIN(ctx context.Context, productID int64, gtin, source string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE products SET gtin = $1, gtin_source = $2, last_updated = now() WHERE id = $3`,
		gtin, source, productID)
	return eris.Wrapf(err, "postgres: update gtin %d", productID)
}

func (s *PostgresStore) UpdateEligibility(ctx context.Context, productID int64, eligible bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE products SET is_eligible = $1, last_updated = now() WHERE id = $2`,
		eligible, productID)
	return eris.Wrapf(err, "postgres: update eligibility %d", productID)
}

func (s *PostgresStore) UpsertPrice(ctx context.Context, code string, price float64, category string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (code, price, category)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET price = EXCLUDED.price, category = EXCLUDED.category, last_updated = now()`,
		code, price, category)
	return eris.Wrapf(err, "postgres: upsert price %s", code)
}

func (s *PostgresStore) InsertDetailScrape(ctx context.Context, scrape *model.DetailScrape) error {
	attrsJSON, err := json.Marshal(scrape.Attributes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scrape attributes")
	}
	urlsJSON, err := json.Marshal(scrape.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scrape image urls")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO detail_scrapes (product_id, name, price, attributes, image_urls)
		 VALUES ($1, $2, $3, $4, $5)`,
		scrape.ProductID, scrape.Name, scrape.Price, attrsJSON, urlsJSON)
	return eris.Wrapf(err, "postgres: insert detail scrape for %d", scrape.ProductID)
}

func (s *PostgresStore) LatestDetailScrape(ctx context.Context, productID int64) (*model.DetailScrape, error) {
	var d model.DetailScrape
	var attrsJSON, urlsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, name, COALESCE(price, 0), attributes, image_urls, created_at
		 FROM detail_scrapes WHERE product_id = $1 ORDER BY created_at DESC LIMIT 1`,
		productID,
	).Scan(&d.ID, &d.ProductID, &d.Name, &d.Price, &attrsJSON, &urlsJSON, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest detail scrape for %d", productID)
	}
	if err := json.Unmarshal(attrsJSON, &d.Attributes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal scrape attributes")
	}
	if err := json.Unmarshal(urlsJSON, &d.ImageURLs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal scrape image urls")
	}
	return &d, nil
}

// InsertImages writes all records for a product in one transaction so a
// partially-recorded image set can never be observed.
func (s *PostgresStore) InsertImages(ctx context.Context, productID int64, images []model.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert images")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, img := range images {
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_images (product_id, url, img_order, processed) VALUES ($1, $2, $3, $4)`,
			productID, img.URL, img.Order, img.Processed,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert image order %d for %d", img.Order, productID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit insert images")
}

func (s *PostgresStore) ListImages(ctx context.Context, productID int64) ([]model.ProductImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, url, img_order, processed, created_at
		 FROM product_images WHERE product_id = $1 ORDER BY img_order`,
		productID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list images for %d", productID)
	}
	defer rows.Close()

	var out []model.ProductImage
	for rows.Next() {
		var img model.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.Order, &img.Processed, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan image")
		}
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate images")
}

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	err := row.Scan(&l.ID, &l.ProductID, &l.MLID, &l.Status, &l.SyncError, &l.LastSynced, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, productID int64) (*model.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT id, product_id, ml_id, status, sync_error, last_synced, updated_at
		 FROM listings WHERE product_id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing for %d", productID)
	}
	return l, nil
}

func (s *PostgresStore) ListPendingListings(ctx context.Context, limit int) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, ml_id, status, sync_error, last_synced, updated_at
		 FROM listings WHERE status = $1 ORDER BY updated_at LIMIT $2`,
		model.ListingPending, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

func (s *PostgresStore) SetListingStatus(ctx context.Context, productID int64, status model.ListingStatus, syncError string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (product_id, status, sync_error)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (product_id) DO UPDATE SET status = EXCLUDED.status, sync_error = EXCLUDED.sync_error, updated_at = now()`,
		productID, status, syncError)
	return eris.Wrapf(err, "postgres: set listing status for %d", productID)
}

func (s *PostgresStore) SetListingPublished(ctx context.Context, productID int64, mlID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (product_id, ml_id, status, sync_error, last_synced)
		 VALUES ($1, $2, $3, '', now())
		 ON CONFLICT (product_id) DO UPDATE
		 SET ml_id = EXCLUDED.ml_id, status = EXCLUDED.status, sync_error = '', last_synced = now(), updated_at = now()`,
		productID, mlID, model.ListingActive)
	return eris.Wrapf(err, "postgres: set listing published for %d", productID)
}

const tokenColumns = `user_id, access_token, refresh_token, expires_at, is_test_user, invalid, updated_at`

func scanToken(row pgx.Row) (*model.Token, error) {
	var t model.Token
	err := row.Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.IsTestUser, &t.Invalid, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func tokenQuery(key TokenKey, forUpdate bool) (string, []any) {
	suffix := ""
	if forUpdate {
		suffix = " FOR UPDATE"
	}
	if key.Sandbox {
		return `SELECT ` + tokenColumns + ` FROM ml_tokens WHERE is_test_user ORDER BY user_id LIMIT 1` + suffix, nil
	}
	return `SELECT ` + tokenColumns + ` FROM ml_tokens WHERE user_id = $1` + suffix, []any{key.UserID}
}

func (s *PostgresStore) GetToken(ctx context.Context, key TokenKey) (*model.Token, error) {
	sql, args := tokenQuery(key, false)
	t, err := scanToken(s.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get token")
	}
	return t, nil
}

func (s *PostgresStore) UpsertToken(ctx context.Context, tok *model.Token) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ml_tokens (user_id, access_token, refresh_token, expires_at, is_test_user, invalid, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token,
		     expires_at = EXCLUDED.expires_at, is_test_user = EXCLUDED.is_test_user,
		     invalid = EXCLUDED.invalid, updated_at = now()`,
		tok.UserID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, tok.IsTestUser, tok.Invalid)
	return eris.Wrapf(err, "postgres: upsert token %s", tok.UserID)
}

// WithTokenLock locks the token row with SELECT ... FOR UPDATE for the
// duration of fn, so two concurrent refreshes of the same account serialize
// and the second one sees the first one's result.
func (s *PostgresStore) WithTokenLock(ctx context.Context, key TokenKey, fn func(ctx context.Context, tok *model.Token) (*model.Token, error)) (*model.Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin token lock")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sql, args := tokenQuery(key, true)
	tok, err := scanToken(tx.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lock token")
	}

	updated, fnErr := fn(ctx, tok)
	if updated != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE ml_tokens SET access_token = $1, refresh_token = $2, expires_at = $3, invalid = $4, updated_at = now()
			 WHERE user_id = $5`,
			updated.AccessToken, updated.RefreshToken, updated.ExpiresAt, updated.Invalid, updated.UserID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: save refreshed token")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, eris.Wrap(err, "postgres: commit token lock")
		}
		return updated, fnErr
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit token lock")
	}
	return tok, fnErr
}
