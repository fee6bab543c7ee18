package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local and dev
// runs. Token locking is serialized in-process since SQLite has no row locks;
// a single writer is all the local setup ever has.
type SQLiteStore struct {
	db      *sql.DB
	tokenMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	code            TEXT NOT NULL UNIQUE,
	description     TEXT NOT NULL DEFAULT '',
	normalized_name TEXT NOT NULL DEFAULT '',
	sku             TEXT NOT NULL DEFAULT '',
	model_name      TEXT NOT NULL DEFAULT '',
	price           REAL,
	category        TEXT NOT NULL DEFAULT '',
	specs           TEXT NOT NULL DEFAULT '{}',
	gtin            TEXT NOT NULL DEFAULT '',
	gtin_source     TEXT NOT NULL DEFAULT '',
	seo_title       TEXT NOT NULL DEFAULT '',
	seo_description TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1,
	is_eligible     INTEGER NOT NULL DEFAULT 0,
	last_updated    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS detail_scrapes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	name       TEXT NOT NULL DEFAULT '',
	price      REAL,
	attributes TEXT NOT NULL DEFAULT '{}',
	image_urls TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS product_images (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	img_order  INTEGER NOT NULL,
	processed  INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (product_id, img_order)
);

CREATE TABLE IF NOT EXISTS listings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id  INTEGER NOT NULL UNIQUE REFERENCES products(id) ON DELETE CASCADE,
	ml_id       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'PENDING',
	sync_error  TEXT NOT NULL DEFAULT '',
	last_synced DATETIME,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ml_tokens (
	user_id       TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    DATETIME NOT NULL,
	is_test_user  INTEGER NOT NULL DEFAULT 0,
	invalid       INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_gtin_source ON products(gtin_source);
CREATE INDEX IF NOT EXISTS idx_detail_scrapes_product ON detail_scrapes(product_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id, img_order);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteProductColumns = `
	p.id, p.code, p.description, p.normalized_name, p.sku, p.model_name,
	COALESCE(p.price, 0), p.category, p.specs, p.gtin, p.gtin_source,
	p.seo_title, p.seo_description, p.is_active, p.is_eligible,
	(SELECT count(*) FROM product_images i WHERE i.product_id = p.id),
	p.last_updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	var specsJSON string
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.NormalizedName, &p.SKU, &p.ModelName,
		&p.Price, &p.Category, &specsJSON, &p.GTIN, &p.GTINSource,
		&p.SEOTitle, &p.SEODescription, &p.IsActive, &p.IsEligible,
		&p.ImageCount, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if specsJSON != "" {
		if err := json.Unmarshal([]byte(specsJSON), &p.Specs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal specs")
		}
	}
	return &p, nil
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query products")
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p WHERE p.code = ?`, code)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", code)
	}
	return p, nil
}

func (s *SQLiteStore) ListScrapeCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active
		   AND NOT EXISTS (SELECT 1 FROM detail_scrapes d WHERE d.product_id = p.id)
		 ORDER BY p.last_updated LIMIT ?`, f.Limit)
}

func (s *SQLiteStore) ListNormalizeCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active AND p.normalized_name = '' ORDER BY p.last_updated LIMIT ?`, f.Limit)
}

func (s *SQLiteStore) ListSpecCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active AND p.specs = '{}' ORDER BY p.last_updated LIMIT ?`, f.Limit)
}

func (s *SQLiteStore) ListContentCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible AND (p.seo_title = '' OR p.seo_description = '')
		 ORDER BY p.last_updated LIMIT ?`, f.Limit)
}

func (s *SQLiteStore) ListGTINCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible AND p.gtin = '' AND p.gtin_source <> ?
		 ORDER BY p.last_updated LIMIT ?`, model.GTINNotFound, f.Limit)
}

func (s *SQLiteStore) ListImageCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible
		   AND NOT EXISTS (SELECT 1 FROM product_images i WHERE i.product_id = p.id)
		 ORDER BY p.last_updated LIMIT ?`, f.Limit)
}

func (s *SQLiteStore) ListEligibilityCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p WHERE p.is_active ORDER BY p.last_updated LIMIT ?`, f.Limit)
}

func (s *SQLiteStore) ListPublishCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error) {
	if f.Force {
		return s.queryProducts(ctx,
			`SELECT`+sqliteProductColumns+` FROM products p
			 WHERE p.is_active AND p.is_eligible AND p.seo_title <> ''
			 ORDER BY p.last_updated LIMIT ?`, f.Limit)
	}
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p
		 WHERE p.is_active AND p.is_eligible AND p.seo_title <> ''
		   AND NOT EXISTS (SELECT 1 FROM listings l WHERE l.product_id = p.id AND l.status = ?)
		 ORDER BY p.last_updated LIMIT ?`, model.ListingActive, f.Limit)
}

func (s *SQLiteStore) ListProducts(ctx context.Context, limit, offset int) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT`+sqliteProductColumns+` FROM products p ORDER BY p.code LIMIT ? OFFSET ?`, limit, offset)
}

func (s *SQLiteStore) UpdateNormalized(ctx context.Context, productID int64, name, sku, modelName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET normalized_name = ?, sku = ?, model_name = ?, last_updated = datetime('now') WHERE id = ?`,
		name, sku, modelName, productID)
	return eris.Wrapf(err, "sqlite: update normalized %d", productID)
}

func (s *SQLiteStore) UpdateSpecs(ctx context.Context, productID int64, specs map[string]string) error {
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal specs")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE products SET specs = ?, last_updated = datetime('now') WHERE id = ?`,
		string(specsJSON), productID)
	return eris.Wrapf(err, "sqlite: update specs %d", productID)
}

func (s *SQLiteStore) UpdateContent(ctx context.Context, productID int64, title, description string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET seo_title = ?, seo_description = ?, last_updated = datetime('now') WHERE id = ?`,
		title, description, productID)
	return eris.Wrapf(err, "sqlite: update content %d", productID)
}

func (s *SQLiteStore) UpdateGTIN(ctx context.Context, productID int64, gtin, source string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET gtin = ?, gtin_source = ?, last_updated = datetime('now') WHERE id = ?`,
		gtin, source, productID)
	return eris.Wrapf(err, "sqlite: update gtin %d", productID)
}

func (s *SQLiteStore) UpdateEligibility(ctx context.Context, productID int64, eligible bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET is_eligible = ?, last_updated = datetime('now') WHERE id = ?`,
		eligible, productID)
	return eris.Wrapf(err, "sqlite: update eligibility %d", productID)
}

func (s *SQLiteStore) UpsertPrice(ctx context.Context, code string, price float64, category string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (code, price, category) VALUES (?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET price = excluded.price, category = excluded.category, last_updated = datetime('now')`,
		code, price, category)
	return eris.Wrapf(err, "sqlite: upsert price %s", code)
}

func (s *SQLiteStore) InsertDetailScrape(ctx context.Context, scrape *model.DetailScrape) error {
	attrsJSON, err := json.Marshal(scrape.Attributes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scrape attributes")
	}
	urlsJSON, err := json.Marshal(scrape.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scrape image urls")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO detail_scrapes (product_id, name, price, attributes, image_urls) VALUES (?, ?, ?, ?, ?)`,
		scrape.ProductID, scrape.Name, scrape.Price, string(attrsJSON), string(urlsJSON))
	return eris.Wrapf(err, "sqlite: insert detail scrape for %d", scrape.ProductID)
}

func (s *SQLiteStore) LatestDetailScrape(ctx context.Context, productID int64) (*model.DetailScrape, error) {
	var d model.DetailScrape
	var attrsJSON, urlsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, name, COALESCE(price, 0), attributes, image_urls, created_at
		 FROM detail_scrapes WHERE product_id = ? ORDER BY created_at DESC LIMIT 1`,
		productID,
	).Scan(&d.ID, &d.ProductID, &d.Name, &d.Price, &attrsJSON, &urlsJSON, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest detail scrape for %d", productID)
	}
	if err := json.Unmarshal([]byte(attrsJSON), &d.Attributes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal scrape attributes")
	}
	if err := json.Unmarshal([]byte(urlsJSON), &d.ImageURLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal scrape image urls")
	}
	return &d, nil
}

func (s *SQLiteStore) InsertImages(ctx context.Context, productID int64, images []model.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert images")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, img := range images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_images (product_id, url, img_order, processed) VALUES (?, ?, ?, ?)`,
			productID, img.URL, img.Order, img.Processed,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert image order %d for %d", img.Order, productID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert images")
}

func (s *SQLiteStore) ListImages(ctx context.Context, productID int64) ([]model.ProductImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, url, img_order, processed, created_at
		 FROM product_images WHERE product_id = ? ORDER BY img_order`,
		productID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list images for %d", productID)
	}
	defer rows.Close()

	var out []model.ProductImage
	for rows.Next() {
		var img model.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.Order, &img.Processed, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan image")
		}
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate images")
}

func (s *SQLiteStore) GetListing(ctx context.Context, productID int64) (*model.Listing, error) {
	var l model.Listing
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, ml_id, status, sync_error, last_synced, updated_at
		 FROM listings WHERE product_id = ?`, productID,
	).Scan(&l.ID, &l.ProductID, &l.MLID, &l.Status, &l.SyncError, &l.LastSynced, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get listing for %d", productID)
	}
	return &l, nil
}

func (s *SQLiteStore) ListPendingListings(ctx context.Context, limit int) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, ml_id, status, sync_error, last_synced, updated_at
		 FROM listings WHERE status = ? ORDER BY updated_at LIMIT ?`,
		model.ListingPending, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var l model.Listing
		if err := rows.Scan(&l.ID, &l.ProductID, &l.MLID, &l.Status, &l.SyncError, &l.LastSynced, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) SetListingStatus(ctx context.Context, productID int64, status model.ListingStatus, syncError string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (product_id, status, sync_error) VALUES (?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET status = excluded.status, sync_error = excluded.sync_error, updated_at = datetime('now')`,
		productID, status, syncError)
	return eris.Wrapf(err, "sqlite: set listing status for %d", productID)
}

func (s *SQLiteStore) SetListingPublished(ctx context.Context, productID int64, mlID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (product_id, ml_id, status, sync_error, last_synced) VALUES (?, ?, ?, '', datetime('now'))
		 ON CONFLICT (product_id) DO UPDATE
		 SET ml_id = excluded.ml_id, status = excluded.status, sync_error = '', last_synced = datetime('now'), updated_at = datetime('now')`,
		productID, mlID, model.ListingActive)
	return eris.Wrapf(err, "sqlite: set listing published for %d", productID)
}

func (s *SQLiteStore) tokenRow(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, key TokenKey) (*model.Token, error) {
	var t model.Token
	var row *sql.Row
	if key.Sandbox {
		row = q.QueryRowContext(ctx,
			`SELECT user_id, access_token, refresh_token, expires_at, is_test_user, invalid, updated_at
			 FROM ml_tokens WHERE is_test_user ORDER BY user_id LIMIT 1`)
	} else {
		row = q.QueryRowContext(ctx,
			`SELECT user_id, access_token, refresh_token, expires_at, is_test_user, invalid, updated_at
			 FROM ml_tokens WHERE user_id = ?`, key.UserID)
	}
	err := row.Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.IsTestUser, &t.Invalid, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get token")
	}
	return &t, nil
}

func (s *SQLiteStore) GetToken(ctx context.Context, key TokenKey) (*model.Token, error) {
	return s.tokenRow(ctx, s.db, key)
}

func (s *SQLiteStore) UpsertToken(ctx context.Context, tok *model.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ml_tokens (user_id, access_token, refresh_token, expires_at, is_test_user, invalid, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (user_id) DO UPDATE
		 SET access_token = excluded.access_token, refresh_token = excluded.refresh_token,
		     expires_at = excluded.expires_at, is_test_user = excluded.is_test_user,
		     invalid = excluded.invalid, updated_at = datetime('now')`,
		tok.UserID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, tok.IsTestUser, tok.Invalid)
	return eris.Wrapf(err, "sqlite: upsert token %s", tok.UserID)
}

func (s *SQLiteStore) WithTokenLock(ctx context.Context, key TokenKey, fn func(ctx context.Context, tok *model.Token) (*model.Token, error)) (*model.Token, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	tok, err := s.tokenRow(ctx, s.db, key)
	if err != nil {
		return nil, err
	}

	updated, fnErr := fn(ctx, tok)
	if updated != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE ml_tokens SET access_token = ?, refresh_token = ?, expires_at = ?, invalid = ?, updated_at = datetime('now')
			 WHERE user_id = ?`,
			updated.AccessToken, updated.RefreshToken, updated.ExpiresAt, updated.Invalid, updated.UserID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: save refreshed token")
		}
		return updated, fnErr
	}
	return tok, fnErr
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*PostgresStore)(nil)
