// Package store defines persistence for the catalog enrichment pipeline.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/catalog-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// CandidateFilter narrows stage candidate selection. Limit caps the batch as
// a cost safety valve, not a correctness mechanism; Force includes products
// that already have the stage's output.
type CandidateFilter struct {
	Limit int
	Force bool
}

// TokenKey identifies one marketplace account token. When Sandbox is set the
// lookup resolves to any test-user record and UserID is ignored.
type TokenKey struct {
	UserID  string
	Sandbox bool
}

// Store is the persistence interface consumed by the enrichment stages.
type Store interface {
	// Products
	GetProductByCode(ctx context.Context, code string) (*model.Product, error)
	ListScrapeCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListNormalizeCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListSpecCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListContentCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListGTINCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListImageCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListEligibilityCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListPublishCandidates(ctx context.Context, f CandidateFilter) ([]model.Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]model.Product, error)

	UpdateNormalized(ctx context.Context, productID int64, name, sku, modelName string) error
	UpdateSpecs(ctx context.Context, productID int64, specs map[string]string) error
	UpdateContent(ctx context.Context, productID int64, title, description string) error
	UpdateGTIN(ctx context.Context, productID int64, gtin, source string) error
	UpdateEligibility(ctx context.Context, productID int64, eligible bool) error
	UpsertPrice(ctx context.Context, code string, price float64, category string) error

	// Detail scrapes (owned by the scraping collaborator; read-mostly here)
	InsertDetailScrape(ctx context.Context, scrape *model.DetailScrape) error
	LatestDetailScrape(ctx context.Context, productID int64) (*model.DetailScrape, error)

	// Images
	InsertImages(ctx context.Context, productID int64, images []model.ProductImage) error
	ListImages(ctx context.Context, productID int64) ([]model.ProductImage, error)

	// Listings
	GetListing(ctx context.Context, productID int64) (*model.Listing, error)
	ListPendingListings(ctx context.Context, limit int) ([]model.Listing, error)
	SetListingStatus(ctx context.Context, productID int64, status model.ListingStatus, syncError string) error
	SetListingPublished(ctx context.Context, productID int64, mlID string) error

	// Tokens. WithTokenLock runs fn under an exclusive lock on the token
	// record (row-level in Postgres); when fn returns a non-nil token the
	// updated record is written back before the lock is released. This is
	// the single authoritative read-modify-write the refresh flow relies on.
	GetToken(ctx context.Context, key TokenKey) (*model.Token, error)
	UpsertToken(ctx context.Context, tok *model.Token) error
	WithTokenLock(ctx context.Context, key TokenKey, fn func(ctx context.Context, tok *model.Token) (*model.Token, error)) (*model.Token, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
