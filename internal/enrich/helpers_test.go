package enrich

import (
	"context"
	"time"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/supplier"
)

// fakeStore is an in-memory store.Store covering what the stage tests use.
type fakeStore struct {
	store.Store

	candidates []model.Product
	scrapes    map[int64]*model.DetailScrape
	images     map[int64][]model.ProductImage
	listings   map[int64]*model.Listing
	token      *model.Token

	gtins       map[int64][2]string // gtin, source
	contents    map[int64][2]string // title, description
	normalized  map[int64][3]string // name, sku, model
	specs       map[int64]map[string]string
	eligibility map[int64]bool
	statuses    map[int64]model.ListingStatus
	statusMsgs  map[int64]string
	published   map[int64]string
	newScrapes  []*model.DetailScrape
}

func newFakeStore(candidates ...model.Product) *fakeStore {
	return &fakeStore{
		candidates:  candidates,
		scrapes:     map[int64]*model.DetailScrape{},
		images:      map[int64][]model.ProductImage{},
		listings:    map[int64]*model.Listing{},
		gtins:       map[int64][2]string{},
		contents:    map[int64][2]string{},
		normalized:  map[int64][3]string{},
		specs:       map[int64]map[string]string{},
		eligibility: map[int64]bool{},
		statuses:    map[int64]model.ListingStatus{},
		statusMsgs:  map[int64]string{},
		published:   map[int64]string{},
	}
}

func (s *fakeStore) list(f store.CandidateFilter) ([]model.Product, error) {
	if f.Limit > 0 && len(s.candidates) > f.Limit {
		return s.candidates[:f.Limit], nil
	}
	return s.candidates, nil
}

func (s *fakeStore) ListScrapeCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListNormalizeCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListSpecCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListContentCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListGTINCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListImageCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListEligibilityCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) ListPublishCandidates(_ context.Context, f store.CandidateFilter) ([]model.Product, error) {
	return s.list(f)
}

func (s *fakeStore) GetProductByCode(_ context.Context, code string) (*model.Product, error) {
	for i := range s.candidates {
		if s.candidates[i].Code == code {
			return &s.candidates[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) UpdateNormalized(_ context.Context, id int64, name, sku, modelName string) error {
	s.normalized[id] = [3]string{name, sku, modelName}
	return nil
}

func (s *fakeStore) UpdateSpecs(_ context.Context, id int64, specs map[string]string) error {
	s.specs[id] = specs
	return nil
}

func (s *fakeStore) UpdateContent(_ context.Context, id int64, title, description string) error {
	s.contents[id] = [2]string{title, description}
	return nil
}

func (s *fakeStore) UpdateGTIN(_ context.Context, id int64, gtin, source string) error {
	s.gtins[id] = [2]string{gtin, source}
	return nil
}

func (s *fakeStore) UpdateEligibility(_ context.Context, id int64, eligible bool) error {
	s.eligibility[id] = eligible
	return nil
}

func (s *fakeStore) InsertDetailScrape(_ context.Context, scrape *model.DetailScrape) error {
	s.newScrapes = append(s.newScrapes, scrape)
	s.scrapes[scrape.ProductID] = scrape
	return nil
}

func (s *fakeStore) LatestDetailScrape(_ context.Context, productID int64) (*model.DetailScrape, error) {
	scrape, ok := s.scrapes[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return scrape, nil
}

func (s *fakeStore) InsertImages(_ context.Context, productID int64, images []model.ProductImage) error {
	s.images[productID] = append(s.images[productID], images...)
	return nil
}

func (s *fakeStore) ListImages(_ context.Context, productID int64) ([]model.ProductImage, error) {
	return s.images[productID], nil
}

func (s *fakeStore) GetListing(_ context.Context, productID int64) (*model.Listing, error) {
	l, ok := s.listings[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return l, nil
}

func (s *fakeStore) SetListingStatus(_ context.Context, productID int64, status model.ListingStatus, msg string) error {
	s.statuses[productID] = status
	s.statusMsgs[productID] = msg
	if l, ok := s.listings[productID]; ok {
		l.Status = status
		l.SyncError = msg
	}
	return nil
}

func (s *fakeStore) SetListingPublished(_ context.Context, productID int64, mlID string) error {
	s.published[productID] = mlID
	s.statuses[productID] = model.ListingActive
	s.listings[productID] = &model.Listing{ProductID: productID, MLID: mlID, Status: model.ListingActive}
	return nil
}

func (s *fakeStore) GetToken(_ context.Context, _ store.TokenKey) (*model.Token, error) {
	if s.token == nil {
		return nil, store.ErrNotFound
	}
	cp := *s.token
	return &cp, nil
}

func (s *fakeStore) WithTokenLock(ctx context.Context, _ store.TokenKey, fn func(ctx context.Context, tok *model.Token) (*model.Token, error)) (*model.Token, error) {
	if s.token == nil {
		return nil, store.ErrNotFound
	}
	cp := *s.token
	updated, err := fn(ctx, &cp)
	if updated != nil {
		s.token = updated
		return updated, err
	}
	return &cp, err
}

// fakeSupplier serves a canned detail payload for known codes.
type fakeSupplier struct {
	detail map[string]bool
}

func (f fakeSupplier) GetDetail(_ context.Context, code string) (*supplier.Detail, error) {
	if !f.detail[code] {
		return nil, supplier.ErrDetailNotFound
	}
	return &supplier.Detail{
		Code:       code,
		Name:       "Impresora HP LaserJet Pro M428fdw",
		Price:      349.99,
		Attributes: map[string]string{"Marca": "HP", "EAN": "0194850902345"},
		ImageURLs:  []string{"https://supplier.example.com/img/m428.jpg"},
	}, nil
}

func validToken() *model.Token {
	return &model.Token{
		UserID:       "123456",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}
