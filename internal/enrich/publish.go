package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/auth"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/mercadolibre"
)

// PublishConfig carries the marketplace listing defaults.
type PublishConfig struct {
	CurrencyID    string
	ListingTypeID string
	Quantity      int
}

// Publisher creates, pauses and closes marketplace listings.
type Publisher struct {
	store store.Store
	ml    mercadolibre.Client
	auth  *auth.Manager
	cfg   PublishConfig
	log   *zap.Logger
}

// NewPublisher creates the publisher.
func NewPublisher(st store.Store, ml mercadolibre.Client, am *auth.Manager, cfg PublishConfig) *Publisher {
	if cfg.CurrencyID == "" {
		cfg.CurrencyID = "USD"
	}
	if cfg.ListingTypeID == "" {
		cfg.ListingTypeID = "gold_special"
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	return &Publisher{store: st, ml: ml, auth: am, cfg: cfg, log: zap.L()}
}

// Run publishes the selected candidates.
func (s *Publisher) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListPublishCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "publish: list candidates")
	}

	return Run(ctx, Options{Stage: "publish", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			listing, err := s.store.GetListing(ctx, p.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return ItemOutcome{}, err
			}
			hasListing := listing != nil && listing.Status == model.ListingActive
			if !ShouldRun(params.Force, hasListing) {
				return ItemOutcome{Status: StatusSkipped}, nil
			}
			return s.publishOne(ctx, p, params.DryRun)
		})
}

func (s *Publisher) publishOne(ctx context.Context, p model.Product, dryRun bool) (ItemOutcome, error) {
	if p.Price <= 0 {
		return ItemOutcome{}, s.markError(ctx, p, "product has no price")
	}
	images, err := s.store.ListImages(ctx, p.ID)
	if err != nil {
		return ItemOutcome{}, err
	}
	if len(images) == 0 {
		return ItemOutcome{}, s.markError(ctx, p, "product has no images")
	}

	req := mercadolibre.ItemRequest{
		Title:             p.SEOTitle,
		Price:             p.Price,
		CurrencyID:        s.cfg.CurrencyID,
		AvailableQuantity: s.cfg.Quantity,
		BuyingMode:        "buy_it_now",
		ListingTypeID:     s.cfg.ListingTypeID,
		Condition:         "new",
	}
	if p.GTIN != "" && p.GTINSource != model.GTINNotFound {
		req.Attributes = append(req.Attributes, mercadolibre.Attribute{ID: "GTIN", ValueName: p.GTIN})
	}
	for _, img := range images {
		req.Pictures = append(req.Pictures, mercadolibre.Picture{Source: img.URL})
	}

	if dryRun {
		s.log.Info("would publish",
			zap.String("code", p.Code),
			zap.String("title", req.Title),
			zap.Int("pictures", len(req.Pictures)))
		return ItemOutcome{Status: StatusDone}, nil
	}

	access, err := s.auth.AccessToken(ctx)
	if err != nil {
		return ItemOutcome{}, err
	}

	item, err := s.ml.PublishItem(ctx, access, req)
	if err != nil {
		if recordErr := s.store.SetListingStatus(ctx, p.ID, model.ListingError, err.Error()); recordErr != nil {
			s.log.Error("failed to record publish error",
				zap.String("code", p.Code),
				zap.Error(recordErr))
		}
		return ItemOutcome{DidWork: true}, err
	}

	if err := s.ml.SetDescription(ctx, access, item.ID, p.SEODescription); err != nil {
		// The listing exists; a missing description is not worth failing it.
		s.log.Warn("failed to set listing description",
			zap.String("code", p.Code),
			zap.String("ml_id", item.ID),
			zap.Error(err))
	}

	if err := s.store.SetListingPublished(ctx, p.ID, item.ID); err != nil {
		return ItemOutcome{DidWork: true}, err
	}
	s.log.Info("published listing",
		zap.String("code", p.Code),
		zap.String("ml_id", item.ID))
	return ItemOutcome{Status: StatusDone, DidWork: true}, nil
}

func (s *Publisher) markError(ctx context.Context, p model.Product, reason string) error {
	if err := s.store.SetListingStatus(ctx, p.ID, model.ListingError, reason); err != nil {
		return eris.Wrapf(err, "publish: record error for %s", p.Code)
	}
	return eris.Errorf("publish: %s (%s)", reason, p.Code)
}

// setRemoteStatus flips an existing listing's status both remotely and
// locally. Used by the pause and close operations.
func (s *Publisher) setRemoteStatus(ctx context.Context, code, remoteStatus string, localStatus model.ListingStatus) error {
	p, err := s.store.GetProductByCode(ctx, code)
	if err != nil {
		return eris.Wrapf(err, "publish: load product %s", code)
	}
	listing, err := s.store.GetListing(ctx, p.ID)
	if err != nil {
		return eris.Wrapf(err, "publish: load listing for %s", code)
	}
	if listing.MLID == "" {
		return eris.Errorf("publish: product %s was never published", code)
	}

	access, err := s.auth.AccessToken(ctx)
	if err != nil {
		return err
	}
	if err := s.ml.SetStatus(ctx, access, listing.MLID, remoteStatus); err != nil {
		return err
	}
	return s.store.SetListingStatus(ctx, p.ID, localStatus, "")
}

// Pause pauses an active listing by product code.
func (s *Publisher) Pause(ctx context.Context, code string) error {
	return s.setRemoteStatus(ctx, code, "paused", model.ListingPaused)
}

// Close permanently closes a listing by product code.
func (s *Publisher) Close(ctx context.Context, code string) error {
	return s.setRemoteStatus(ctx, code, "closed", model.ListingClosed)
}
