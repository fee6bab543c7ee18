package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/supplier"
)

// DetailStage pulls the supplier's detail payload for each product and
// records it as a scrape, feeding the specs and gtin stages.
type DetailStage struct {
	store    store.Store
	supplier supplier.Client
	log      *zap.Logger
}

// NewDetailStage creates the stage.
func NewDetailStage(st store.Store, sc supplier.Client) *DetailStage {
	return &DetailStage{store: st, supplier: sc, log: zap.L()}
}

// Run syncs details for the selected candidates.
func (s *DetailStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListScrapeCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "details: list candidates")
	}

	return Run(ctx, Options{Stage: "details", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			detail, err := s.supplier.GetDetail(ctx, p.Code)
			if errors.Is(err, supplier.ErrDetailNotFound) {
				s.log.Warn("supplier has no detail for product", zap.String("code", p.Code))
				return ItemOutcome{Status: StatusSkipped, DidWork: true}, nil
			}
			if err != nil {
				return ItemOutcome{DidWork: true}, err
			}

			if params.DryRun {
				s.log.Info("would record detail scrape",
					zap.String("code", p.Code),
					zap.Int("attributes", len(detail.Attributes)))
				return ItemOutcome{Status: StatusDone, DidWork: true}, nil
			}

			scrape := &model.DetailScrape{
				ProductID:  p.ID,
				Name:       detail.Name,
				Price:      detail.Price,
				Attributes: detail.Attributes,
				ImageURLs:  detail.ImageURLs,
			}
			if err := s.store.InsertDetailScrape(ctx, scrape); err != nil {
				return ItemOutcome{DidWork: true}, err
			}
			return ItemOutcome{Status: StatusDone, DidWork: true}, nil
		})
}
