package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/anthropic"
)

// SpecsGenerator extracts structured attributes from product text.
// *anthropic.Generator satisfies it.
type SpecsGenerator interface {
	GenerateSpecs(ctx context.Context, in anthropic.ProductInput) (map[string]string, error)
}

// SpecsStage fills the structured attribute map of a product, merging scraped
// supplier attributes with model extraction from the raw description.
type SpecsStage struct {
	store store.Store
	gen   SpecsGenerator
	log   *zap.Logger
}

// NewSpecsStage creates the stage.
func NewSpecsStage(st store.Store, gen SpecsGenerator) *SpecsStage {
	return &SpecsStage{store: st, gen: gen, log: zap.L()}
}

// Run enriches the selected candidates.
func (s *SpecsStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListSpecCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "specs: list candidates")
	}

	return Run(ctx, Options{Stage: "specs", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			if !ShouldRun(params.Force, len(p.Specs) > 0) {
				return ItemOutcome{Status: StatusSkipped}, nil
			}
			specs, didWork, err := s.buildSpecs(ctx, p)
			if err != nil {
				return ItemOutcome{DidWork: didWork}, err
			}
			if len(specs) == 0 {
				return ItemOutcome{Status: StatusSkipped, DidWork: didWork}, nil
			}

			if params.DryRun {
				s.log.Info("would update specs",
					zap.String("code", p.Code),
					zap.Int("attributes", len(specs)))
				return ItemOutcome{Status: StatusDone, DidWork: didWork}, nil
			}

			if err := s.store.UpdateSpecs(ctx, p.ID, specs); err != nil {
				return ItemOutcome{DidWork: didWork}, err
			}
			return ItemOutcome{Status: StatusDone, DidWork: didWork}, nil
		})
}

// buildSpecs merges the two sources. Scraped supplier attributes are
// authoritative; the model only fills keys the scrape did not provide.
func (s *SpecsStage) buildSpecs(ctx context.Context, p model.Product) (map[string]string, bool, error) {
	specs := map[string]string{}

	scrape, err := s.store.LatestDetailScrape(ctx, p.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	if scrape != nil {
		for k, v := range scrape.Attributes {
			specs[NormalizeName(k)] = v
		}
	}

	generated, err := s.gen.GenerateSpecs(ctx, anthropic.ProductInput{
		Code:        p.Code,
		Description: p.Description,
		Category:    p.Category,
	})
	if err != nil {
		return nil, true, err
	}
	for k, v := range generated {
		key := NormalizeName(k)
		if _, ok := specs[key]; !ok && v != "" {
			specs[key] = v
		}
	}
	return specs, true, nil
}
