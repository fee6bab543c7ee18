package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/fallback"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/gimages"
	"github.com/sells-group/catalog-cli/pkg/imgproc"
)

// ImageStage finds, processes and stores listing photos. The first stored
// image is the listing cover and the only one that gets background removal.
type ImageStage struct {
	store      store.Store
	search     gimages.Client
	proc       imgproc.Client
	maxResults int
	log        *zap.Logger
}

// NewImageStage creates the stage.
func NewImageStage(st store.Store, search gimages.Client, proc imgproc.Client, maxResults int) *ImageStage {
	return &ImageStage{store: st, search: search, proc: proc, maxResults: maxResults, log: zap.L()}
}

// candidateURLs reports at most the first five candidates.
func candidateURLs(results []gimages.Result) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if len(urls) == 5 {
			break
		}
		urls = append(urls, r.URL)
	}
	return urls
}

// searchQuery prefers the structured fields and falls back to the raw
// description when normalization has not run yet.
func searchQuery(p model.Product) string {
	parts := []string{}
	if brand := p.BrandFromSpecs(); brand != "" {
		parts = append(parts, brand)
	}
	if p.ModelName != "" {
		parts = append(parts, p.ModelName)
	}
	if p.NormalizedName != "" {
		parts = append(parts, p.NormalizedName)
	} else {
		parts = append(parts, p.Description)
	}
	return strings.Join(parts, " ")
}

// Run enriches images for the selected candidates.
func (s *ImageStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListImageCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "images: list candidates")
	}

	return Run(ctx, Options{Stage: "images", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			if !ShouldRun(params.Force, p.ImageCount > 0) {
				return ItemOutcome{Status: StatusSkipped}, nil
			}
			return s.enrichOne(ctx, p, params.DryRun)
		})
}

func (s *ImageStage) enrichOne(ctx context.Context, p model.Product, dryRun bool) (ItemOutcome, error) {
	// Single-strategy cascade: a recoverable search failure resolves to
	// NOT_FOUND, which is treated the same as an empty result set.
	resolver := fallback.NewResolver(func(rs []gimages.Result) bool { return len(rs) > 0 }).WithLogger(s.log)
	outcome, err := resolver.Resolve(ctx, []fallback.Strategy[[]gimages.Result]{{
		Name: "image_search",
		Execute: func(ctx context.Context) ([]gimages.Result, error) {
			return s.search.SearchImages(ctx, searchQuery(p), s.maxResults)
		},
	}})
	if err != nil {
		return ItemOutcome{DidWork: true}, err
	}
	results := outcome.Value

	if dryRun {
		if !outcome.Found() {
			s.log.Info("would mark listing error",
				zap.String("code", p.Code),
				zap.String("reason", "image search returned no candidates"))
			return ItemOutcome{DidWork: true},
				resilience.NewRecoverable(eris.Errorf("images: image search returned no candidates for %s", p.Code), 0)
		}
		s.log.Info("would process images",
			zap.String("code", p.Code),
			zap.Strings("candidates", candidateURLs(results)))
		return ItemOutcome{Status: StatusDone, DidWork: true}, nil
	}

	if !outcome.Found() {
		return ItemOutcome{DidWork: true}, s.markFailed(ctx, p, "image search returned no candidates")
	}

	images := make([]model.ProductImage, 0, len(results))
	order := 0
	for _, r := range results {
		// Only the cover image pays for background removal.
		data, err := s.proc.ProcessImage(ctx, r.URL, order == 0)
		if err != nil {
			s.log.Warn("image processing failed",
				zap.String("code", p.Code),
				zap.String("url", r.URL),
				zap.Error(err))
			continue
		}
		name := fmt.Sprintf("products/%d-%d.jpg", p.ID, order)
		hosted, err := s.proc.Upload(ctx, name, data)
		if err != nil {
			s.log.Warn("image upload failed",
				zap.String("code", p.Code),
				zap.String("url", r.URL),
				zap.Error(err))
			continue
		}
		images = append(images, model.ProductImage{
			ProductID: p.ID,
			URL:       hosted,
			Order:     order,
			Processed: true,
		})
		order++
	}

	if len(images) == 0 {
		return ItemOutcome{DidWork: true}, s.markFailed(ctx, p, "no candidate image survived processing")
	}

	if err := s.store.InsertImages(ctx, p.ID, images); err != nil {
		return ItemOutcome{DidWork: true}, err
	}
	s.log.Info("stored product images",
		zap.String("code", p.Code),
		zap.Int("count", len(images)))
	return ItemOutcome{Status: StatusDone, DidWork: true}, nil
}

// markFailed records the failure on the listing so the publisher never picks
// up a product without photos, then reports the item as failed.
func (s *ImageStage) markFailed(ctx context.Context, p model.Product, reason string) error {
	if err := s.store.SetListingStatus(ctx, p.ID, model.ListingError, reason); err != nil {
		return eris.Wrapf(err, "images: record failure for %s", p.Code)
	}
	return resilience.NewRecoverable(eris.Errorf("images: %s for %s", reason, p.Code), 0)
}
