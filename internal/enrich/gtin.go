package enrich

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/fallback"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// gtinPattern accepts GTIN-8 through GTIN-14.
var gtinPattern = regexp.MustCompile(`^\d{8,14}$`)

// GTINSearcher looks up a product barcode from a free-text product query.
// *anthropic.Generator satisfies it.
type GTINSearcher interface {
	SearchGTIN(ctx context.Context, query string) (string, error)
}

// GTINStage resolves the product barcode through an ordered query cascade of
// decreasing precision: SKU plus normalized name, then brand plus model, then
// the raw supplier scrape description. Exhaustion is persisted so the product
// is not retried every run.
type GTINStage struct {
	store store.Store
	gen   GTINSearcher
	log   *zap.Logger
}

// NewGTINStage creates the stage.
func NewGTINStage(st store.Store, gen GTINSearcher) *GTINStage {
	return &GTINStage{store: st, gen: gen, log: zap.L()}
}

// cleanDigits keeps digits only, so "0 194850-902345" still validates.
func cleanDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// scrapeQuery synthesizes a product description from the newest scrape:
// its name plus up to five attribute pairs.
func scrapeQuery(scrape *model.DetailScrape) string {
	keys := make([]string, 0, len(scrape.Attributes))
	for k := range scrape.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 5 {
		keys = keys[:5]
	}

	var b strings.Builder
	b.WriteString(scrape.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s: %s", k, scrape.Attributes[k])
	}
	return b.String()
}

// strategies builds the cascade for one product. Every strategy queries the
// external searcher, so each execution flips didWork.
func (s *GTINStage) strategies(p model.Product, scrape *model.DetailScrape, didWork *bool) []fallback.Strategy[string] {
	search := func(ctx context.Context, query string) (string, error) {
		*didWork = true
		raw, err := s.gen.SearchGTIN(ctx, query)
		if err != nil {
			return "", err
		}
		return cleanDigits(raw), nil
	}

	return []fallback.Strategy[string]{
		{
			Name:    "sku_normalized_name",
			Trigger: func(context.Context) bool { return p.SKU != "" && p.NormalizedName != "" },
			Execute: func(ctx context.Context) (string, error) {
				return search(ctx, p.SKU+" "+p.NormalizedName)
			},
		},
		{
			Name:    "model_brand",
			Trigger: func(context.Context) bool { return p.ModelName != "" && p.BrandFromSpecs() != "" },
			Execute: func(ctx context.Context) (string, error) {
				return search(ctx, p.BrandFromSpecs()+" "+p.ModelName)
			},
		},
		{
			Name:    "raw_description",
			Trigger: func(context.Context) bool { return scrape != nil },
			Execute: func(ctx context.Context) (string, error) {
				return search(ctx, scrapeQuery(scrape))
			},
		},
	}
}

// Run resolves barcodes for the selected candidates.
func (s *GTINStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListGTINCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "gtin: list candidates")
	}

	resolver := fallback.NewResolver(gtinPattern.MatchString).WithLogger(s.log)

	return Run(ctx, Options{Stage: "gtin", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			hasOutput := p.GTIN != "" || p.GTINSource == model.GTINNotFound
			if !ShouldRun(params.Force, hasOutput) {
				return ItemOutcome{Status: StatusSkipped}, nil
			}

			scrape, err := s.store.LatestDetailScrape(ctx, p.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return ItemOutcome{}, err
			}

			didWork := false
			outcome, err := resolver.Resolve(ctx, s.strategies(p, scrape, &didWork))
			if err != nil {
				return ItemOutcome{DidWork: didWork}, err
			}

			if params.DryRun {
				s.log.Info("would update gtin",
					zap.String("code", p.Code),
					zap.String("gtin", outcome.Value),
					zap.String("source", outcome.Strategy))
				return ItemOutcome{Status: StatusDone, DidWork: didWork}, nil
			}

			if !outcome.Found() {
				// Persist exhaustion so the candidate query stops returning
				// this product.
				if err := s.store.UpdateGTIN(ctx, p.ID, "", model.GTINNotFound); err != nil {
					return ItemOutcome{DidWork: didWork}, err
				}
				return ItemOutcome{Status: StatusDone, DidWork: didWork}, nil
			}

			if err := s.store.UpdateGTIN(ctx, p.ID, outcome.Value, outcome.Strategy); err != nil {
				return ItemOutcome{DidWork: didWork}, err
			}
			return ItemOutcome{Status: StatusDone, DidWork: didWork}, nil
		})
}
