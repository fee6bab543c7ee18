package enrich

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// NormalizeStage derives the searchable name, SKU and model fields from the
// raw supplier description. It makes no external calls.
type NormalizeStage struct {
	store store.Store
	log   *zap.Logger
}

// NewNormalizeStage creates the stage.
func NewNormalizeStage(st store.Store) *NormalizeStage {
	return &NormalizeStage{store: st, log: zap.L()}
}

// foldDiacritics strips combining marks so "impresión" folds to "impresion".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, folds diacritics and collapses whitespace and
// punctuation noise in a supplier description.
func NormalizeName(raw string) string {
	folded, _, err := transform.String(foldDiacritics, raw)
	if err != nil {
		folded = raw
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case r == '-' || r == '.' || r == '/':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// modelKeys are the spec attributes that carry the manufacturer model.
var modelKeys = []string{"modelo", "model", "mpn", "numero de parte"}

func modelFromSpecs(specs map[string]string) string {
	for key, val := range specs {
		folded := NormalizeName(key)
		for _, k := range modelKeys {
			if folded == k {
				return strings.TrimSpace(val)
			}
		}
	}
	return ""
}

// skuFromCode uppercases the supplier code and drops anything that is not
// alphanumeric or a dash.
func skuFromCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Run normalizes the selected candidates.
func (s *NormalizeStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListNormalizeCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "normalize: list candidates")
	}

	return Run(ctx, Options{Stage: "normalize", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			if !ShouldRun(params.Force, p.NormalizedName != "") {
				return ItemOutcome{Status: StatusSkipped}, nil
			}

			name := NormalizeName(p.Description)
			if name == "" {
				return ItemOutcome{}, eris.Errorf("normalize: product %s has an empty description", p.Code)
			}

			if params.DryRun {
				s.log.Info("would normalize",
					zap.String("code", p.Code),
					zap.String("name", name))
				return ItemOutcome{Status: StatusDone}, nil
			}

			if err := s.store.UpdateNormalized(ctx, p.ID, name, skuFromCode(p.Code), modelFromSpecs(p.Specs)); err != nil {
				return ItemOutcome{}, err
			}
			return ItemOutcome{Status: StatusDone}, nil
		})
}
