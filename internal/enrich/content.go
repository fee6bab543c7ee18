package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/anthropic"
)

// ContentRules constrain the generated listing copy.
type ContentRules struct {
	TitleMaxLength int
	TitleDenylist  []string
}

// ContentGenerator produces listing copy. *anthropic.Generator satisfies it.
type ContentGenerator interface {
	GenerateTitle(ctx context.Context, in anthropic.ProductInput) (string, error)
	GenerateDescription(ctx context.Context, in anthropic.ProductInput) (string, error)
}

// ContentStage generates the listing title and description.
type ContentStage struct {
	store store.Store
	gen   ContentGenerator
	rules ContentRules
	log   *zap.Logger
}

// NewContentStage creates the stage.
func NewContentStage(st store.Store, gen ContentGenerator, rules ContentRules) *ContentStage {
	return &ContentStage{store: st, gen: gen, rules: rules, log: zap.L()}
}

// SanitizeTitle strips denied terms and truncates to the limit on a word
// boundary. Comparison is case and diacritic insensitive.
func SanitizeTitle(title string, rules ContentRules) string {
	words := strings.Fields(title)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		folded := NormalizeName(w)
		denied := false
		for _, d := range rules.TitleDenylist {
			if folded == NormalizeName(d) {
				denied = true
				break
			}
		}
		if !denied {
			kept = append(kept, w)
		}
	}

	out := strings.Join(kept, " ")
	// Multi-word denied phrases survive the word pass.
	for _, d := range rules.TitleDenylist {
		if !strings.Contains(d, " ") {
			continue
		}
		for {
			removed := removePhrase(out, d)
			if removed == out {
				break
			}
			out = removed
		}
	}
	out = strings.Join(strings.Fields(out), " ")

	if rules.TitleMaxLength > 0 {
		out = truncateWords(out, rules.TitleMaxLength)
	}
	return strings.TrimSpace(out)
}

func removePhrase(s, phrase string) string {
	words := strings.Fields(s)
	target := strings.Fields(NormalizeName(phrase))
	for i := 0; i+len(target) <= len(words); i++ {
		match := true
		for j, t := range target {
			if NormalizeName(words[i+j]) != t {
				match = false
				break
			}
		}
		if match {
			return strings.Join(append(words[:i:i], words[i+len(target):]...), " ")
		}
	}
	return s
}

func truncateWords(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	words := strings.Fields(s)
	out := ""
	for _, w := range words {
		next := out
		if next != "" {
			next += " "
		}
		next += w
		if len(next) > limit {
			break
		}
		out = next
	}
	if out == "" && len(words) > 0 {
		// A single word longer than the limit gets a hard cut.
		out = words[0][:limit]
	}
	return out
}

// fallbackTitle builds a title from the product's own fields when generation
// fails or produces nothing usable.
func (s *ContentStage) fallbackTitle(p model.Product) string {
	base := p.NormalizedName
	if base == "" {
		base = p.Description
	}
	return SanitizeTitle(base, s.rules)
}

// Run generates content for the selected candidates.
func (s *ContentStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListContentCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "content: list candidates")
	}

	return Run(ctx, Options{Stage: "content", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			if !ShouldRun(params.Force, p.SEOTitle != "" && p.SEODescription != "") {
				return ItemOutcome{Status: StatusSkipped}, nil
			}

			input := anthropic.ProductInput{
				Code:        p.Code,
				Description: p.Description,
				Brand:       p.BrandFromSpecs(),
				Model:       p.ModelName,
				Category:    p.Category,
				Specs:       p.Specs,
			}

			// Generation failures fall back to the product's own fields so
			// one bad generation never leaves the product unusable. The item
			// is still reported failed.
			genFailed := false

			title, err := s.gen.GenerateTitle(ctx, input)
			if err != nil {
				s.log.Error("title generation failed, falling back to product fields",
					zap.String("code", p.Code), zap.Error(err))
				genFailed = true
				title = ""
			}
			title = SanitizeTitle(title, s.rules)
			if title == "" {
				title = s.fallbackTitle(p)
			}
			if title == "" {
				return ItemOutcome{DidWork: true}, eris.Errorf("content: no usable title for %s", p.Code)
			}

			var desc string
			if !genFailed {
				desc, err = s.gen.GenerateDescription(ctx, input)
				if err != nil {
					s.log.Error("description generation failed, falling back to product fields",
						zap.String("code", p.Code), zap.Error(err))
					genFailed = true
				}
			}
			if strings.TrimSpace(desc) == "" {
				desc = p.Description
			}

			if params.DryRun {
				s.log.Info("would update content",
					zap.String("code", p.Code),
					zap.String("title", title))
				if genFailed {
					return ItemOutcome{DidWork: true}, eris.Errorf("content: generation failed for %s", p.Code)
				}
				return ItemOutcome{Status: StatusDone, DidWork: true}, nil
			}

			if err := s.store.UpdateContent(ctx, p.ID, title, desc); err != nil {
				return ItemOutcome{DidWork: true}, err
			}
			if genFailed {
				return ItemOutcome{DidWork: true}, eris.Errorf("content: generation failed for %s, fallback saved", p.Code)
			}
			return ItemOutcome{Status: StatusDone, DidWork: true}, nil
		})
}
