package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// EligibilityStage recomputes which products qualify for the downstream
// stages. A product is eligible when it is active, priced and described.
type EligibilityStage struct {
	store store.Store
	log   *zap.Logger
}

// NewEligibilityStage creates the stage.
func NewEligibilityStage(st store.Store) *EligibilityStage {
	return &EligibilityStage{store: st, log: zap.L()}
}

// Eligible is the rule itself, exported so tests and the API can evaluate a
// product without running the batch.
func Eligible(p model.Product) bool {
	return p.IsActive && p.Price > 0 && strings.TrimSpace(p.Description) != ""
}

// Run refreshes eligibility for the selected products. The stage always
// recomputes; the gate does not apply because the rule's inputs change
// underneath it (price syncs, deactivations).
func (s *EligibilityStage) Run(ctx context.Context, params RunParams) (Summary, error) {
	candidates, err := s.store.ListEligibilityCandidates(ctx, store.CandidateFilter{
		Limit: params.Limit,
		Force: params.Force,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "eligibility: list candidates")
	}

	return Run(ctx, Options{Stage: "eligibility", Delay: params.Delay, DryRun: params.DryRun, Log: s.log},
		candidates,
		func(p model.Product) string { return p.Code },
		func(ctx context.Context, p model.Product) (ItemOutcome, error) {
			eligible := Eligible(p)
			if eligible == p.IsEligible {
				return ItemOutcome{Status: StatusSkipped}, nil
			}

			if params.DryRun {
				s.log.Info("would update eligibility",
					zap.String("code", p.Code),
					zap.Bool("eligible", eligible))
				return ItemOutcome{Status: StatusDone}, nil
			}

			if err := s.store.UpdateEligibility(ctx, p.ID, eligible); err != nil {
				return ItemOutcome{}, err
			}
			return ItemOutcome{Status: StatusDone}, nil
		})
}
