// Package fallback implements the generic strategy cascade used by GTIN and
// image search: an ordered list of named strategies tried until one produces
// a candidate that passes validation.
package fallback

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

// StrategyNotFound is the sentinel strategy name returned when every strategy
// was skipped, failed, or produced an invalid candidate.
const StrategyNotFound = "NOT_FOUND"

// Strategy is one data-acquisition method. Trigger decides, from entity state
// alone, whether Execute is worth an external call; Execute produces a raw
// candidate. Each strategy executes at most once per resolution.
type Strategy[T any] struct {
	Name    string
	Trigger func(ctx context.Context) bool
	Execute func(ctx context.Context) (T, error)
}

// Outcome is the transient result of a resolution: the winning candidate and
// the name of the strategy that produced it, or the zero value plus
// StrategyNotFound.
type Outcome[T any] struct {
	Value    T
	Strategy string
}

// Found reports whether any strategy succeeded.
func (o Outcome[T]) Found() bool {
	return o.Strategy != StrategyNotFound
}

// Resolver tries strategies in order, validating each candidate, and stops at
// the first success. Validation failure or a recoverable execution error
// moves on to the next strategy without retrying the current one; any other
// error propagates, since masking it risks hiding a programming bug.
type Resolver[T any] struct {
	Validate func(T) bool
	log      *zap.Logger
}

// NewResolver creates a resolver with the given candidate validator. A nil
// validator accepts every candidate.
func NewResolver[T any](validate func(T) bool) *Resolver[T] {
	return &Resolver[T]{
		Validate: validate,
		log:      zap.L(),
	}
}

// WithLogger replaces the resolver's logger, mainly for tests.
func (r *Resolver[T]) WithLogger(log *zap.Logger) *Resolver[T] {
	r.log = log
	return r
}

// Resolve runs the cascade and returns the first validated candidate together
// with its strategy name.
func (r *Resolver[T]) Resolve(ctx context.Context, strategies []Strategy[T]) (Outcome[T], error) {
	var zero T

	for _, s := range strategies {
		if s.Trigger != nil && !s.Trigger(ctx) {
			r.log.Debug("strategy skipped, trigger not met",
				zap.String("strategy", s.Name),
			)
			continue
		}

		val, err := s.Execute(ctx)
		if err != nil {
			if !resilience.IsRecoverable(err) {
				return Outcome[T]{Value: zero, Strategy: StrategyNotFound}, err
			}
			r.log.Warn("strategy execution failed",
				zap.String("strategy", s.Name),
				zap.Error(err),
			)
			continue
		}

		if r.Validate != nil && !r.Validate(val) {
			r.log.Warn("strategy candidate rejected by validation",
				zap.String("strategy", s.Name),
			)
			continue
		}

		r.log.Info("strategy succeeded",
			zap.String("strategy", s.Name),
		)
		return Outcome[T]{Value: val, Strategy: s.Name}, nil
	}

	return Outcome[T]{Value: zero, Strategy: StrategyNotFound}, nil
}
