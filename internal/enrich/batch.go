package enrich

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RunParams are the knobs every stage command exposes.
type RunParams struct {
	Limit  int
	Force  bool
	Delay  time.Duration
	DryRun bool
}

// Status classifies one item's run.
type Status int

const (
	// StatusDone means the stage produced or persisted output for the item.
	StatusDone Status = iota
	// StatusSkipped means the gate or a precondition ruled the item out.
	StatusSkipped
)

// ItemOutcome is what a stage reports back to the driver for one item.
// DidWork marks items that hit an external service, which is what the
// inter-item delay exists to pace.
type ItemOutcome struct {
	Status  Status
	DidWork bool
}

// Summary is the tri-count result of one batch run.
type Summary struct {
	Session   string
	Stage     string
	Processed int
	Skipped   int
	Failed    int
	DryRun    bool
	Duration  time.Duration
}

// Options configures one batch run.
type Options struct {
	Stage  string
	Delay  time.Duration
	DryRun bool
	Log    *zap.Logger
}

// Run processes items sequentially. Item failures are isolated: the error is
// logged, the failed count incremented, and the run continues. Only context
// cancellation stops the batch early. The delay paces external calls, so it
// is applied only after items that reported work.
func Run[T any](ctx context.Context, opts Options, items []T, describe func(T) string, fn func(context.Context, T) (ItemOutcome, error)) (Summary, error) {
	log := opts.Log
	if log == nil {
		log = zap.L()
	}

	summary := Summary{
		Session: uuid.NewString(),
		Stage:   opts.Stage,
		DryRun:  opts.DryRun,
	}
	log = log.With(
		zap.String("session", summary.Session),
		zap.String("stage", opts.Stage),
		zap.Bool("dry_run", opts.DryRun),
	)
	log.Info("batch started", zap.Int("items", len(items)))

	start := time.Now()
	var limiter *rate.Limiter
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	lastDidWork := false
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		if limiter != nil && lastDidWork {
			if err := limiter.Wait(ctx); err != nil {
				summary.Duration = time.Since(start)
				return summary, err
			}
		}

		outcome, err := fn(ctx, item)
		lastDidWork = outcome.DidWork
		switch {
		case err != nil:
			summary.Failed++
			log.Warn("item failed",
				zap.String("item", describe(item)),
				zap.Error(err),
			)
		case outcome.Status == StatusSkipped:
			summary.Skipped++
			log.Debug("item skipped", zap.String("item", describe(item)))
		default:
			summary.Processed++
			log.Info("item processed", zap.String("item", describe(item)))
		}
	}

	summary.Duration = time.Since(start)
	log.Info("batch finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}
