package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/enrich"
)

var (
	enrichLimit  int
	enrichForce  bool
	enrichDryRun bool
	enrichDelay  time.Duration
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run catalog enrichment stages",
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}

// addStageFlags registers the knobs every stage command shares. Zero values
// fall back to the configured defaults.
func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&enrichLimit, "limit", 0, "max products to process (default from config)")
	cmd.Flags().BoolVar(&enrichForce, "force", false, "re-run products that already have output")
	cmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "report decisions without writing")
	cmd.Flags().DurationVar(&enrichDelay, "delay", 0, "pause between items that hit external services (default from config)")
}

func stageParams() enrich.RunParams {
	p := enrich.RunParams{
		Limit:  enrichLimit,
		Force:  enrichForce,
		DryRun: enrichDryRun,
		Delay:  enrichDelay,
	}
	if p.Limit <= 0 {
		p.Limit = cfg.Enrich.DefaultLimit
	}
	if p.Delay <= 0 {
		p.Delay = time.Duration(cfg.Enrich.DelayMillis) * time.Millisecond
	}
	return p
}

type stageRunner interface {
	Run(ctx context.Context, params enrich.RunParams) (enrich.Summary, error)
}

// runStage drives one stage and reports the summary. Per-item failures are
// already counted inside the run, so the command still exits zero; only a
// setup error or cancellation fails it.
func runStage(ctx context.Context, env *stageEnv, stage stageRunner) error {
	summary, err := stage.Run(ctx, stageParams())
	if err != nil {
		return err
	}
	reportSummary(ctx, env, summary)
	return nil
}

func reportSummary(ctx context.Context, env *stageEnv, s enrich.Summary) {
	fmt.Printf("%s: processed=%d skipped=%d failed=%d duration=%s\n",
		s.Stage, s.Processed, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))

	text := fmt.Sprintf("catalog %s: %d processed, %d skipped, %d failed",
		s.Stage, s.Processed, s.Skipped, s.Failed)
	if s.DryRun {
		text += " (dry run)"
	}
	if err := env.Notifier.Notify(ctx, text); err != nil {
		zap.L().Warn("batch notification failed", zap.Error(err))
	}
}
