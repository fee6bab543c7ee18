package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/enrich"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize product names, SKUs and model numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return runStage(ctx, env, enrich.NewNormalizeStage(env.Store))
	},
}

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility",
	Short: "Recompute which products qualify for publishing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return runStage(ctx, env, enrich.NewEligibilityStage(env.Store))
	},
}

func init() {
	addStageFlags(normalizeCmd)
	addStageFlags(eligibilityCmd)
	enrichCmd.AddCommand(normalizeCmd)
	enrichCmd.AddCommand(eligibilityCmd)
}
