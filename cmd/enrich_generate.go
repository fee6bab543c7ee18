package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/enrich"
)

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Fill in technical specs from scrape data and Claude",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateGeneration(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return runStage(ctx, env, enrich.NewSpecsStage(env.Store, newGenerator()))
	},
}

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Generate SEO titles and descriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateGeneration(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rules := enrich.ContentRules{
			TitleMaxLength: cfg.Enrich.TitleMaxLength,
			TitleDenylist:  cfg.Enrich.TitleDenylist,
		}
		return runStage(ctx, env, enrich.NewContentStage(env.Store, newGenerator(), rules))
	},
}

var gtinCmd = &cobra.Command{
	Use:   "gtin",
	Short: "Resolve GTIN barcodes from specs, scrapes and Claude",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateGeneration(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return runStage(ctx, env, enrich.NewGTINStage(env.Store, newGenerator()))
	},
}

func init() {
	addStageFlags(specsCmd)
	addStageFlags(contentCmd)
	addStageFlags(gtinCmd)
	enrichCmd.AddCommand(specsCmd)
	enrichCmd.AddCommand(contentCmd)
	enrichCmd.AddCommand(gtinCmd)
}
