package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/enrich"
	"github.com/sells-group/catalog-cli/pkg/supplier"
)

var detailsCmd = &cobra.Command{
	Use:   "details",
	Short: "Scrape supplier detail pages for products without one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Supplier.DetailBaseURL == "" {
			return eris.New("config: supplier.detail_base_url is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sc := supplier.NewClient(cfg.Supplier.DetailBaseURL)
		return runStage(ctx, env, enrich.NewDetailStage(env.Store, sc))
	},
}

func init() {
	addStageFlags(detailsCmd)
	enrichCmd.AddCommand(detailsCmd)
}
