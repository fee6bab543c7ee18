package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/enrich"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish eligible products as MercadoLibre listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateMarketplace(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return runStage(ctx, env, newPublisher(env))
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <code>",
	Short: "Pause a product's active listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateMarketplace(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := newPublisher(env).Pause(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("listing for %s paused\n", args[0])
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <code>",
	Short: "Close a product's listing permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateMarketplace(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := newPublisher(env).Close(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("listing for %s closed\n", args[0])
		return nil
	},
}

func newPublisher(env *stageEnv) *enrich.Publisher {
	ml := newMercadoLibre()
	am := newAuthManager(env.Store, ml)
	return enrich.NewPublisher(env.Store, ml, am, enrich.PublishConfig{
		CurrencyID:    cfg.MercadoLibre.CurrencyID,
		ListingTypeID: cfg.MercadoLibre.ListingType,
		Quantity:      cfg.MercadoLibre.Quantity,
	})
}

func init() {
	addStageFlags(publishCmd)
	publishCmd.AddCommand(pauseCmd)
	publishCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(publishCmd)
}
