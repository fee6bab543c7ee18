package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/prices"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Manage the supplier price list",
}

var pricesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the price list over FTP and upsert products",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Supplier.FTPAddr == "" || cfg.Supplier.PriceListPath == "" {
			return eris.New("config: supplier.ftp_addr and supplier.price_list_path are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := newPriceSyncer(env).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("prices: upserted=%d bad_rows=%d\n", summary.Upserted, summary.BadRows)
		return nil
	},
}

var pricesLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Upsert products from a local price list workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := newPriceSyncer(env).Apply(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("prices: upserted=%d bad_rows=%d\n", summary.Upserted, summary.BadRows)
		return nil
	},
}

func newPriceSyncer(env *stageEnv) *prices.Syncer {
	return prices.NewSyncer(env.Store, prices.FTPConfig{
		Addr:     cfg.Supplier.FTPAddr,
		User:     cfg.Supplier.FTPUser,
		Password: cfg.Supplier.FTPPassword,
		Path:     cfg.Supplier.PriceListPath,
	})
}

func init() {
	pricesCmd.AddCommand(pricesSyncCmd)
	pricesCmd.AddCommand(pricesLoadCmd)
	rootCmd.AddCommand(pricesCmd)
}
