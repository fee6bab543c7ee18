package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	tokenCode    string
	tokenSandbox bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage MercadoLibre OAuth credentials",
}

var tokenInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Exchange an authorization code for tokens",
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

		ml := newMercadoLibre()
		tok, err := newAuthManager(env.Store, ml).InitFromCode(ctx, tokenCode, cfg.MercadoLibre.RedirectURI, tokenSandbox)
		if err != nil {
			return err
		}

		fmt.Printf("token stored for user %s, expires %s\n", tok.UserID, tok.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the stored token against the marketplace API",
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

		ml := newMercadoLibre()
		user, err := newAuthManager(env.Store, ml).Verify(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("token valid: user %d (%s), site %s\n", user.ID, user.Nickname, user.SiteID)
		return nil
	},
}

func init() {
	tokenInitCmd.Flags().StringVar(&tokenCode, "code", "", "authorization code from the OAuth redirect")
	tokenInitCmd.Flags().BoolVar(&tokenSandbox, "sandbox", false, "store the token as a sandbox test user")
	_ = tokenInitCmd.MarkFlagRequired("code")

	tokenCmd.AddCommand(tokenInitCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)
	rootCmd.AddCommand(tokenCmd)
}
