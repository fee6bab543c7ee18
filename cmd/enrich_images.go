package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/enrich"
	"github.com/sells-group/catalog-cli/pkg/gimages"
	"github.com/sells-group/catalog-cli/pkg/imgproc"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Search, process and store product images",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateImageSearch(); err != nil {
			return err
		}
		if cfg.ImageProc.ProcessURL == "" || cfg.ImageProc.UploadURL == "" {
			return eris.New("config: image_proc.process_url and image_proc.upload_url are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		searchOpts := []gimages.Option{
			gimages.WithDomainBlocklist(cfg.ImageSearch.DomainBlocklist),
		}
		if cfg.ImageSearch.BaseURL != "" {
			searchOpts = append(searchOpts, gimages.WithBaseURL(cfg.ImageSearch.BaseURL))
		}
		search := gimages.NewClient(cfg.ImageSearch.Key, cfg.ImageSearch.EngineID, searchOpts...)
		proc := imgproc.NewClient(cfg.ImageProc.ProcessURL, cfg.ImageProc.UploadURL, cfg.ImageProc.UploadKey)

		return runStage(ctx, env, enrich.NewImageStage(env.Store, search, proc, cfg.ImageSearch.MaxResults))
	},
}

func init() {
	addStageFlags(imagesCmd)
	enrichCmd.AddCommand(imagesCmd)
}
