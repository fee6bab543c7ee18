package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/auth"
	"github.com/sells-group/catalog-cli/internal/store"
	"github.com/sells-group/catalog-cli/pkg/anthropic"
	"github.com/sells-group/catalog-cli/pkg/mercadolibre"
	"github.com/sells-group/catalog-cli/pkg/telegram"
)

// stageEnv holds the store and notifier shared by every stage command. API
// clients are built per command because each stage needs a different subset.
type stageEnv struct {
	Store    store.Store
	Notifier telegram.Notifier
}

// Close releases resources held by the environment.
func (e *stageEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, runs migrations, and wires the notification sink.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*stageEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var notifier telegram.Notifier = telegram.Noop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		var opts []telegram.Option
		if cfg.Telegram.BaseURL != "" {
			opts = append(opts, telegram.WithBaseURL(cfg.Telegram.BaseURL))
		}
		notifier = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, opts...)
	} else {
		zap.L().Debug("telegram not configured, batch notifications disabled")
	}

	return &stageEnv{Store: st, Notifier: notifier}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newGenerator builds the Claude-backed generator. Callers must have run
// cfg.ValidateGeneration first.
func newGenerator() *anthropic.Generator {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	models := anthropic.Models{
		Content: cfg.Anthropic.ContentModel,
		Specs:   cfg.Anthropic.SpecsModel,
		GTIN:    cfg.Anthropic.GTINModel,
	}
	return anthropic.NewGenerator(client, models, cfg.Anthropic.MaxTokens)
}

func newMercadoLibre() mercadolibre.Client {
	var opts []mercadolibre.Option
	if cfg.MercadoLibre.BaseURL != "" {
		opts = append(opts, mercadolibre.WithBaseURL(cfg.MercadoLibre.BaseURL))
	}
	return mercadolibre.NewClient(cfg.MercadoLibre.ClientID, cfg.MercadoLibre.Secret, opts...)
}

func newAuthManager(st store.Store, ml mercadolibre.Client) *auth.Manager {
	return auth.NewManager(st, ml, cfg.MercadoLibre.UserID, cfg.MercadoLibre.Sandbox)
}
