package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func newRouter(env *stageEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/products", func(w http.ResponseWriter, req *http.Request) {
		limit := queryInt(req, "limit", 50)
		offset := queryInt(req, "offset", 0)

		products, err := env.Store.ListProducts(req.Context(), limit, offset)
		if err != nil {
			zap.L().Error("list products failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	})

	r.Get("/api/products/{code}", func(w http.ResponseWriter, req *http.Request) {
		code := chi.URLParam(req, "code")

		product, err := env.Store.GetProductByCode(req.Context(), code)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		if err != nil {
			zap.L().Error("get product failed", zap.String("code", code), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		images, err := env.Store.ListImages(req.Context(), product.ID)
		if err != nil {
			zap.L().Warn("list images failed", zap.String("code", code), zap.Error(err))
		}

		resp := map[string]any{"product": product, "images": images}
		if listing, err := env.Store.GetListing(req.Context(), product.ID); err == nil {
			resp["listing"] = listing
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/oauth/callback", func(w http.ResponseWriter, req *http.Request) {
		code := req.URL.Query().Get("code")
		if code == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
			return
		}
		if err := cfg.ValidateMarketplace(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "marketplace not configured"})
			return
		}

		ml := newMercadoLibre()
		tok, err := newAuthManager(env.Store, ml).InitFromCode(req.Context(), code, cfg.MercadoLibre.RedirectURI, cfg.MercadoLibre.Sandbox)
		if err != nil {
			zap.L().Error("oauth exchange failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "token exchange failed"})
			return
		}

		zap.L().Info("oauth token stored", zap.String("user_id", tok.UserID))
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "authorized",
			"user_id": tok.UserID,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func queryInt(req *http.Request, key string, fallback int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
