// Lead extraction webhook server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/lead-agent/internal/agent"
	"github.com/ashureev/lead-agent/internal/api"
	"github.com/ashureev/lead-agent/internal/auth"
	"github.com/ashureev/lead-agent/internal/config"
	"github.com/ashureev/lead-agent/internal/feed"
	"github.com/ashureev/lead-agent/internal/middleware"
	"github.com/ashureev/lead-agent/internal/session"
	"github.com/ashureev/lead-agent/internal/settings"
	"github.com/ashureev/lead-agent/internal/store"
	"github.com/ashureev/lead-agent/internal/webhook"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.LeadStore, error) {
	if cfg.StoreDriver == config.StoreDriverJSON {
		return store.NewJSONFile(cfg.LeadsFile)
	}
	return store.NewSQLite(cfg.DBPath)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "store", cfg.StoreDriver)

	leads, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := leads.Close(); closeErr != nil {
			slog.Error("Failed to close lead store", "error", closeErr)
		}
	}()

	if err := leads.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Lead store connected")

	mgr, err := settings.NewManager(cfg.SettingsPath, settings.Defaults(cfg))
	if err != nil {
		return err
	}

	completer, err := agent.NewOpenAICompleter(agent.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	}, logger)
	if err != nil {
		return err
	}

	baseOptions := agent.DefaultOptions()
	baseOptions.Timeout = cfg.LLM.Timeout
	extractor := agent.NewExtractor(completer, func() agent.Options {
		return mgr.Get().AgentOptions(baseOptions)
	}, logger)

	recorder := store.NewRecorder(leads, func() store.RetryPolicy {
		return mgr.Get().RetryPolicy()
	}, logger)

	tracker := session.NewTracker(cfg.Session.Timeout, cfg.Session.UserLogLimit)
	hub := feed.NewHub(feed.DefaultBuffer, logger)

	directory, err := auth.NewSeededDirectory(0, cfg.Auth.AdminPassword, cfg.Auth.UserPassword)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authn := auth.NewAuthenticator(directory, tokens)

	svc := webhook.NewService(extractor, recorder, tracker, hub, logger)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(leads)
	authHandler := auth.NewHandler(directory, tokens, authn)
	webhookHandler := webhook.NewHandler(svc, authn)
	settingsHandler := settings.NewHandler(mgr)
	wsHandler := feed.NewWebSocketHandler(hub, authn, cfg.AllowedOrigins)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)
	webhookHandler.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authn))
		r.Use(auth.RequireAdmin)
		settingsHandler.RegisterRoutes(r)
	})

	r.Get("/ws/logs", wsHandler.ServeHTTP)

	// No WriteTimeout: the log feed keeps connections open and webhook
	// requests may block through the whole retry cycle.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		session.StartSweeper(gctx, tracker, cfg.Session.SweepInterval)
		return nil
	})

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
