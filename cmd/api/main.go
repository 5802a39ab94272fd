package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wikidraft/api/internal/app"
	"wikidraft/api/internal/config"
	"wikidraft/api/internal/content"
	"wikidraft/api/internal/diff"
	"wikidraft/api/internal/gitrepo"
	"wikidraft/api/internal/i18n"
	"wikidraft/api/internal/identity"
	"wikidraft/api/internal/logging"
	"wikidraft/api/internal/metrics"
	"wikidraft/api/internal/search"
	"wikidraft/api/internal/session"
	"wikidraft/api/internal/store"
	"wikidraft/api/internal/suggestion"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return err
	}

	messages := i18n.NewBundle(i18n.Locale(cfg.DefaultLocale))
	if strings.TrimSpace(cfg.I18nDir) != "" {
		if err := messages.LoadDir(cfg.I18nDir); err != nil {
			logger.Warn("translation overrides not loaded", zap.String("dir", cfg.I18nDir), zap.Error(err))
		}
	}

	dataStore := store.NewPostgresStore(db)
	resolver := identity.NewResolver(dataStore)
	manager := suggestion.NewManager(dataStore, resolver, cfg.BaseURL, logger.Named("suggestion"))
	presenter := content.NewPresenter(dataStore, manager, resolver, diff.New(), messages, cfg.BaseURL, logger.Named("content"))

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger).WithPermalinks(presenter.Permalink)

	deps := app.Deps{
		Store:       dataStore,
		Archive:     gitrepo.New(cfg.ReposDir),
		Suggestions: manager,
		Presenter:   presenter,
		Search:      searchService,
		Messages:    messages,
		Metrics:     metrics.New(),
		Logger:      logger.Named("app"),
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info("using redis for refresh sessions")
	} else {
		logger.Info("using postgres for refresh sessions")
	}

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed, will retry on next restart", zap.Error(err))
	}
	searchService.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wiki api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
