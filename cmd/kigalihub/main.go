// Package main запускает HTTP-сервер сервиса kigalihub.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/backend"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/catalog"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/config"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/finance"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/handler"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/middleware"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/session"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/sessionstore"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := backend.NewClient(backend.Config{
		URL:     cfg.BackendURL,
		AnonKey: cfg.BackendAnonKey,
		Logger:  logger,
	})
	if err != nil {
		sugar.Fatalw("backend client error", "error", err.Error())
	}

	var src repository.Source = client.NewREST()
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresSource(cfg.DatabaseURI, repository.PostgresOptions{
			Migrate:          cfg.RunMigrations,
			RowLevelSecurity: cfg.DatabaseRLS,
		})
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer pg.Close()
		src = pg
		sugar.Infow("using direct database access", "rls", cfg.DatabaseRLS)
	}

	var storage backend.SessionStorage = sessionstore.NewMemory()
	if cfg.RedisURL != "" {
		rdb, err := sessionstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer rdb.Close()
		storage = sessionstore.NewRedis(rdb)
	}

	var uploader media.Uploader = client.NewStorage()
	if cfg.MediaDriver == config.MediaCloudinary {
		cld, err := media.NewCloudinaryUploader(cfg.CloudinaryURL)
		if err != nil {
			sugar.Fatalw("cloudinary initialization error", "error", err.Error())
		}
		uploader = cld
	}
	mediaSvc := media.NewService(uploader)

	manager := session.NewManager(func(id string) session.Authenticator {
		return client.NewAuth(storage, id)
	}, session.NewDirectory(src, logger), session.Options{
		Timeout: cfg.AuthTimeout,
		Logger:  logger,
	}, cfg.SessionIdleTTL)

	authMiddleware := middleware.NewAuthMiddleware(cfg.CookieSecret, manager, logger)
	h := handler.NewHandler(
		catalog.New(src, mediaSvc, logger),
		finance.NewAggregator(src, logger),
		mediaSvc,
		logger,
		authMiddleware,
	)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Закрытие простаивающих сессий браузеров
	g.Go(func() error {
		return manager.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting kigalihub server", "addr", cfg.RunAddress, "backend", client.BaseURL())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
