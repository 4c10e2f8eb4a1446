// Command inkledger-api serves the credit ledger and workspace quota API.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/abduss/inkledger/internal/account"
	"github.com/abduss/inkledger/internal/config"
	"github.com/abduss/inkledger/internal/engine"
	"github.com/abduss/inkledger/internal/identity"
	"github.com/abduss/inkledger/internal/ledger"
	"github.com/abduss/inkledger/internal/logger"
	"github.com/abduss/inkledger/internal/migrate"
	"github.com/abduss/inkledger/internal/server"
	"github.com/abduss/inkledger/internal/storage"
	"github.com/abduss/inkledger/internal/workspace"
)

func main() {
	_ = godotenv.Load()

	logg, err := logger.Init()
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer func() { _ = logg.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logg.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Postgres.DSN()); err != nil {
		logg.Fatal("run migrations", zap.Error(err))
	}

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	accountRepo := account.NewRepository(dbPool)
	ledgerRepo := ledger.NewRepository(dbPool)
	workspaceRepo := workspace.NewRepository(dbPool)
	snapshotCache := account.NewCache(cfg.Ledger.CacheTTL)

	engineStore := engine.NewPostgresStore(dbPool)
	engineService := engine.NewService(engineStore, accountRepo, workspaceRepo, ledgerRepo, snapshotCache, logg, cfg.Ledger)
	identityService := identity.NewService(accountRepo, cfg.Identity, cfg.Ledger, logg)

	router := server.NewRouter(server.Dependencies{
		Config:          cfg,
		DB:              dbPool,
		IdentityService: identityService,
		EngineService:   engineService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("InkLedger API listening", zap.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
