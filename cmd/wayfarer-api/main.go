// README: Entry point; loads config, wires services, starts HTTP server and background loops.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wayfarer/internal/app"
	"wayfarer/internal/config"
	httptransport "wayfarer/internal/http"
	"wayfarer/internal/infra"
)

func main() {
	cfg, err := config.Load(os.Getenv("WAYFARER_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.IsProduction(), cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{MigrationsDir: "migrations"})
	if err != nil {
		logger.Fatal("wire application", zap.Error(err))
	}
	defer a.Close()

	a.RunBackground(ctx)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.RouterDeps{
		Conversations: a.Orchestrator,
		IPLimiter:     a.IPLimiter,
		Logger:        logger.Named("http"),
	})
	if err := server.Run(ctx); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
}
