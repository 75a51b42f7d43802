package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/logger"
)

// @title                       Storefront API
// @version                     1.0
// @description                 Accounts, login with password or one-time code, admin account management and cart.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sugar, err := logger.New(logger.Config{Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = sugar.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("[app] init: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		sugar.Fatalf("[app] run: %v", err)
	}
	sugar.Info("[app] stopped")
}
