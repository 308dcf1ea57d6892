package main

import (
	"context"
	"log"
	"time"

	"swisscv-backend/internal/bootstrap"
	"swisscv-backend/internal/shared/config"
	"swisscv-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx := context.Background()
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}

	app.SessionsService.StartSweeper(ctx, 5*time.Minute)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s (provider=%s model=%s)", addr, cfg.LLMProvider, cfg.LLMModel)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
