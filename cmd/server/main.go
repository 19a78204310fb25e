package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tilewalk/server/internal/app"
	"tilewalk/server/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := telemetry.WrapLogger(log.Default())
	cfg, err := app.LoadConfig(os.Getenv, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := app.Run(ctx, cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}
