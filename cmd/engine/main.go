package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/clickarena/engine/app/engine"
	"github.com/clickarena/engine/app/engine/controller"
)

func main() {
	// Optional .env for local development; production uses real env vars.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := engine.Initialize(ctx, nil)
	if err != nil {
		panic(err)
	}

	ctrl := controller.NewController(app)
	app.Server = &http.Server{Addr: app.Cfg.Addr, Handler: ctrl.NewRouter()}

	// Catch up on expired games before the cron takes over.
	app.SweepOnce(ctx)
	app.StartCron()

	app.Start(ctx)
}
