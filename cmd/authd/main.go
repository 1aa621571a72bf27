// Command authd runs the auth core as a standalone daemon. All wiring lives
// in internal/daemon so the platform can embed the same construction path
// and reach the login/refresh/logout/authenticate API via Daemon.Auth.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"authcore/internal/app"
	"authcore/internal/daemon"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := app.LoadConfig()
	d, err := daemon.New(ctx, cfg, app.NewLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
