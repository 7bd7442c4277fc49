package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mailagent/config"
	"mailagent/internal/bootstrap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional, used for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := bootstrap.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")
		cancel()

		done := make(chan error, 1)
		go func() { done <- app.Fiber.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("server shutdown")
			}
		case <-time.After(shutdownTimeout):
			log.Warn().Msg("shutdown timed out, forcing exit")
		}

		drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer drainCancel()
		app.Pools.Shutdown(drainCtx)
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("starting server")
	if err := app.Fiber.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
