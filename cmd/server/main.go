package main

import (
	"context"
	"masbaha/internal/app"
	"masbaha/internal/config"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	app.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	log.Info().Msg("Endpoints:")
	for _, ep := range []string{
		"POST   /v1/devices",
		"POST   /v1/rooms",
		"GET    /v1/rooms/{code}",
		"POST   /v1/rooms/{code}/join",
		"POST   /v1/rooms/{code}/tap",
		"POST   /v1/rooms/{code}/bulk",
		"POST   /v1/rooms/{code}/reset",
		"PUT    /v1/rooms/{code}/target",
		"DELETE /v1/rooms/{code}/participants/{id}",
		"POST   /v1/rooms/{code}/alerts",
		"POST   /v1/action",
		"WS     /v1/ws/rooms/{code}",
	} {
		log.Info().Msg("  " + ep)
	}

	if err := a.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}
