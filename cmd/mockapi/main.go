package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genmoji/internal/devserver"
	"genmoji/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	app, err := devserver.NewApp(devserver.Options{
		Logger:          &logger,
		GeoIPDBPath:     cfg.GeoIPDBPath,
		RateLimitPerMin: 600,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("mockapi: setup failed")
	}

	server := &http.Server{
		Addr:         ":" + cfg.MockPort,
		Handler:      app.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Msgf("mockapi listening on :%s", cfg.MockPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("mockapi: server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("mockapi: shutdown failed")
	}
	logger.Info().Msg("mockapi stopped")
}
