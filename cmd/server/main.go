// Package main is the dashboard server: the HTTP API plus the SSE and
// WebSocket live feeds, fed by the broker event stream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"verdant/internal/broker"
	"verdant/internal/clock"
	"verdant/internal/config"
	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/server"
	"verdant/internal/settings"
	"verdant/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("Starting dashboard server")

	db, err := database.New(database.Config{
		Path:     cfg.DBPath,
		Mode:     database.ModeServer,
		Name:     "greenhouse",
		PoolSize: cfg.DBPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap schema")
	}
	if cfg.AdminInitialPassword != "" {
		hash, err := settings.HashPassword(cfg.AdminInitialPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash admin password")
		}
		if err := db.SeedAdmin(ctx, hash, clock.FormatRecording(clock.NowUTC())); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed admin password")
		}
	}

	brokerClient, err := broker.New(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}
	defer brokerClient.Close()
	if err := brokerClient.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Broker unreachable at startup, live feeds degraded")
	}

	store := settings.NewStore(db, brokerClient, settings.DefaultsFromConfig(cfg), log)

	srv := server.New(server.Config{
		Log:    log,
		DB:     db,
		Broker: brokerClient,
		Store:  store,
		Port:   cfg.Port,
	})

	subscriber := events.NewSubscriber(ctx, brokerClient, log,
		events.TopicDHTReading, events.TopicPicoReading,
		events.TopicAlert, events.TopicHumidifierState)
	go srv.Pump(subscriber.Messages())

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	cancel()
	subscriber.Close()
	log.Info().Msg("Dashboard server stopped")
}
