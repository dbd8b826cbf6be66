// Package main is the notification daemon: consumes alert events and
// fans them out to the configured backends.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"verdant/internal/broker"
	"verdant/internal/config"
	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/notify"
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
	log.Info().Strs("backends", cfg.NotificationBackends).Msg("Starting notifier")

	db, err := database.New(database.Config{
		Path: cfg.DBPath,
		Mode: database.ModePoller,
		Name: "greenhouse",
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

	brokerClient, err := broker.New(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}
	defer brokerClient.Close()

	store := settings.NewStore(db, brokerClient, settings.DefaultsFromConfig(cfg), log)

	// Every backend the binary can drive is registered here; the settings
	// catalog picks which of them actually run, per event.
	available := map[string]notify.Notifier{
		"gmail": notify.NewGmailBackend(notify.GmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			To:       cfg.NotifyEmailTo,
		}),
		"slack": notify.NewSlackBackend(cfg.SlackWebhookURL),
	}
	policy := notify.RetryPolicy{
		MaxRetries:     cfg.NotifyMaxRetries,
		InitialBackoff: cfg.NotifyBackoff,
		AttemptTimeout: cfg.NotifyTimeout,
	}
	service := notify.NewService(store, available, policy, log)

	subscriber := events.NewSubscriber(ctx, brokerClient, log, events.TopicAlert)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		// Closing the stream lets Run drain in-flight sends; the context
		// stays live so they can finish.
		subscriber.Close()
	}()

	service.Run(ctx, subscriber.Messages())
	log.Info().Msg("Notifier stopped")
}
