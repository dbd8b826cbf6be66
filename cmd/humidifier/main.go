// Package main is the humidifier controller: reacts to humidity alerts
// by switching the smart plug and publishing the resulting state.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"verdant/internal/broker"
	"verdant/internal/config"
	"verdant/internal/events"
	"verdant/internal/humidifier"
	"verdant/internal/notify"
	"verdant/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("Starting humidifier controller")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerClient, err := broker.New(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}
	defer brokerClient.Close()

	publisher := events.NewPublisher(brokerClient, events.NewBus(log), log)

	// Smart plug drivers plug in behind Plug; the console plug logs the
	// switching it would do.
	plug := humidifier.NewConsolePlug(log)
	policy := notify.RetryPolicy{
		MaxRetries:     cfg.NotifyMaxRetries,
		InitialBackoff: cfg.NotifyBackoff,
		AttemptTimeout: cfg.NotifyTimeout,
	}
	service := humidifier.NewService(plug, publisher, policy, log)

	subscriber := events.NewSubscriber(ctx, brokerClient, log, events.TopicAlert)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		subscriber.Close()
	}()

	service.Run(ctx, subscriber.Messages())
	log.Info().Msg("Humidifier controller stopped")
}
