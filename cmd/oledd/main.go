// Package main is the OLED daemon: renders the latest climate reading
// on the small status screen.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"verdant/internal/broker"
	"verdant/internal/config"
	"verdant/internal/display"
	"verdant/internal/events"
	"verdant/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if !cfg.OLEDEnabled {
		log.Info().Msg("OLED disabled, set OLED_ENABLED=true to run")
		return
	}
	log.Info().Msg("Starting OLED daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerClient, err := broker.New(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}
	defer brokerClient.Close()

	// Hardware screens plug in behind Screen; the console screen logs
	// each rendered frame.
	oled := display.NewOLED(display.NewConsoleScreen(log), log)

	subscriber := events.NewSubscriber(ctx, brokerClient, log, events.TopicDHTReading)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		subscriber.Close()
		cancel()
	}()

	oled.Run(ctx, subscriber.Messages())
	log.Info().Msg("OLED daemon stopped")
}
