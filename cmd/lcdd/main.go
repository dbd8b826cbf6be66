// Package main is the LCD daemon: scrolls the active alerts across the
// character display.
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
	if !cfg.LCDEnabled {
		log.Info().Msg("LCD disabled, set LCD_ENABLED=true to run")
		return
	}
	log.Info().Int("columns", cfg.LCDColumns).Msg("Starting LCD daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerClient, err := broker.New(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}
	defer brokerClient.Close()

	lcd := display.NewLCD(display.NewConsoleCharDisplay(log), cfg.LCDColumns, cfg.LCDScroll, log)

	subscriber := events.NewSubscriber(ctx, brokerClient, log, events.TopicAlert)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		subscriber.Close()
		cancel()
	}()

	lcd.Run(ctx, subscriber.Messages())
	log.Info().Msg("LCD daemon stopped")
}
