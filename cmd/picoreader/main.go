// Package main is the plant moisture reader: consumes lines from the
// moisture board over serial, persists per-plant readings, and publishes
// readings and alerts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"verdant/internal/alerts"
	"verdant/internal/broker"
	"verdant/internal/config"
	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/poller"
	"verdant/internal/sensors"
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
	log.Info().Bool("mock", cfg.MockSensors).Str("port", cfg.SerialPort).Msg("Starting moisture reader")

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
	tracker := alerts.NewTracker(log)
	publisher := events.NewPublisher(brokerClient, events.NewBus(log), log)

	var source sensors.LineSource
	if cfg.MockSensors {
		plants := make([]int, 0, len(cfg.PlantMoisture))
		for id := range cfg.PlantMoisture {
			plants = append(plants, id)
		}
		if len(plants) == 0 {
			plants = []int{1, 2}
		}
		source = sensors.NewMockLineSource(plants, cfg.PollFrequency, time.Now().UnixNano())
	} else {
		source = sensors.NewSerialSource(cfg.SerialPort, cfg.SerialBaud, log)
	}

	service := sensors.NewMoistureService(source, db, store, tracker, publisher, log)
	runner := poller.NewRunner[sensors.MoistureReading](service, cfg.PollFrequency, "moisture-poller", log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down")
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Moisture reader failed")
	}
	log.Info().Msg("Moisture reader stopped")
}
