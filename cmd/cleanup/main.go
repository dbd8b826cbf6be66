// Package main is the retention daemon: prunes expired readings on a
// daily schedule, or once with -once.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"verdant/internal/broker"
	"verdant/internal/cleanup"
	"verdant/internal/config"
	"verdant/internal/database"
	"verdant/internal/scheduler"
	"verdant/internal/settings"
	"verdant/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single cleanup pass and exit")
	schedule := flag.String("schedule", "0 0 3 * * *", "cron schedule for the cleanup pass")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Bool("once", *once).Msg("Starting cleanup")

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
	job := cleanup.NewJob(db, store, log)

	sched := scheduler.New(ctx, log)
	if *once {
		if err := sched.RunNow(job); err != nil {
			log.Fatal().Err(err).Msg("Cleanup failed")
		}
		return
	}

	if err := sched.AddJob(*schedule, job); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")
	sched.Stop()
	cancel()
	log.Info().Msg("Cleanup stopped")
}
