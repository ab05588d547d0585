package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/config"
	"github.com/snappy-loop/wishes/internal/database"
	"github.com/snappy-loop/wishes/internal/kafka"
	"github.com/snappy-loop/wishes/migrations"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Starting Wishes Event Recorder")

	if cfg.DatabaseURL == "" || len(cfg.KafkaBrokers) == 0 {
		log.Fatal().Msg("DATABASE_URL and KAFKA_BROKERS are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := migrations.Run(ctx, db.SQLDB()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	consumer := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaTopicEvents,
		cfg.KafkaGroupRecorder,
		database.NewHistoryRepository(db),
	)
	defer consumer.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	log.Info().Msg("Recorder started, waiting for wish events...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down recorder...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Consumer shutdown complete")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Consumer shutdown timeout")
	}

	log.Info().Msg("Recorder exited")
}
