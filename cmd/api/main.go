package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/auth"
	"github.com/snappy-loop/wishes/internal/config"
	"github.com/snappy-loop/wishes/internal/database"
	"github.com/snappy-loop/wishes/internal/delivery"
	"github.com/snappy-loop/wishes/internal/handlers"
	"github.com/snappy-loop/wishes/internal/imagegen"
	"github.com/snappy-loop/wishes/internal/kafka"
	"github.com/snappy-loop/wishes/internal/storage"
	"github.com/snappy-loop/wishes/internal/webhook"
	"github.com/snappy-loop/wishes/internal/workflow"
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

	log.Info().Msg("Starting Wishes API")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewLocalStore(cfg.OutputDir, cfg.JPEGQuality)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare output directory")
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize image provider")
	}

	var mirror imagegen.Mirror
	if cfg.S3Bucket != "" {
		storageClient, err := storage.NewClient(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicURL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize storage client")
		}
		mirror = storageClient
	}
	generator := imagegen.NewClient(provider, store, mirror, cfg.GenerationTimeout)

	messenger := delivery.NewWhatsAppWeb(delivery.WhatsAppOptions{
		BaseURL:      cfg.WhatsAppWebURL,
		UserDataDir:  cfg.BrowserUserDataDir,
		Headless:     cfg.BrowserHeadless,
		NoSandbox:    cfg.BrowserNoSandbox,
		ReadyTimeout: cfg.DeliveryReadyTimeout,
		SendTimeout:  cfg.DeliverySendTimeout,
	})
	defer messenger.Close()
	dispatcher := delivery.NewDispatcher(messenger, delivery.NewOSClipboard(), cfg.DeliveryCaption, cfg.DefaultCountryCode)

	var (
		sinks   []workflow.EventSink
		history handlers.HistoryLister
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := migrations.Run(ctx, db.SQLDB()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		historyRepo := database.NewHistoryRepository(db)
		history = historyRepo
		// With Kafka configured the recorder writes history instead.
		if len(cfg.KafkaBrokers) == 0 {
			sinks = append(sinks, historyRepo)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
		defer kafkaProducer.Close()
		sinks = append(sinks, kafkaProducer)
	}
	if cfg.WebhookURL != "" {
		notifier := webhook.NewNotifier(webhook.Options{
			URL:        cfg.WebhookURL,
			Secret:     cfg.WebhookSecret,
			Timeout:    cfg.WebhookTimeout,
			MaxRetries: cfg.WebhookMaxRetries,
		})
		notifier.Start(ctx)
		sinks = append(sinks, notifier)
	}

	controller := workflow.NewController(generator, dispatcher, sinks...)

	var authMiddleware mux.MiddlewareFunc
	if authService := auth.NewService(cfg.AccessTokenHash); authService.Enabled() {
		authMiddleware = authService.Middleware
	}

	h := handlers.NewHandler(controller, store, history, dispatcher.Caption())
	r := handlers.NewRouter(h, authMiddleware)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("output_dir", store.Dir()).
			Str("provider", cfg.ImageProvider).
			Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("API exited")
}

func newProvider(ctx context.Context, cfg *config.Config) (imagegen.Provider, error) {
	switch cfg.ImageProvider {
	case config.ProviderBedrock:
		return imagegen.NewBedrockProvider(ctx, imagegen.BedrockOptions{
			Region:    cfg.AWSRegion,
			ModelID:   cfg.BedrockModelID,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Endpoint:  cfg.BedrockEndpoint,
		})
	case config.ProviderGemini:
		return imagegen.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiAPIEndpoint, cfg.GeminiModelImage)
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.ImageProvider)
	}
}
