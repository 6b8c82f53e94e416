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
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/auction/postgres"
	"github.com/seamarket/fishbid/internal/auth"
	"github.com/seamarket/fishbid/internal/broadcast"
	"github.com/seamarket/fishbid/internal/config"
	"github.com/seamarket/fishbid/internal/events"
	"github.com/seamarket/fishbid/internal/gateway"
	"github.com/seamarket/fishbid/internal/httpapi"
	"github.com/seamarket/fishbid/internal/sequencer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.Name).Msg("connected to database")

	store := postgres.NewStore(pool)
	clock := clockwork.NewRealClock()
	verifier := auth.NewVerifier([]byte(cfg.Auth.JWTSecret))
	auctions := auction.NewApp(store, clock)

	var presence broadcast.Presence
	if cfg.Redis.Enabled {
		redisPresence, err := broadcast.NewRedisPresence(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisPresence.Close()
		presence = redisPresence
		log.Info().Str("addr", cfg.Redis.Addr).Msg("room presence mirrored to redis")
	}

	rooms := broadcast.New(presence)

	// With NATS enabled the sequencer publishes through JetStream and a
	// durable consumer feeds the rooms, so multiple gateway instances share
	// one ordered event log. Without it, events fan out in-process.
	var publisher events.Publisher
	if cfg.NATS.Enabled {
		jsConfig := events.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATS.URL
		jsPublisher, err := events.NewJetStreamPublisher(ctx, jsConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream publisher")
		}
		defer jsPublisher.Close()
		publisher = jsPublisher

		consumerConfig := events.DefaultConsumerConfig()
		consumerConfig.URL = cfg.NATS.URL
		consumer, err := events.NewConsumer(ctx, rooms, consumerConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream consumer")
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	} else {
		publisher = events.NewLocalPublisher(rooms)
	}

	bids := sequencer.NewRegistry(store, publisher, clock)

	mux := http.NewServeMux()
	gw := gateway.NewHandler(verifier, auctions, bids, rooms, gateway.DefaultConfig())
	gw.RegisterRoutes(mux)
	mux.Handle("/api/", httpapi.NewServer(auctions, verifier).Routes())

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
