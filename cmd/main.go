package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/rps-tournament-bot/brackets"
	"github.com/Dosada05/rps-tournament-bot/config"
	"github.com/Dosada05/rps-tournament-bot/db"
	"github.com/Dosada05/rps-tournament-bot/events"
	"github.com/Dosada05/rps-tournament-bot/handlers"
	"github.com/Dosada05/rps-tournament-bot/repositories"
	api "github.com/Dosada05/rps-tournament-bot/routes"
	"github.com/Dosada05/rps-tournament-bot/services"
	"github.com/Dosada05/rps-tournament-bot/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// hash-key prints the BOT_KEY_HASH value for a bot key.
	if len(os.Args) == 3 && os.Args[1] == "hash-key" {
		hash, err := services.HashBotKey(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Duration("choice_timeout", cfg.ChoiceTimeout),
		slog.String("double_timeout_policy", string(cfg.DoubleTimeoutPolicy)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("application stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewPrometheusMetrics(registry)

	wmLogger := watermill.NewSlogLogger(logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wmLogger)
	defer pubSub.Close()
	publisher := events.NewWatermillPublisher(pubSub, events.Topic, logger)

	tournamentService := services.NewTournamentService(services.TournamentServiceConfig{
		DefaultCapacity:    cfg.DefaultCapacity,
		RegistrationWindow: cfg.RegistrationWindow,
		Engine: services.MatchEngineConfig{
			ChoiceTimeout: cfg.ChoiceTimeout,
			DoubleTimeout: cfg.DoubleTimeoutPolicy,
		},
	}, repo, publisher, clock.New(), metrics, logger)
	defer tournamentService.Close()

	eventRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		return fmt.Errorf("failed to create event router: %w", err)
	}
	wsHub := brackets.NewHub(logger)
	wsHub.Subscribe(eventRouter, pubSub, events.Topic)

	if cfg.R2.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("failed to initialize R2 uploader: %w", err)
		}
		storage.NewArchiver(uploader, tournamentService, logger).Register(eventRouter, pubSub, events.Topic)
		logger.Info("tournament archiving enabled", slog.String("bucket", cfg.R2.BucketName))
	}

	if cfg.BotKeyHash == "" {
		logger.Warn("BOT_KEY_HASH is not set, token issuing is disabled")
	}
	authService := services.NewAuthService(cfg.BotKeyHash, cfg.JWTSecretKey, cfg.TokenTTL, nil)

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Deps{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       registry,
		Auth:           handlers.NewAuthHandler(authService),
		Tournament:     handlers.NewTournamentHandler(tournamentService, logger),
		WebSocket:      handlers.NewWebSocketHandler(wsHub, tournamentService, cfg.AllowedOrigins, logger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error { return eventRouter.Run(gctx) })

	select {
	case <-eventRouter.Running():
	case <-gctx.Done():
		return g.Wait()
	}

	recovered, err := tournamentService.Recover(ctx)
	if err != nil {
		logger.Error("tournament recovery incomplete", slog.Int("recovered", recovered), slog.Any("error", err))
	} else {
		logger.Info("tournaments recovered", slog.Int("count", recovered))
	}

	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		tournamentService.Close()
		return eventRouter.Close()
	})

	return g.Wait()
}

// openStore picks the aggregate store: postgres, redis, or memory when
// neither is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.TournamentRepository, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		dbConn, err := db.Connect(ctx, cfg.DatabaseURL, 5*time.Second, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("using postgres tournament store")
		return repositories.NewPostgresTournamentRepository(dbConn), func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			}
		}, nil

	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("using redis tournament store")
		return repositories.NewRedisTournamentRepository(client), func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close redis client", slog.Any("error", err))
			}
		}, nil
	}

	logger.Warn("no DATABASE_URL or REDIS_URL configured, tournaments will not survive a restart")
	return repositories.NewMemoryTournamentRepository(), func() {}, nil
}
