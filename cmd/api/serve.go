package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/factory-support/internal/api/http"
	"github.com/spec-kit/factory-support/internal/api/http/handlers"
	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/events"
	"github.com/spec-kit/factory-support/internal/observability"
	"github.com/spec-kit/factory-support/internal/persistence"
	"github.com/spec-kit/factory-support/internal/realtime"
	"github.com/spec-kit/factory-support/internal/service"
	"github.com/spec-kit/factory-support/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.App, cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	profiles := service.NewProfileCache(st.repos.Users, cfg.Cache.ProfileTTL())
	profiles.Start()
	defer profiles.Stop()

	chatService := service.NewChatService(service.ChatDependencies{
		IssueRepo:   st.repos.Issues,
		ChannelRepo: st.repos.Channels,
		MessageRepo: st.repos.Messages,
		Profiles:    profiles,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	authService := service.NewAuthService(st.repos.Users, tokens)
	authMiddleware := auth.NewAuthMiddleware(tokens, cfg.Auth.CookieName)

	notifications := service.NewNotificationService(dispatcher, logger, metrics, cfg.Notification)
	worker.StartNotificationWorker(ctx, notifications)

	hub := realtime.NewHub()
	gateway := realtime.NewGateway(hub, chatService, logger, metrics, cfg.Realtime.WriteTimeout())
	if cfg.Realtime.RelayEnabled {
		rdb := persistence.NewRedis(cfg.Redis, logger)
		defer rdb.Close()
		st.pingers["redis"] = rdb

		relay := realtime.NewRedisRelay(rdb.Client, cfg.Realtime.RelayChannel, logger)
		gateway.WithRelay(relay)
		go func() {
			if err := relay.Run(ctx, gateway.Deliver); err != nil {
				logger.Error("ws relay stopped", zap.Error(err))
			}
		}()
	}
	transport := realtime.NewTransport(gateway, authMiddleware, cfg.Realtime, cfg.App.ClientOrigins, logger, metrics)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout(), cfg.App.ClientOrigins)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, st.pingers),
		Auth:           handlers.NewAuthHandler(authService, authMiddleware.CookieName(), cfg.App.IsProduction()),
		Chat:           handlers.NewChatHandler(chatService),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: authMiddleware,
		Realtime:       transport,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("relay", cfg.Realtime.RelayEnabled))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(context.Cause(ctx)))
	case err := <-listenErr:
		if err != nil {
			return err
		}
	}

	// Closing the hub ends every websocket writer, which closes its connection and unblocks the reader.
	hub.Close()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
