package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"anoa.com/notifyhub/internal/config"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/modules/notification/consumer"
	notifHttp "anoa.com/notifyhub/internal/modules/notification/delivery/http"
	notifWs "anoa.com/notifyhub/internal/modules/notification/delivery/ws"
	notifRepo "anoa.com/notifyhub/internal/modules/notification/repository"
	notif "anoa.com/notifyhub/internal/modules/notification/service"
	"anoa.com/notifyhub/internal/modules/session"
	"anoa.com/notifyhub/internal/server"
	"anoa.com/notifyhub/pkg/database"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/websocket server and the event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if cfg.IsDevelopment() {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	registry := session.NewRegistry(session.Config{
		PingInterval: cfg.WS.PingInterval,
		PongTimeout:  cfg.WS.PongTimeout,
	})
	defer registry.Shutdown()

	notificationRepo := notifRepo.NewNotificationRepository(db)
	delivery := notif.NewDeliveryService(registry)
	commands := notif.NewCommandService(notificationRepo, delivery)
	queries := notif.NewQueryService(notificationRepo)

	srv := server.NewServer(server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		Notifications:  notifHttp.NewNotificationHandler(commands, queries),
		Push: notifWs.NewHandler(
			registry, queries, delivery,
			notifRepo.NewAckRepository(redisClient),
			notifRepo.NewRateLimiter(redisClient),
			notifWs.Config{
				WriteWait:      cfg.WS.WriteWait,
				AllowedOrigins: cfg.AllowedOrigins,
				ResyncCooldown: cfg.WS.ResyncCooldown,
			},
		),
	})

	supervisor := suture.New("notifyhub", suture.Spec{
		EventHook:        logSupervisorEvent,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          30 * time.Second,
	})
	supervisor.Add(server.NewHTTPServerService(srv.HTTPServer(":"+cfg.Port), 10*time.Second))
	supervisor.Add(consumer.NewRouterService(routerBuilder(cfg, consumer.NewHandler(commands))))

	logging.Info().Str("port", cfg.Port).Str("topic", cfg.NATS.Topic).Msg("notifyhub starting")

	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	unstopped, _ := supervisor.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}
	logging.Info().Msg("notifyhub stopped")
	return nil
}

func routerBuilder(cfg *config.Config, handler *consumer.Handler) consumer.RouterBuilder {
	natsCfg := consumer.NATSConfig{
		URL:        cfg.NATS.URL,
		QueueGroup: cfg.NATS.QueueGroup,
		Durable:    cfg.NATS.Durable,
		MaxDeliver: cfg.NATS.MaxDeliver,
		AckWait:    cfg.NATS.AckWait,
	}

	routerCfg := consumer.DefaultRouterConfig()
	routerCfg.Topic = cfg.NATS.Topic
	routerCfg.PoisonTopic = cfg.NATS.PoisonTopic
	routerCfg.RetryMaxRetries = cfg.Consumer.MaxRetries
	routerCfg.RetryInitialInterval = cfg.Consumer.RetryInitial
	routerCfg.RetryMaxInterval = cfg.Consumer.RetryMax

	return func() (*message.Router, func(), error) {
		logger := logging.NewWatermillLogger()

		subscriber, err := consumer.NewNATSSubscriber(natsCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := consumer.NewNATSPublisher(natsCfg, logger)
		if err != nil {
			_ = subscriber.Close()
			return nil, nil, err
		}
		release := func() {
			_ = publisher.Close()
			_ = subscriber.Close()
		}

		router, err := consumer.NewRouter(routerCfg, subscriber, publisher, handler, logger)
		if err != nil {
			release()
			return nil, nil, err
		}
		return router, release, nil
	}
}

func logSupervisorEvent(e suture.Event) {
	event := logging.Warn()
	if e.Type() == suture.EventTypeResume {
		event = logging.Info()
	}
	event.Fields(e.Map()).Msg(e.String())
}
