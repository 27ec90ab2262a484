package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

const (
	ingestHandlerName = "notification-ingest"
	poisonHandlerName = "notification-poison"
)

type RouterConfig struct {
	Topic       string
	PoisonTopic string

	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Topic:                "notification.events",
		PoisonTopic:          "notification.events.poison",
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
	}
}

// NewRouter wires the ingest handler and the terminal poison handler.
//
// Middleware runs outer to inner: poison queue, retry with backoff, panic
// recovery, then the per-handler attempt counter. An error that survives every
// retry is published to PoisonTopic and the original message is acked.
func NewRouter(
	cfg RouterConfig,
	subscriber message.Subscriber,
	poisonPublisher message.Publisher,
	handler *Handler,
	logger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}

	router.AddMiddleware(poisonQueue, retry.Middleware, middleware.Recoverer)

	ingest := router.AddConsumerHandler(ingestHandlerName, cfg.Topic, subscriber, handler.Handle)
	ingest.AddMiddleware(CountAttempts)

	router.AddConsumerHandler(poisonHandlerName, cfg.PoisonTopic, subscriber, handler.HandlePoisoned)

	return router, nil
}

// RouterBuilder returns a ready router and a release func for the transports
// it was built on.
type RouterBuilder func() (*message.Router, func(), error)

// RouterService runs a freshly built router on every Serve call, so the
// supervisor can restart it after a failure.
type RouterService struct {
	build RouterBuilder
}

func NewRouterService(build RouterBuilder) *RouterService {
	return &RouterService{build: build}
}

func (s *RouterService) Serve(ctx context.Context) error {
	router, release, err := s.build()
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("notification router: %w", err)
	}
	return ctx.Err()
}

func (s *RouterService) String() string {
	return "notification-router"
}
