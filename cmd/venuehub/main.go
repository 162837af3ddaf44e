package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"venuehub/internal/app/idempotency"
	"venuehub/internal/app/messaging"
	"venuehub/internal/app/outbox"
	"venuehub/internal/app/profiles"
	"venuehub/internal/domain/listings"
	domain "venuehub/internal/domain/messaging"
	"venuehub/internal/infra/broker/kafka"
	rediscache "venuehub/internal/infra/cache/redis"
	"venuehub/internal/infra/config"
	mongostore "venuehub/internal/infra/db/mongo"
	ginserver "venuehub/internal/infra/http/gin"
	"venuehub/internal/infra/inbox"
	"venuehub/internal/infra/obs"
	infraoutbox "venuehub/internal/infra/outbox"
	"venuehub/internal/infra/security"
	"venuehub/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	if err := loadFixtures(ctx, cfg.FixturesPath, app.users, app.listings, logger); err != nil {
		logger.Warn("fixtures load failed", "error", err, "path", cfg.FixturesPath)
	}

	var wg sync.WaitGroup
	for name, run := range app.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("worker starting", "worker", name)
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker stopped", "worker", name, "error", err)
			}
		}()
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: app.checks}, app.handlers)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		stop()
	}
	wg.Wait()
	logger.Info("HTTP server stopped")
}

// userStore is the local profile copy: read by the directory, written by
// profile events and fixtures.
type userStore interface {
	profiles.Source
	Save(ctx context.Context, p profiles.Profile) error
	Delete(ctx context.Context, userID string) error
}

type listingStore interface {
	listings.Catalog
	Save(ctx context.Context, l *listings.Listing) error
}

type application struct {
	handlers ginserver.Handlers
	checks   map[string]obs.Check
	workers  map[string]func(context.Context) error
	closers  []func(context.Context) error
	users    userStore
	listings listingStore
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		checks:  map[string]obs.Check{},
		workers: map[string]func(context.Context) error{},
	}
	metrics := obs.NewMetrics()

	var (
		conversations domain.ConversationStore
		messages      domain.MessageStore
		typing        domain.TypingStore
		box           outbox.Outbox
		idemStore     idempotency.Store
		seen          kafka.Inbox
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store := memory.NewMessagingStore()
		conversations, messages, typing = store, store, store
		app.users = memory.NewUserRepository()
		app.listings = memory.NewListingRepository()
		box = memory.NewOutbox()
		idemStore = memory.NewIdempotencyStore()
		seen = memory.NewInbox()
	case config.DriverMongo:
		client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		app.checks["mongo"] = client.Ping

		store := mongostore.NewMessagingStore(client.DB, mongostore.StoreOptions{
			Transactions: cfg.MongoTransactions,
			PollInterval: cfg.MongoPollInterval,
			Logger:       logger,
		})
		idStore := mongostore.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL)
		outboxStore := infraoutbox.NewStore(client.DB)
		inboxStore := inbox.NewStore(client.DB, cfg.KafkaGroupID)
		for _, ix := range []interface{ EnsureIndexes(context.Context) error }{store, idStore, outboxStore, inboxStore} {
			if err := ix.EnsureIndexes(ctx); err != nil {
				// ordered reads fall back until the indexes exist
				logger.Warn("index creation failed", "error", err)
			}
		}
		conversations, messages, typing = store, store, store
		app.users = mongostore.NewUserRepository(client.DB)
		app.listings = mongostore.NewListingRepository(client.DB)
		box = outboxStore
		idemStore = idStore
		seen = inboxStore

		if len(cfg.KafkaBrokers) > 0 {
			producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
			if err != nil {
				return nil, err
			}
			app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
			worker := &infraoutbox.Worker{
				Store:       outboxStore,
				Producer:    producer,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
				Logger:      logger.With("component", "outbox_worker"),
			}
			app.workers["outbox"] = worker.Run
		}
	}

	var directorySource profiles.Source = app.users
	var cache *rediscache.ProfileCache
	if cfg.RedisURL != "" {
		rdb, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
		app.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		cache = rediscache.NewProfileCache(rdb, app.users, cfg.ProfileCacheTTL, logger)
		directorySource = cache
	}

	if len(cfg.KafkaBrokers) > 0 {
		handler := &kafka.ProfileEventsHandler{Inbox: seen, Store: app.users, Logger: logger.With("component", "profile_events")}
		if cache != nil {
			handler.Cache = cache
		}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, handler, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
		topic := cfg.KafkaTopicPrefix + cfg.KafkaProfileTopic
		app.workers["profile_events"] = func(ctx context.Context) error { return consumer.Run(ctx, []string{topic}) }
	}

	svc, err := messaging.NewService(messaging.Deps{
		Conversations: conversations,
		Messages:      messages,
		Typing:        typing,
		Profiles:      profiles.Directory{Source: directorySource, Logger: logger},
		Listings:      app.listings,
		Outbox:        box,
		Encoder:       outbox.JSONEventEncoder{},
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	guard, err := idempotency.NewGuard(idemStore, nil, logger)
	if err != nil {
		return nil, err
	}

	verifier := security.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	app.handlers = ginserver.Handlers{
		Chat:           ginserver.NewChatHandler(svc, guard, logger),
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
		Metrics:        metrics,
	}
	return app, nil
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}
