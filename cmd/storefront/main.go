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

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/fjod/go_cart/storefront/internal/tab"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistent store
	opener, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Product catalog
	repo, err := catalog.NewRepository(cfg.Catalog.Driver, cfg.Catalog.DSN)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	if cfg.Catalog.SeedFile != "" {
		if err := seedCatalog(ctx, repo, cfg.Catalog.SeedFile, log); err != nil {
			return err
		}
	}

	guarded := catalog.NewGuarded(repo, catalog.GuardSettings{
		FailureThreshold: cfg.Catalog.FailureThreshold,
		OpenTimeout:      cfg.Catalog.OpenTimeout,
		LoadTimeout:      cfg.Catalog.LoadTimeout,
	}, log)

	// Outbound notifications
	sinks := func(string, string) notify.Sink { return notify.NewLogSink(log) }
	if cfg.Kafka.Publishing() {
		kafkaSink := notify.NewKafkaSink(log, cfg.Kafka.Brokers...)
		defer kafkaSink.Close()
		sinks = kafkaSink.For
		log.Info("publishing notifications to kafka", slog.Any("brokers", cfg.Kafka.Brokers))
	}

	keys := store.Keys{Cart: cfg.Store.CartKey, Wishlist: cfg.Store.WishlistKeys}

	registry := tab.NewRegistry(tab.Deps{
		Opener:  opener,
		Catalog: guarded,
		Sinks:   sinks,
		Clock:   clockwork.NewRealClock(),
		Log:     log,
	}, tab.Settings{
		Keys:               keys,
		SessionTimeout:     cfg.Session.Timeout,
		WarnBefore:         cfg.Session.WarnBefore,
		CheckInterval:      cfg.Session.CheckInterval,
		Debounce:           cfg.Session.Debounce,
		PersistTimeout:     cfg.Store.WriteTimeout,
		NotificationBuffer: cfg.Tabs.NotificationBuffer,
	}, cfg.Tabs.IdleTimeout, cfg.Tabs.SweepInterval)
	defer func() {
		if err := registry.CloseAll(); err != nil {
			log.Warn("failed to close tabs", slog.Any("error", err))
		}
	}()

	// Checkout consumer
	if cfg.Kafka.Consuming() {
		consumer := checkout.NewConsumer(opener, keys.Cart, log, cfg.Kafka.Brokers...)
		defer consumer.Close()
		go consumer.Run(ctx)
		log.Info("consuming checkout events", slog.String("topic", checkout.Topic))
	}

	handler := h.NewHandler(registry, repo, cfg.Server.RequestTimeout, log).WithBreaker(guarded)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", slog.String("addr", srv.Addr), slog.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("storefront stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Opener, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("connected to redis", slog.String("addr", cfg.Redis.Addr))
		return store.RedisOpener(client, cfg.Redis.TTL, log), func() { client.Close() }, nil

	case config.BackendMongo:
		db, err := store.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		disconnect := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db.Client().Disconnect(dctx)
		}
		if err := store.EnsureIndexes(ctx, db); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		log.Info("connected to mongodb", slog.String("database", cfg.Mongo.Database))
		return store.MongoOpener(db, log), disconnect, nil

	default:
		log.Warn("using in-memory store, state is lost on restart")
		return store.NewMemoryBackend().Open, func() {}, nil
	}
}

func seedCatalog(ctx context.Context, repo *catalog.Repository, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()

	n, err := repo.Seed(ctx, f)
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	log.Info("catalog seeded", slog.Int("products", n), slog.String("file", path))
	return nil
}
