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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/neighborhood-packs/pkg/booking"
	"github.com/chris/neighborhood-packs/pkg/clock"
	"github.com/chris/neighborhood-packs/pkg/codes"
	"github.com/chris/neighborhood-packs/pkg/config"
	"github.com/chris/neighborhood-packs/pkg/exchange"
	"github.com/chris/neighborhood-packs/pkg/limiter"
	"github.com/chris/neighborhood-packs/pkg/notify"
	"github.com/chris/neighborhood-packs/pkg/packs"
	"github.com/chris/neighborhood-packs/pkg/rating"
	"github.com/chris/neighborhood-packs/pkg/storage"
	dydbstore "github.com/chris/neighborhood-packs/pkg/storage/dynamodb"
	"github.com/chris/neighborhood-packs/pkg/storage/memory"
	pgstore "github.com/chris/neighborhood-packs/pkg/storage/postgres"
	"github.com/chris/neighborhood-packs/pkg/storage/postgres/migrations"
	"github.com/chris/neighborhood-packs/pkg/websockets"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("neighborhood-packs-api"))
		if err != nil {
			return fmt.Errorf("unable to connect to NATS: %w", err)
		}
		defer nc.Close()
	}

	hub := websockets.NewHub()
	defer hub.Close()

	sink, err := notificationSink(ctx, cfg, store, hub, rdb, nc)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(sink,
		notify.WithQueueSize(cfg.NotifyQueueSize),
		notify.WithWorkers(cfg.NotifyWorkers),
		notify.WithSendTimeout(cfg.NotifySendTimeout),
		notify.WithLogger(logger))

	var attempts limiter.Attempts = limiter.NewLocal(cfg.CodeAttemptLimit, cfg.CodeAttemptWindow)
	if rdb != nil {
		attempts = &limiter.Redis{Client: rdb, Limit: cfg.CodeAttemptLimit, Window: cfg.CodeAttemptWindow}
	}

	clk := clock.NewSystem()
	bookingEngine := booking.NewEngine(store,
		booking.WithNotifier(dispatcher),
		booking.WithAttempts(attempts),
		booking.WithClock(clk),
		booking.WithCodeGenerator(codes.Random),
		booking.WithLogger(logger))
	exchangeEngine := exchange.NewEngine(store,
		exchange.WithNotifier(dispatcher),
		exchange.WithAttempts(attempts),
		exchange.WithClock(clk),
		exchange.WithCodeGenerator(codes.Random),
		exchange.WithTTL(cfg.ExchangeTTL),
		exchange.WithLogger(logger))

	router := NewRouter(Services{
		Registry:      packs.NewRegistry(store, clk),
		Bookings:      &booking.Logging{Service: bookingEngine},
		Exchanges:     &exchange.Logging{Service: exchangeEngine},
		Ratings:       rating.NewService(store, dispatcher, clk),
		Notifications: store,
		Connections:   hub,
		Clock:         clk,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The dispatcher outlives the server so in-flight requests can still notify.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	if rdb != nil {
		g.Go(func() error {
			if err := notify.SubscribeRedis(gctx, rdb, hub); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("redis subscription ended: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("starting server", slog.String("port", cfg.HTTPPort), slog.String("storage", cfg.StorageBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		stopDispatch()
		return err
	})

	return g.Wait()
}

// openStore connects the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("unable to reach postgres: %w", err)
		}
		if cfg.MigrateOnBoot {
			if err := migrations.Apply(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return pgstore.New(pool), pool.Close, nil

	case config.BackendMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), func() {}, nil

	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		return dydbstore.New(dynamodb.NewFromConfig(awsCfg), dydbstore.Tables{
			Packs:         cfg.PacksTable,
			Bookings:      cfg.BookingsTable,
			Exchanges:     cfg.ExchangesTable,
			Ratings:       cfg.RatingsTable,
			Notifications: cfg.NotificationsTable,
		}), func() {}, nil
	}
}

// notificationSink picks where dispatched notifications go. With a queue
// configured the notification lambda persists and publishes them; otherwise
// this process does it. Local websocket clients are fed through the Redis
// subscription when Redis is configured, so the hub is only a direct sink
// without it.
func notificationSink(ctx context.Context, cfg *config.Config, store storage.NotificationWriter, hub *websockets.Hub, rdb *redis.Client, nc *nats.Conn) (notify.Sink, error) {
	if cfg.NotificationsQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		sinks := notify.Multi{notify.NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.NotificationsQueueURL)}
		if rdb == nil {
			sinks = append(sinks, hub)
		}
		return sinks, nil
	}

	sinks := notify.Multi{&notify.StoreSink{Store: store}}
	if nc != nil {
		sinks = append(sinks, &notify.NATSSink{Conn: nc})
	}
	if rdb != nil {
		sinks = append(sinks, &notify.RedisSink{Client: rdb})
	} else {
		sinks = append(sinks, hub)
	}
	return sinks, nil
}
