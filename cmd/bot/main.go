package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xmasacrex/club-rpg/internal/api"
	"github.com/xmasacrex/club-rpg/internal/auth"
	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/commands"
	"github.com/xmasacrex/club-rpg/internal/config"
	"github.com/xmasacrex/club-rpg/internal/consumer"
	"github.com/xmasacrex/club-rpg/internal/deadletter"
	"github.com/xmasacrex/club-rpg/internal/domain"
	"github.com/xmasacrex/club-rpg/internal/logging"
	"github.com/xmasacrex/club-rpg/internal/outbox"
	"github.com/xmasacrex/club-rpg/internal/persistence/memory"
	"github.com/xmasacrex/club-rpg/internal/persistence/postgres"
	"github.com/xmasacrex/club-rpg/internal/scheduler"
	"github.com/xmasacrex/club-rpg/internal/tasks"
	httptransport "github.com/xmasacrex/club-rpg/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("bot stopped")
}

// backend bundles the store-specific collaborators.
type backend struct {
	store    domain.ActivityStore
	queue    deadletter.Queue
	usage    command.UsageRecorder
	pool     *pgxpool.Pool
	shutdown func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, trips are lost on restart")
		return backend{
			store:    memory.NewStore(),
			queue:    deadletter.NewMemoryQueue(time.Now),
			shutdown: func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return backend{}, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return backend{}, err
	}
	repo := postgres.NewRepository(pool)
	return backend{
		store:    repo,
		queue:    postgres.NewTaskDLQ(pool),
		usage:    repo,
		pool:     pool,
		shutdown: pool.Close,
	}, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.shutdown()

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	replies := consumer.NewReplyChannel(producer, cfg.RepliesTopic)

	taskRegistry := tasks.NewRegistry()
	announcer := tasks.NewAnnouncer(replies, logger.Named("tasks"))
	if err := tasks.RegisterAnnouncers(taskRegistry, announcer, cfg.AnnouncedTypes); err != nil {
		return err
	}

	svc := domain.NewService(b.store, taskRegistry,
		domain.WithLogger(logger.Named("trips")),
		domain.WithFailureRecorder(b.queue),
	)
	// The cache must reflect the store before any command is accepted.
	if _, err := svc.SyncFromStore(ctx); err != nil {
		return err
	}

	commandRegistry := command.NewRegistry()
	if err := commands.Register(commandRegistry, commands.Deps{
		Trips:       svc,
		TripTypes:   taskRegistry.Types(),
		MaxDuration: cfg.MaxTripDuration,
	}); err != nil {
		return err
	}
	hooks := []command.PostHook{command.LogHook(logger.Named("commands")), command.MetricsHook()}
	if b.usage != nil {
		hooks = append(hooks, command.UsageHook(b.usage))
	}
	dispatcher := command.NewDispatcher(commandRegistry, replies,
		command.WithInhibitors(
			command.BlacklistInhibitor(command.NewStaticBlacklist(cfg.Blacklist)),
			command.GuardInhibitor(svc),
			command.PerkTierInhibitor(command.StaticPerkTiers(cfg.PatronTiers)),
			command.TripInhibitor(svc),
		),
		command.WithPostHooks(hooks...),
		command.WithLogger(logger.Named("dispatch")),
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroup,
		Topic:           cfg.CommandsTopic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	defer reader.Close()
	processor := consumer.NewProcessor(reader, consumer.NewDispatchHandler(dispatcher, logger.Named("consumer")),
		consumer.WithLogger(logger.Named("consumer")))

	sched := scheduler.New(svc, cfg.SchedulerPollInterval, cfg.SchedulerBatchSize,
		scheduler.WithConcurrency(cfg.SchedulerConcurrency),
		scheduler.WithLogger(logger.Named("scheduler")))
	redelivery := deadletter.NewManager(b.queue, svc, cfg.TaskRetryMax, cfg.TaskRetryBaseDelay,
		deadletter.WithLogger(logger.Named("deadletter")))

	mux := http.NewServeMux()
	api.NewHandler(svc, logger.Named("api")).RegisterRoutes(mux)
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.LogRequests(logger.Named("http"), authMiddleware.Wrap(mux)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	g.Go(func() error {
		redelivery.Start(gctx, cfg.TaskRetryInterval, cfg.DLQBatchSize)
		return nil
	})
	if b.pool != nil {
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		events := outbox.NewDispatcher(b.pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.Named("outbox")))
		g.Go(func() error {
			events.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("consuming commands", zap.String("topic", cfg.CommandsTopic), zap.String("group", cfg.ConsumerGroup))
		if err := processor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("command consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("operator api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
