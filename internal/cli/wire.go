package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/config"
	"jobmate/alert-service/internal/db"
	"jobmate/alert-service/internal/events"
	"jobmate/alert-service/internal/metrics"
	"jobmate/alert-service/internal/store/memory"
	"jobmate/alert-service/internal/store/postgres"
)

// deps is the assembled object graph shared by the commands.
type deps struct {
	service *alert.Service
	runner  *alert.Runner
	metrics *metrics.Recorder
	close   func()
}

func wire(ctx context.Context, cfg *config.Config, log *zap.Logger) (*deps, error) {
	policy, err := alert.ParsePolicy(cfg.NewMatchPolicy)
	if err != nil {
		return nil, err
	}

	var (
		criteria alert.CriteriaStore
		catalog  alert.Catalog
		notes    alert.NotificationStore
		seen     alert.SeenStore
		opts     []alert.RunnerOption
		closers  []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory stores; nothing is persisted")
		criteria = memory.NewCriteriaStore()
		catalog = memory.NewCatalog()
		notes = memory.NewNotificationStore()
		seen = memory.NewSeenStore()
	default:
		log.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				closeAll()
				return nil, err
			}
			log.Info("schema applied")
		}

		log.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() { rdb.Close() })

		criteria = postgres.NewCriteriaStore(pool)
		catalog = postgres.NewCatalog(pool)
		notes = postgres.NewNotificationStore(pool)
		seen = events.NewSeenStore(rdb, cfg.SeenTTL)
		opts = append(opts,
			alert.WithPublisher(events.NewPublisher(rdb)),
			alert.WithLocker(events.NewLocker(rdb, log)),
		)
	}

	exec, err := alert.NewExecutor(catalog, criteria, seen, alert.ExecutorConfig{
		ResultLimit:  cfg.ResultLimit,
		QueryTimeout: cfg.QueryTimeout,
		Policy:       policy,
	}, log.Named("executor"))
	if err != nil {
		closeAll()
		return nil, err
	}

	rec := metrics.New()
	opts = append(opts, alert.WithRecorder(rec))
	runner := alert.NewRunner(criteria, exec, notes, alert.RunnerConfig{
		Workers:               cfg.Workers,
		QueryRate:             cfg.QueryRate,
		AlertTimeout:          cfg.AlertTimeout,
		HighPriorityThreshold: cfg.HighPriorityThreshold,
		LockTTL:               cfg.LockTTL,
	}, log.Named("runner"), opts...)

	return &deps{
		service: alert.NewService(criteria, catalog, log.Named("service")),
		runner:  runner,
		metrics: rec,
		close:   closeAll,
	}, nil
}
