// Package app wires configuration, storage, services, and background
// workers into one lifecycle-managed application.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"

	"github.com/basesafe/pool-service/internal/app/services/pipeline"
	"github.com/basesafe/pool-service/internal/app/services/pools"
	"github.com/basesafe/pool-service/internal/app/services/sweeper"
	"github.com/basesafe/pool-service/internal/app/storage"
	"github.com/basesafe/pool-service/internal/app/storage/memory"
	"github.com/basesafe/pool-service/internal/app/storage/postgres"
	sbstore "github.com/basesafe/pool-service/internal/app/storage/supabase"
	"github.com/basesafe/pool-service/internal/app/system"
	"github.com/basesafe/pool-service/internal/chain"
	"github.com/basesafe/pool-service/internal/config"
	"github.com/basesafe/pool-service/internal/dedupe"
	"github.com/basesafe/pool-service/internal/platform/migrations"
	"github.com/basesafe/pool-service/internal/supabase"
	"github.com/basesafe/pool-service/pkg/logger"
)

// Application owns the store, the domain services, and the background
// workers. Start and Stop drive everything through the system manager.
type Application struct {
	Config  *config.Config
	Store   storage.Store
	Pools   *pools.Service
	Watcher *pools.Watcher
	Chain   *chain.Client

	manager  *system.Manager
	realtime *supabase.RealtimeClient
	tracker  dedupe.Tracker
	db       *sql.DB
	log      *logger.Logger
}

// New builds the application from configuration. Nothing is started yet;
// call Start.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(cfg.Logging)
	}

	a := &Application{
		Config:  cfg,
		manager: system.NewManager(),
		log:     log,
	}

	if err := a.buildStore(cfg); err != nil {
		return nil, err
	}

	a.Pools = pools.New(a.Store, log.WithField("component", "pools"))
	a.Watcher = pools.NewWatcher(a.Pools, a.realtime, cfg.Worker.WatchInterval, log.WithField("component", "watcher"))

	if cfg.Chain.RPCURL != "" {
		client, err := chain.NewClient(chain.Config{
			RPCURL:       cfg.Chain.RPCURL,
			Timeout:      cfg.Chain.Timeout,
			PollInterval: cfg.Chain.PollInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("chain client: %w", err)
		}
		a.Chain = client
	}

	a.tracker = dedupe.NewMemory()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.tracker = dedupe.NewRedis(rdb, cfg.Redis.SeenTTL)
	}

	if err := a.manager.Register(a.Watcher); err != nil {
		return nil, err
	}
	sw := sweeper.New(a.Store, cfg.Worker.SweepSchedule, log.WithField("component", "sweeper"))
	if err := a.manager.Register(sw); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Application) buildStore(cfg *config.Config) error {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		a.Store = memory.New()

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.db = db
		a.Store = postgres.New(db)

	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:        cfg.Store.SupabaseURL,
			ServiceKey: cfg.Store.SupabaseServiceKey,
		})
		if err != nil {
			return fmt.Errorf("supabase client: %w", err)
		}
		a.Store = sbstore.New(client)
		if cfg.Store.RealtimeEnabled {
			a.realtime = supabase.NewRealtime(cfg.Store.SupabaseURL, cfg.Store.SupabaseServiceKey)
		}

	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return nil
}

// NewPipeline builds an orchestrator bound to the application's chain
// client, store, and dedupe tracker. The wallet is caller-supplied because
// transaction signing lives outside this service.
func (a *Application) NewPipeline(wallet chain.Wallet) (*pipeline.Orchestrator, error) {
	if a.Chain == nil {
		return nil, fmt.Errorf("chain RPC is not configured")
	}
	factory := common.HexToAddress(a.Config.Chain.FactoryAddress)
	return pipeline.New(wallet, a.Chain, a.Pools, a.tracker, factory, a.log.WithField("component", "pipeline")), nil
}

// Attach registers an additional lifecycle-managed service.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start applies the schema when a database is attached, connects realtime,
// and starts every registered service.
func (a *Application) Start(ctx context.Context) error {
	if a.db != nil {
		if err := migrations.Apply(ctx, a.db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	if a.realtime != nil {
		if err := a.realtime.Connect(ctx); err != nil {
			a.log.WithError(err).Warn("realtime connect failed, change events disabled")
			a.realtime = nil
		}
	}
	return a.manager.Start(ctx)
}

// Stop shuts down the services, the realtime link, and the database handle.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.realtime != nil {
		_ = a.realtime.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	return err
}
