// Package app wires configuration into a running set of services. Both the
// HTTP server and the operator CLI build on it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/baharkarakas/welfare-backend/internal/auth"
	"github.com/baharkarakas/welfare-backend/internal/cache"
	"github.com/baharkarakas/welfare-backend/internal/config"
	"github.com/baharkarakas/welfare-backend/internal/db"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/baharkarakas/welfare-backend/internal/repository/memory"
	"github.com/baharkarakas/welfare-backend/internal/repository/postgres"
	"github.com/baharkarakas/welfare-backend/internal/services"
	"github.com/baharkarakas/welfare-backend/internal/worker"
)

type App struct {
	Cfg   config.Config
	Log   *zap.Logger
	Store repo.Store
	TM    *auth.TokenManager
	Pool  *worker.Pool

	Users        *services.UserService
	Campaigns    *services.CampaignService
	Collection   *services.CollectionService
	Disbursement *services.DisbursementService
	Sweeper      *services.Sweeper

	closers []func()
}

// New opens the store and the coordinator selected by cfg and builds the
// services on top of them. Call Close when done.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	var coord cache.Coordinator = cache.NewLocal()
	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		coord = rc
	} else {
		log.Warn("REDIS_ADDR not set, callback locks are process-local")
	}

	gw := mpesa.NewClient(cfg.Mpesa, log)
	a.TM = auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	a.Pool = worker.NewPool(cfg.Recon.Workers, log)
	a.closers = append(a.closers, a.Pool.Stop)

	a.Users = services.NewUserService(store.Users(), a.TM)
	a.Campaigns = services.NewCampaignService(store, log)
	a.Collection = services.NewCollectionService(store, gw, coord, log, services.CollectionOptions{
		StaleAfter:    cfg.Recon.StaleAfter,
		QueryThrottle: cfg.Recon.QueryThrottle,
	})
	a.Disbursement = services.NewDisbursementService(store, gw, coord, log)
	a.Sweeper = services.NewSweeper(store.Contributions(), a.Collection, a.Pool, log, cfg.Recon.StaleAfter, cfg.Recon.BatchSize)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (repo.Store, error) {
	switch a.Cfg.StoreDriver {
	case "memory":
		a.Log.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	case "postgres", "":
		pool, err := db.NewPool(ctx, a.Cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if a.Cfg.Migrate {
			if err := db.RunMigrations(ctx, pool, a.Log); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		return postgres.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", a.Cfg.StoreDriver)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
