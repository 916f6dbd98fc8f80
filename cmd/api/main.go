package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/baharkarakas/welfare-backend/internal/api"
	"github.com/baharkarakas/welfare-backend/internal/app"
	"github.com/baharkarakas/welfare-backend/internal/config"
	"github.com/baharkarakas/welfare-backend/internal/logger"
	"github.com/baharkarakas/welfare-backend/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run owns every deferred cleanup, so the logger is flushed before main exits.
func run() error {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup", zap.Error(err))
		return err
	}
	defer a.Close()

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:          cfg,
		Log:          log,
		TM:           a.TM,
		Ping:         a.Store.Ping,
		Users:        a.Users,
		Campaigns:    a.Campaigns,
		Collection:   a.Collection,
		Disbursement: a.Disbursement,
		Sweeper:      a.Sweeper,
	})

	if cfg.Recon.Interval > 0 {
		go a.Sweeper.Run(ctx, cfg.Recon.Interval)
		log.Info("reconcile sweep scheduled", zap.Duration("interval", cfg.Recon.Interval))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("mpesa_env", cfg.Mpesa.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	return nil
}
