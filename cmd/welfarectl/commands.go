package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/baharkarakas/welfare-backend/internal/app"
	"github.com/baharkarakas/welfare-backend/internal/config"
	"github.com/baharkarakas/welfare-backend/internal/db"
	"github.com/baharkarakas/welfare-backend/internal/logger"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/services"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log := logger.New(cfg.Env)
			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.RunMigrations(cmd.Context(), pool, log)
		},
	}
}

func seedAdminCmd() *cobra.Command {
	var in services.CreateUserInput
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin account",
		Long: `Create an admin account that can approve campaigns and initiate disbursements.

Examples:
  welfarectl seed-admin --email admin@example.com --password s3cretpass --name "Welfare Admin" --admission ADM-001`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Role = models.RoleAdmin
			return withApp(cmd.Context(), func(a *app.App) error {
				u, err := a.Users.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password (min 8 characters)")
	cmd.Flags().StringVar(&in.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&in.AdmissionNumber, "admission", "", "admission or staff number")
	for _, f := range []string{"email", "password", "name", "admission"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Query M-Pesa for every stale pending contribution once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}

func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup", zap.Error(err))
		return err
	}
	defer a.Close()
	if cfg.StoreDriver == "memory" {
		fmt.Fprintln(os.Stderr, "warning: STORE_DRIVER=memory, changes are discarded on exit")
	}
	return fn(a)
}
