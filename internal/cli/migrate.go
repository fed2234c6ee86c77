package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/alert-service/internal/config"
	"jobmate/alert-service/internal/db"
	"jobmate/alert-service/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the job_alerts and notifications tables if they are missing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return migrate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate needs store=%s, got %s", config.StorePostgres, cfg.Store)
	}
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info("schema applied")
	return nil
}
