// Package cli holds the alertd cobra commands.
package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"jobmate/alert-service/internal/config"
	"jobmate/alert-service/internal/logger"
)

const app = "alertd"

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "alertd runs saved job alerts against the catalog and dispatches notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "a .env file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("store", config.StorePostgres, "storage backend: postgres or memory")

	bindFlag("debug", "debug")
	bindFlag("json", "json")
	bindFlag("store", "store")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Fatalf("binding --%s: %v", flag, err)
	}
}

// setup loads configuration and builds the logger every command needs.
func setup() (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	l, err := logger.New(cfg.JSONLogs, cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}
	return cfg, l, nil
}
