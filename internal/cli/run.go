package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/alert-service/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch for a cadence and print the report as JSON",
	Long: "Run one batch for a cadence and exit. Meant for an external cron;\n" +
		"eligibility still decides which alerts of the cadence actually run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("cadence")
		return runBatch(name)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("cadence", "c", string(model.CadenceDaily), "instant, daily or weekly")
}

func runBatch(name string) error {
	cadence, err := model.ParseCadence(name)
	if err != nil {
		return err
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	report, err := d.runner.RunBatch(ctx, cadence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s batch: %w", cadence, err)
	}
	log.Debug("batch done", zap.Int("failed", report.Failed))
	return printJSON(report)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
