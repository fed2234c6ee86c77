package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test <alert-id>",
	Short: "Run one alert now, bypassing eligibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, _ := cmd.Flags().GetBool("preview")
		return testAlert(cmd.Context(), args[0], preview)
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().BoolP("preview", "p", false, "search only; record nothing and send no notification")
}

func testAlert(ctx context.Context, id string, preview bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	d, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	run, err := d.runner.RunOne(ctx, id, preview)
	if run != nil {
		if perr := printJSON(run); perr != nil {
			return perr
		}
	}
	return err
}
