// alertd evaluates saved job alerts against the job catalog on a cadence
// and hands notifications for new matches to the notification store.
package main

import (
	"fmt"
	"os"

	"jobmate/alert-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "alertd: %v\n", err)
		os.Exit(1)
	}
}
