package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is stamped with -ldflags "-X jobmate/alert-service/internal/cli.version=v1.2.3".
var version = "unknown"

var readBuildInfo = debug.ReadBuildInfo

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version and revision",
	Run: func(cmd *cobra.Command, _ []string) {
		v, rev := buildVersion()
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s", app, v)
		if rev != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", rev)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	},
}

// buildVersion prefers the stamped version, then the module version recorded
// by "go install", and reports the VCS revision when the toolchain embedded one.
func buildVersion() (v, rev string) {
	v = version
	info, ok := readBuildInfo()
	if !ok {
		return v, ""
	}
	if v == "unknown" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return v, rev
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
