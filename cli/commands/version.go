package commands

import (
	"fmt"
	goruntime "runtime"

	"github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/sqlforge/cli/internal/ui"
)

// Version information, set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			bindOutput(cmd)
			fmt.Fprintf(ui.Out, "sqlforge version %s\n", Version)
			fmt.Fprintf(ui.Out, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(ui.Out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(ui.Out, "  Go Version: %s\n", goruntime.Version())
			fmt.Fprintf(ui.Out, "  SQLite:     %s\n", sqlite3Version())
			fmt.Fprintf(ui.Out, "  OS/Arch:    %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
		},
	}
}

func sqlite3Version() string {
	v, _, _ := sqlite3.Version()
	return v
}
