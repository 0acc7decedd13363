package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/cli/internal/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		apply    bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-plan whenever the schema file changes",
		Long:  "Watch the schema file and print the plan, or apply non-destructive updates with --apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindOutput(cmd)
			w, err := watch.New(a.cfg.SchemaPath, func(ctx context.Context) error {
				ui.PrintSection("schema changed at " + time.Now().Format(time.TimeOnly))
				if apply {
					return a.runMigrate(ctx, nil, false)
				}
				return a.runPlan(ctx, nil, true)
			}, watch.WithDebounce(debounce), watch.WithLogger(a.log))
			if err != nil {
				return err
			}
			ui.PrintInfo("watching %s", a.cfg.SchemaPath)
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Apply each update; destructive ones still ask")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-planning")
	return cmd
}
