package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/sqlforge"
	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/migrate"
	"github.com/satishbabariya/sqlforge/runtime"
)

func newMigrateCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "migrate [table...]",
		Short: "Bring tables up to date with the schema file",
		Long:  "Plan and apply the update of every table in the schema file, or only the named tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindOutput(cmd)
			return a.runMigrate(cmd.Context(), args, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply destructive changes without asking")
	return cmd
}

func (a *app) runMigrate(ctx context.Context, tables []string, yes bool) error {
	reg, descs, err := a.schema()
	if err != nil {
		return err
	}
	descs, err = selected(descs, tables)
	if err != nil {
		return err
	}

	c, err := a.open(reg, sqlforge.WithStepHook(func(_ context.Context, s migrate.Step) error {
		ui.PrintInfo("%s: %s", s.Name, runtime.Truncate(s.SQL, 80))
		return nil
	}))
	if err != nil {
		return err
	}
	defer c.Close()

	m, err := c.Migrator()
	if err != nil {
		return err
	}

	applied := 0
	for i, d := range descs {
		ui.PrintStep(i+1, len(descs), d.Table())
		plan, err := m.Plan(ctx, d)
		if err != nil {
			return err
		}
		if plan.Strategy == migrate.NoOp {
			ui.PrintSuccess("%s is up to date", d.Table())
			continue
		}
		ui.PrintChanges(plan)

		if ui.Destructive(plan) && !yes {
			ok, err := a.confirm(fmt.Sprintf("Apply %s of %s? Rows or objects may be dropped.", plan.Strategy, d.Table()))
			if err != nil {
				return err
			}
			if !ok {
				ui.PrintWarning("skipped %s", d.Table())
				continue
			}
		}

		res, err := m.UpdateSchema(ctx, d)
		if err != nil {
			return err
		}
		if res.Archived != "" {
			ui.PrintWarning("leftover aside table archived as %s", res.Archived)
		}
		ui.PrintSuccess("%s: %s, %d statements in %s", res.Table, res.Strategy, len(res.Statements), res.Duration.Round(time.Millisecond))
		applied++
	}

	ui.PrintInfo("%d of %d tables changed", applied, len(descs))
	return nil
}
