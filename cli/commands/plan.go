package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/sqlforge/cli/internal/ui"
)

func newPlanCommand(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "plan [table...]",
		Short: "Show the statements an update would run",
		Long:  "Introspect each table and print the chosen strategy and its SQL without applying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindOutput(cmd)
			return a.runPlan(cmd.Context(), args, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print markdown source instead of rendering it")
	return cmd
}

func (a *app) runPlan(ctx context.Context, tables []string, plain bool) error {
	reg, descs, err := a.schema()
	if err != nil {
		return err
	}
	descs, err = selected(descs, tables)
	if err != nil {
		return err
	}
	c, err := a.open(reg)
	if err != nil {
		return err
	}
	defer c.Close()

	m, err := c.Migrator()
	if err != nil {
		return err
	}
	for _, d := range descs {
		plan, err := m.Plan(ctx, d)
		if err != nil {
			return err
		}
		md := ui.PlanMarkdown(plan)
		if plain {
			fmt.Fprintln(ui.Out, md)
			continue
		}
		if err := ui.PrintMarkdown(md); err != nil {
			return err
		}
	}
	return nil
}
