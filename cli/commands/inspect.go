package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/migrate/introspect"
)

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [table]",
		Short: "Print the live shape of a table",
		Long:  "Print the columns and indices of a table as the database reports them, or list the tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindOutput(cmd)
			table := ""
			if len(args) == 1 {
				table = args[0]
			}
			return a.runInspect(cmd.Context(), table)
		},
	}
}

func (a *app) runInspect(ctx context.Context, table string) error {
	c, err := a.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	in := c.Dialect().Introspector(c.DB().SQL())
	if table == "" {
		names, err := in.Tables(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, len(names))
		for i, n := range names {
			rows[i] = []string{n}
		}
		return ui.PrintTable([]string{"table"}, rows)
	}

	obj, err := in.Object(ctx, table)
	if err != nil {
		return err
	}
	switch o := obj.(type) {
	case nil:
		return fmt.Errorf("no table named %q", table)
	case *introspect.ViewSchema:
		ui.PrintWarning("%s is a view", o.Name)
		fmt.Fprintln(ui.Out, o.Definition)
		return nil
	case *introspect.UnknownObject:
		ui.PrintWarning("%s is a %s", o.Name, o.Kind)
		return nil
	case *introspect.TableSchema:
		ui.PrintHeader(o.Name, fmt.Sprintf("%d columns", len(o.Columns)))
		if err := ui.PrintTable([]string{"column", "type", "flags", "default"}, ui.SchemaRows(o)); err != nil {
			return err
		}
		if rows := ui.IndexRows(o); len(rows) > 0 {
			return ui.PrintTable([]string{"index", "kind", "columns"}, rows)
		}
		return nil
	default:
		return fmt.Errorf("unexpected object %T", obj)
	}
}
