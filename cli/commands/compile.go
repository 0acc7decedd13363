package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/sqlforge"
	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/query/builder"
)

func newCompileCommand(a *app) *cobra.Command {
	var (
		table string
		count bool
	)

	cmd := &cobra.Command{
		Use:   "compile <expression>",
		Short: "Print the SQL of a predicate",
		Long:  "Translate a predicate over a schema file table into a SELECT for the configured dialect",
		Example: `  sqlforge compile --table users 'age >= 18 && startsWith(email, "a")'
  sqlforge compile --table users --count 'in(id, [1, 2, 3])'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindOutput(cmd)
			return a.runCompile(table, args[0], count)
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Table the predicate filters")
	cmd.Flags().BoolVar(&count, "count", false, "Compile a COUNT instead of a row select")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func (a *app) runCompile(table, src string, count bool) error {
	reg, _, err := a.schema()
	if err != nil {
		return err
	}
	desc, ok := reg.Lookup(table)
	if !ok {
		return fmt.Errorf("table %q is not in the schema file", table)
	}
	d, _, err := sqlforge.DialectFor(a.cfg.Driver, a.cfg.ArrayParams)
	if err != nil {
		return err
	}

	sel := builder.New(d, reg).Select(desc).WhereExpr(src, nil)
	if count {
		sel = sel.Count()
	}
	op, err := sel.Prepare()
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, op.SQL)
	if len(op.Slots) > 0 {
		fmt.Fprintln(ui.Out, ui.SecondaryStyle.Render(op.GoString()))
	}
	return nil
}
