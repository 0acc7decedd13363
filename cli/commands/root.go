// Package commands implements the sqlforge command.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/satishbabariya/sqlforge"
	"github.com/satishbabariya/sqlforge/cli/internal/config"
	"github.com/satishbabariya/sqlforge/cli/internal/schemafile"
	"github.com/satishbabariya/sqlforge/cli/internal/ui"
	"github.com/satishbabariya/sqlforge/internal/debug"
	"github.com/satishbabariya/sqlforge/migrate"
	"github.com/satishbabariya/sqlforge/model"
	"github.com/satishbabariya/sqlforge/runtime"
)

// app is the state shared by every subcommand.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger

	// confirm asks before a destructive change.
	confirm func(message string) (bool, error)
}

func surveyConfirm(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

// Execute runs the command with os.Args, cancelling on SIGINT and SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := NewRootCommand()
	if err != nil {
		return err
	}
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() (*cobra.Command, error) {
	return newRootCommand(surveyConfirm)
}

func newRootCommand(confirm func(string) (bool, error)) (*cobra.Command, error) {
	v, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	a := &app{v: v, log: zap.NewNop(), confirm: confirm}

	root := &cobra.Command{
		Use:           "sqlforge",
		Short:         "Declarative schema updates and query compilation",
		Long:          "sqlforge brings tables in line with entity descriptors and compiles predicates to SQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.String("driver", "", "Database driver (sqlite3, postgres, mysql)")
	flags.String("dsn", "", "Data source name; defaults to DATABASE_URL")
	flags.String("schema", "", "Path to the YAML schema file")
	flags.String("aside-policy", "", "Leftover aside table handling (archive, drop, fail)")
	flags.Bool("history", false, "Record applied updates in the history table")
	flags.Bool("array-params", false, "Bind collections as one parameter where supported")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-level", "", "Log level when debug logging is enabled")
	for key, flag := range map[string]string{
		"driver":       "driver",
		"dsn":          "dsn",
		"schema_path":  "schema",
		"aside_policy": "aside-policy",
		"history":      "history",
		"array_params": "array-params",
		"debug":        "debug",
		"log_level":    "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	root.AddCommand(
		newMigrateCommand(a),
		newPlanCommand(a),
		newInspectCommand(a),
		newCompileCommand(a),
		newWatchCommand(a),
		newVersionCommand(),
	)
	return root, nil
}

func (a *app) load() error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := debug.Init(cfg.Debug, cfg.LogLevel); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = debug.Logger()
	return nil
}

// schema reads the schema file and registers its entities in a fresh registry.
func (a *app) schema() (*model.Registry, []*model.EntityDescriptor, error) {
	f, err := schemafile.Load(config.AppFs, a.cfg.SchemaPath)
	if err != nil {
		return nil, nil, err
	}
	reg := model.NewRegistry(model.WithLogger(a.log))
	descs, err := f.Register(reg)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug("schema loaded",
		zap.String("path", a.cfg.SchemaPath),
		zap.String("checksum", f.Checksum),
		zap.Int("entities", len(descs)))
	return reg, descs, nil
}

// open connects with the configured driver and aside policy.
func (a *app) open(reg *model.Registry, extra ...sqlforge.Option) (*sqlforge.Client, error) {
	if a.cfg.DSN == "" {
		return nil, fmt.Errorf("no database configured: set --dsn, SQLFORGE_DSN or DATABASE_URL")
	}
	policy, err := migrate.ParseAsidePolicy(a.cfg.AsidePolicy)
	if err != nil {
		return nil, err
	}
	opts := []sqlforge.Option{
		sqlforge.WithLogger(a.log),
		sqlforge.WithAsidePolicy(policy),
	}
	if reg != nil {
		opts = append(opts, sqlforge.WithRegistry(reg))
	}
	if a.cfg.History {
		opts = append(opts, sqlforge.WithHistory())
	}
	if a.cfg.ArrayParams {
		opts = append(opts, sqlforge.WithArrayParams())
	}
	a.log.Debug("connecting", zap.String("driver", a.cfg.Driver), zap.String("dsn", runtime.SanitizeDSN(a.cfg.DSN)))
	c, err := sqlforge.Open(a.cfg.Driver, a.cfg.DSN, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// selected filters descs to the named tables, keeping file order. No names selects all.
func selected(descs []*model.EntityDescriptor, names []string) ([]*model.EntityDescriptor, error) {
	if len(names) == 0 {
		return descs, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*model.EntityDescriptor
	for _, d := range descs {
		if want[d.Table()] {
			out = append(out, d)
			delete(want, d.Table())
		}
	}
	for n := range want {
		return nil, fmt.Errorf("table %q is not in the schema file", n)
	}
	return out, nil
}

func bindOutput(cmd *cobra.Command) {
	ui.Out = cmd.OutOrStdout()
}
