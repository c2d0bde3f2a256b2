// Package cli implements the docmap command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mickamy/docmap/internal/config"
	"github.com/mickamy/docmap/internal/modeldef"
	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/store/instrument"
	"github.com/mickamy/docmap/store/memory"
	"github.com/mickamy/docmap/store/mongodoc"
	"github.com/mickamy/docmap/store/sqldoc"
)

// app is the state shared by subcommands once the root has loaded
// configuration.
type app struct {
	cfgFile  string
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
}

// NewRootCmd creates the root command.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "docmap",
		Short: "Inspect and operate docmap document schemas",
		Long: `docmap loads document models declared as Go structs, validates their
associations and runs association queries against a configured store.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.registry == nil {
				return nil
			}
			return renderMetrics(cmd.ErrOrStderr(), a.registry)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	flags.String("driver", "", "store driver (memory|sqlite|mysql|postgres|mongo)")
	flags.String("dsn", "", "store connection string")
	flags.String("database", "", "database name (mongo)")
	flags.String("schema", "", "Go source file declaring the models")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.Bool("metrics", false, "print store metrics after the command")

	_ = root.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			config.DriverMemory, config.DriverSQLite, config.DriverMySQL, config.DriverPostgres, config.DriverMongo,
		}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newCountCmd(a))

	return root
}

// Execute runs the root command.
func Execute(version string) error {
	root := NewRootCmd(version)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	if cfg.File != "" {
		logger.Debug("config loaded", slog.String("file", cfg.File))
	}
	return nil
}

func (a *app) schema() (*odm.Schema, error) {
	if a.cfg.Schema == "" {
		return nil, errors.New("no schema file: set --schema or schema in the config file")
	}
	schema, _, err := modeldef.Load(a.cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", a.cfg.Schema, err)
	}
	return schema, nil
}

// open builds a DB over the configured store. The caller closes it.
func (a *app) open(ctx context.Context) (*odm.DB, error) {
	schema, err := a.schema()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return nil, err
	}
	if a.cfg.Metrics {
		a.registry = prometheus.NewRegistry()
		store = instrument.Wrap(store, instrument.NewMetrics(a.registry))
	}
	a.logger.Debug("store opened", slog.String("driver", a.cfg.Store.Driver))
	return odm.New(store, schema, odm.WithLogger(a.logger)), nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (odm.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite, config.DriverMySQL, config.DriverPostgres:
		db, err := sqldoc.Open(sc.Driver, sc.DSN)
		if err != nil {
			return nil, err //nolint:wrapcheck // already prefixed
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping %s: %w", sc.Driver, err)
		}
		return sqldoc.NewStore(db), nil
	case config.DriverMongo:
		s, err := mongodoc.Connect(ctx, sc.DSN, sc.Database)
		if err != nil {
			return nil, err //nolint:wrapcheck // already prefixed
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", sc.Driver)
	}
}

func closeDB(db *odm.DB, w io.Writer) {
	if err := db.Close(); err != nil {
		_, _ = fmt.Fprintf(w, "close store: %v\n", err)
	}
}
