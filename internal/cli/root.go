// Package cli implements the backlogctl command tree.
//
//	backlogctl
//	├── migrate            apply store schema migrations
//	├── ls                 list persisted records
//	├── stats              count persisted records by state
//	├── enqueue TYPE [JSON] submit a record of a built-in type
//	└── serve              run the worker pool and the metrics endpoint
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/engine"
	"github.com/xraph/backlog/internal/config"
	"github.com/xraph/backlog/store"
)

type app struct {
	configPath string
	dbPath     string

	cfg    config.File
	logger *slog.Logger
}

// NewRootCommand builds the backlogctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "backlogctl",
		Short:         "Operate a durable background-job store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.dbPath != "" {
				cfg.Store.Driver = config.DriverSQLite
				cfg.Store.Path = a.dbPath
			}
			a.cfg = cfg
			a.logger = cfg.Logger(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides store settings)")

	root.AddCommand(
		a.migrateCommand(),
		a.lsCommand(),
		a.statsCommand(),
		a.enqueueCommand(),
		a.serveCommand(),
	)
	return root
}

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(store.Store) error) error {
	s, err := openStore(ctx, a.cfg.Store, a.logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// buildEngine opens the store and wires an engine with the built-in types.
// Stopping the engine closes the store.
func (a *app) buildEngine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	s, err := openStore(ctx, a.cfg.Store, a.logger)
	if err != nil {
		return nil, err
	}
	d, err := backlog.New(
		backlog.WithConfig(a.cfg.Engine),
		backlog.WithLogger(a.logger),
		backlog.WithStore(s),
	)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	opts = append([]engine.Option{engine.WithEnv(&Env{Logger: a.logger})}, opts...)
	eng, err := engine.Build(d, opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	registerBuiltins(eng)
	return eng, nil
}
