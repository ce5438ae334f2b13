package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/logging"
)

type app struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "booksetl",
		Short:         "booksetl collects book listings from a search page and loads them into Postgres.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().Bool("dev", false, "Human-readable development logging")
	root.PersistentFlags().String("database-url", "", "Postgres connection string")
	root.PersistentFlags().String("table", "", "Target table name")
	a.bind(root, "logging.development", "dev")
	a.bind(root, "database.url", "database-url")
	a.bind(root, "database.table", "table")

	root.AddCommand(newRunCmd(a), newSchemaCmd(a))
	return root
}

func (a *app) bind(cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// setup loads the configuration and builds the logger shared by a command.
func (a *app) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadViper(a.v, a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
