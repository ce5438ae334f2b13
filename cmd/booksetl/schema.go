package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/sink"
)

func newSchemaCmd(a *app) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the books table if it does not exist.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if printOnly {
				fmt.Fprintln(cmd.OutOrStdout(), sink.SchemaSQL(cfg.Database.Table))
				return nil
			}

			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, err := sink.Connect(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			writer, err := sink.NewWriter(conn, cfg.Database.Table, cfg.Database.BatchSize, logger, nil)
			if err != nil {
				_ = conn.Close(context.WithoutCancel(ctx))
				return err
			}
			defer func() {
				if err := writer.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("close database connection", zap.Error(err))
				}
			}()
			return writer.EnsureSchema(ctx)
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the DDL instead of executing it")
	return cmd
}
