package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
)

func newMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or inspect the database schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("PG_DSN")
			}
			if dsn == "" {
				return errors.New("--dsn or PG_DSN is required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := db.New(ctx, dsn, db.PoolOptions{ApplicationName: "rvuctl", MaxConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()
			switch args[0] {
			case "up":
				return db.Migrate(ctx, pool)
			case "status":
				return db.MigrationStatus(ctx, pool)
			default:
				return errors.New("unknown migrate action " + args[0])
			}
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to PG_DSN)")
	return cmd
}
