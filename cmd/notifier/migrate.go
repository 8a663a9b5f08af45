// cmd/notifier/migrate.go
package main

import (
	"context"

	"github.com/spf13/cobra"

	"rating-notifier/internal/common/database"
)

func migrateCmd(configPath *string) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			// connectPostgres migrates as part of connecting.
			if err := a.connectPostgres(ctx); err != nil {
				return err
			}
			if status {
				return database.MigrationStatus(ctx, a.pg.DB)
			}
			a.zap.Info("Migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print the migration status after applying")
	return cmd
}
