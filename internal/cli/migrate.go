package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskmanagement-api/internal/config"
	"taskmanagement-api/internal/store"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cmd.ErrOrStderr())
			ctx := cmd.Context()

			db, err := store.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			logger.Printf("Database migrations applied (%s).", cfg.Database.Driver)
			return nil
		},
	}
}
