package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

// MigrateCmd applies pending schema migrations.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgGreen).Sprint("migrations applied"))
			return nil
		},
	}
}
