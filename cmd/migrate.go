package cmd

import (
	"github.com/spf13/cobra"

	"cloudmedia/internal/container"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := container.OpenDatabase(cmd.Context(), appConfig, appLog)
		if err != nil {
			return err
		}
		defer db.Close()
		appLog.Info().Msg("migration complete")
		return nil
	},
}
