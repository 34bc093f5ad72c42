package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the database and question table if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			// Database and table are created while the app starts; this re-checks and reports.
			store := appInstance.Store()
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			count, err := store.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			db := appInstance.Config().DB
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema ready: driver=%s table=%s records=%d\n", db.Driver, db.Table, count)
			return nil
		},
	}
}
