package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mirror every stored question into Notion",
		Long: `Reads all stored records ordered by question id and creates one Notion page per
record. Pages are not deduplicated; running sync twice creates each page twice.
Without notion.token and notion.database_id every record is counted as skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			stopOps := appInstance.StartOps(cmd.Context())
			defer stopOps()

			report, err := appInstance.Orchestrator(nil).RunBatch(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return nil
		},
	}
}
