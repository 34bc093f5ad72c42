package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/question-sync/internal/syncer"
)

// Default id range covered by a scrape.
const (
	defaultStartID = 49
	defaultEndID   = 300
)

func newScrapeCmd() *cobra.Command {
	var start, end int

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch question pages by id, store them and mirror them into Notion",
		Long: `Visits {source.base_url}/{id} for every id from --start to --end inclusive,
in ascending order. Pages without a question title are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Config().RequireSource(); err != nil {
				return err
			}

			stopOps := appInstance.StartOps(cmd.Context())
			defer stopOps()

			fetcher, err := appInstance.NewFetcher()
			if err != nil {
				return err
			}
			report, err := appInstance.Orchestrator(fetcher).RunLive(cmd.Context(), start, end)
			printReport(cmd.OutOrStdout(), report)
			if errors.Is(err, context.Canceled) {
				appInstance.Logger().Info("scrape interrupted", zap.Int("processed", report.Processed))
				return nil
			}
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", defaultStartID, "first question id")
	cmd.Flags().IntVar(&end, "end", defaultEndID, "last question id (inclusive)")
	return cmd
}

func printReport(w io.Writer, r syncer.Report) {
	if r.RunID == "" {
		return
	}
	_, _ = fmt.Fprintf(w,
		"run %s (%s): processed=%d not_found=%d fetch_failed=%d extract_failed=%d stored=%d store_failed=%d published=%d publish_failed=%d publish_skipped=%d\n",
		r.RunID, r.Mode, r.Processed, r.NotFound, r.FetchFailed, r.ExtractFailed,
		r.Stored, r.StoreFailed, r.Published, r.PublishFailed, r.PublishSkipped,
	)
}
