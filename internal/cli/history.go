package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bdougie/handscan/internal/explainer"
	"github.com/bdougie/handscan/internal/models"
)

var errNeedsDatabase = errors.New("similar results need a database journal (journal.database_url)")

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		similar string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent capture attempts from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			journal, searcher, err := openJournal(ctx, a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer journal.Close()

			records, err := journal.Recent(ctx, limit)
			if err != nil {
				return err
			}

			if similar == "" {
				printHistory(cmd.OutOrStdout(), records)
				return nil
			}

			if searcher == nil {
				return errNeedsDatabase
			}
			var target *models.ScanResult
			for _, rec := range records {
				if rec.ScanID == similar && rec.Classification != nil {
					target = rec.Classification
					break
				}
			}
			if target == nil {
				return fmt.Errorf("no classified capture for scan %s in the last %d records", similar, limit)
			}
			hits, err := searcher.SimilarResults(ctx, *target, 5)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCAN\tAGE\tGENDER\tSIMILARITY")
			for _, h := range hits {
				if h.ScanID == similar {
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%.3f\n", h.ScanID, h.Result.ClassifiedAge,
					explainer.GenderLabel(h.Result.ClassifiedGender), h.Similarity)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of records to show")
	cmd.Flags().StringVar(&similar, "similar", "", "Show earlier scans with a result similar to this scan")

	return cmd
}

func printHistory(out io.Writer, records []models.CaptureRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No captures recorded yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENDED\tSCAN\tOUTCOME\tFRAMES\tDETAIL")
	for _, rec := range records {
		detail := rec.Reason
		if rec.Classification != nil {
			detail = fmt.Sprintf("age %d, %s", rec.Classification.ClassifiedAge,
				explainer.GenderLabel(rec.Classification.ClassifiedGender))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.EndedAt.Local().Format("2006-01-02 15:04"), rec.ScanID, rec.Outcome, rec.FramesSent, detail)
	}
	w.Flush()
}
