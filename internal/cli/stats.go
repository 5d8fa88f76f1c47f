package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the audit log by category and result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop(ctx) }()

			entries, err := app.Audit.Query(ctx, audit.Criteria{IncludeCold: true})
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), entries, app.Audit.Anchor())
			return nil
		},
	}
}

type statRow struct {
	category domain.AuditCategory
	result   string
}

func printStats(out io.Writer, entries []domain.AuditEntry, anchor audit.Anchor) {
	counts := make(map[statRow]int)
	for _, e := range entries {
		counts[statRow{e.Category, e.Result}]++
	}

	rows := make([]statRow, 0, len(counts))
	for r := range counts {
		rows = append(rows, r)
	}
	slices.SortFunc(rows, func(a, b statRow) int {
		if c := cmp.Compare(a.category, b.category); c != 0 {
			return c
		}
		return cmp.Compare(a.result, b.result)
	})

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CATEGORY\tRESULT\tCOUNT")
	for _, r := range rows {
		result := r.result
		if result == "" {
			result = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", r.category, result, counts[r])
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\ntotal entries: %d\n", len(entries))
	if anchor.Count > 0 {
		_, _ = fmt.Fprintf(out, "pruned entries: %d (chain anchored at %s)\n", anchor.Count, anchor.PreviousEntryID)
	}
}
