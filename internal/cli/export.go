package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
)

type exportOptions struct {
	format     string
	categories []string
	actions    []string
	actor      string
	result     string
	text       string
	since      string
	until      string
	limit      int
	cold       bool
	out        string
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	eo := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit entries as json, csv or xml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := audit.ParseFormat(eo.format)
			if err != nil {
				return err
			}
			criteria, err := eo.criteria(time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop(ctx) }()

			data, err := app.Audit.Export(ctx, format, criteria)
			if err != nil {
				return err
			}
			if eo.out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(eo.out, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", eo.out, err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), eo.out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&eo.format, "format", "json", "output format (json|csv|xml)")
	f.StringSliceVar(&eo.categories, "category", nil, "audit categories to include, e.g. VALIDATION,SECURITY")
	f.StringSliceVar(&eo.actions, "action", nil, "actions to include")
	f.StringVar(&eo.actor, "actor", "", "actor id")
	f.StringVar(&eo.result, "result", "", "result, e.g. failed")
	f.StringVar(&eo.text, "text", "", "case-insensitive text in action or details")
	f.StringVar(&eo.since, "since", "", "RFC3339 time or a duration ago, e.g. 24h")
	f.StringVar(&eo.until, "until", "", "RFC3339 time or a duration ago")
	f.IntVar(&eo.limit, "limit", 0, "maximum entries (0 = all)")
	f.BoolVar(&eo.cold, "cold", true, "include rotated cold storage")
	f.StringVar(&eo.out, "out", "", "write to file instead of stdout")
	return cmd
}

func (eo *exportOptions) criteria(now time.Time) (audit.Criteria, error) {
	c := audit.Criteria{
		Actions:     eo.actions,
		ActorID:     eo.actor,
		Result:      eo.result,
		Text:        eo.text,
		Limit:       eo.limit,
		IncludeCold: eo.cold,
	}
	for _, cat := range eo.categories {
		c.Categories = append(c.Categories, domain.AuditCategory(strings.ToUpper(cat)))
	}

	var err error
	if c.Since, err = parseTime(eo.since, now); err != nil {
		return c, fmt.Errorf("invalid --since: %w", err)
	}
	if c.Until, err = parseTime(eo.until, now); err != nil {
		return c, fmt.Errorf("invalid --until: %w", err)
	}
	return c, nil
}

// parseTime accepts RFC3339 or a duration before now. Empty is the zero time.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", s)
	}
	return now.Add(-d), nil
}
