package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrRejected is returned when the submitted value fails validation.
var ErrRejected = errors.New("parameter rejected")

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <parameter> <json-value>",
		Short: "Validate a parameter value and route a rejection through the error handler",
		Example: `  faultline validate confidenceLevel 0.95
  faultline validate correlationMatrix '[[1,0.2],[0.2,1]]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				// Bare words are strings.
				value = args[1]
			}

			ctx := cmd.Context()
			app, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop(ctx) }()

			res, out := app.Submit(ctx, args[0], value)
			w := cmd.OutOrStdout()
			if out == nil {
				normalised, _ := json.Marshal(res.Value)
				_, _ = fmt.Fprintf(w, "✓ %s = %s\n", args[0], normalised)
				return nil
			}

			_, _ = fmt.Fprintf(w, "✗ %s rejected\n", args[0])
			_, _ = fmt.Fprintf(w, "  category: %s  severity: %s  error: %s\n", out.Category, out.Severity, out.ErrorID)
			if out.Notification != nil {
				_, _ = fmt.Fprintf(w, "  [%s] %s\n", out.Notification.Level, out.Notification.Message)
			}
			if out.AuditEntryID != "" {
				_, _ = fmt.Fprintf(w, "  audit entry: %s\n", out.AuditEntryID)
			}
			return ErrRejected
		},
	}
}
