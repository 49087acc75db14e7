package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/output"
)

var (
	auditUsageUser     string
	auditUsageEndpoint string
	auditUsageWindow   string
	auditUsageOutput   string
)

var auditUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report a caller's trailing-window usage from the audit trail",
	Long: `Count how many requests were admitted for one caller and endpoint
within the trailing window, computed from the persisted audit log. This is a
reporting view over recorded decisions; live quota state is in memory and
exposed through the X-RateLimit response headers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(auditUsageOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		user := strings.TrimSpace(auditUsageUser)
		endpoint := strings.TrimSpace(auditUsageEndpoint)
		if user == "" || endpoint == "" {
			return errors.New("--user and --endpoint are required")
		}

		window, err := time.ParseDuration(strings.TrimSpace(auditUsageWindow))
		if err != nil {
			return fmt.Errorf("invalid --window value %q: %w", auditUsageWindow, err)
		}
		if window <= 0 {
			return errors.New("--window must be positive")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		since := time.Now().UTC().Add(-window)
		count, err := db.UsageSince(cmd.Context(), user, endpoint, since)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(map[string]any{
				"user_id":  user,
				"endpoint": endpoint,
				"window":   window.String(),
				"since":    since.Format(time.RFC3339),
				"admitted": count,
			}, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d admitted in the last %s\n",
			user, endpoint, count, window)
		return err
	},
}

func init() {
	auditUsageCmd.Flags().StringVar(&auditUsageUser, "user", "", "Caller user id")
	auditUsageCmd.Flags().StringVar(&auditUsageEndpoint, "endpoint", "", "Endpoint (exact match)")
	auditUsageCmd.Flags().StringVar(&auditUsageWindow, "window", "60s", "Trailing window to report over")
	auditUsageCmd.Flags().StringVar(&auditUsageOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
