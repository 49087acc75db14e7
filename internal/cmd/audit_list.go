package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/core/store"
	"github.com/tollgate/tollgate/internal/output"
)

var (
	auditListOutput   string
	auditListOut      string
	auditListOutDir   string
	auditListAll      bool
	auditListUser     string
	auditListEndpoint string
	auditListSince    string
	auditListLimit    int
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded rate limit decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(auditListOutput)
		if err != nil {
			return err
		}

		query := store.AuditQuery{
			All:      auditListAll,
			UserID:   strings.TrimSpace(auditListUser),
			Endpoint: strings.TrimSpace(auditListEndpoint),
			Limit:    auditListLimit,
		}
		if since := strings.TrimSpace(auditListSince); since != "" {
			parsed, err := parseSince(since)
			if err != nil {
				return err
			}
			query.Since = parsed
		}
		if !query.All && query.UserID == "" && query.Endpoint == "" && query.Since.IsZero() {
			query.All = true
		}
		if err := query.Validate(); err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := db.List(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(auditListOut)
		outDir := strings.TrimSpace(auditListOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("audit.list.%s", outputExtension(format)))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.FormatAuditRecords(format, records)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

// parseSince accepts either an RFC3339 timestamp or a relative duration
// ("24h", "30m") interpreted backwards from now.
func parseSince(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q: expected RFC3339 timestamp or duration", value)
}

func init() {
	auditListCmd.Flags().StringVar(&auditListOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	auditListCmd.Flags().StringVar(&auditListOut, "out", "", "Write output to a file (default stdout)")
	auditListCmd.Flags().StringVar(&auditListOutDir, "out-dir", "", "Write output to a directory")
	auditListCmd.Flags().BoolVar(&auditListAll, "all", false, "List all recorded decisions")
	auditListCmd.Flags().StringVar(&auditListUser, "user", "", "Filter by user id")
	auditListCmd.Flags().StringVar(&auditListEndpoint, "endpoint", "", "Filter by endpoint (exact match)")
	auditListCmd.Flags().StringVar(&auditListSince, "since", "", "Only decisions after this RFC3339 timestamp or within this duration (e.g. 24h)")
	auditListCmd.Flags().IntVar(&auditListLimit, "limit", 100, "Maximum rows returned")
}
