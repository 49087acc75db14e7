package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/output"
)

var (
	auditPruneOlderThan string
	auditPruneYes       bool
	auditPruneDryRun    bool
	auditPruneOutput    string
)

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit records older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(auditPruneOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		olderThan := strings.TrimSpace(auditPruneOlderThan)
		if olderThan == "" {
			return errors.New("--older-than is required")
		}
		retention, err := time.ParseDuration(olderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", olderThan, err)
		}
		if retention <= 0 {
			return errors.New("--older-than must be positive")
		}

		if !auditPruneYes && !auditPruneDryRun {
			return errors.New("prune is destructive; pass --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().UTC().Add(-retention)

		if auditPruneDryRun {
			matched, err := db.CountOlderThan(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			return writeAuditPruneResult(format, cmd.OutOrStdout(), cutoff, int64(matched), true)
		}

		deleted, err := db.Prune(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		return writeAuditPruneResult(format, cmd.OutOrStdout(), cutoff, deleted, false)
	},
}

func writeAuditPruneResult(format output.Format, w io.Writer, cutoff time.Time, affected int64, dryRun bool) error {
	if format == output.FormatJSON {
		result := map[string]any{
			"cutoff":  cutoff.Format(time.RFC3339),
			"dry_run": dryRun,
		}
		if dryRun {
			result["matched"] = affected
		} else {
			result["deleted"] = affected
		}
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d audit record(s) older than %s\n", affected, cutoff.Format(time.RFC3339))
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d audit record(s) older than %s\n", affected, cutoff.Format(time.RFC3339))
	return err
}

func init() {
	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete records older than this duration (e.g. 168h)")
	auditPruneCmd.Flags().BoolVar(&auditPruneYes, "yes", false, "Confirm destructive prune")
	auditPruneCmd.Flags().BoolVar(&auditPruneDryRun, "dry-run", false, "Show what would be deleted")
	auditPruneCmd.Flags().StringVar(&auditPruneOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
