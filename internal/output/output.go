// Package output renders audit records for the CLI in table, JSON, and
// markdown form.
package output

import (
	"fmt"
	"strings"

	"github.com/tollgate/tollgate/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// FormatAuditRecords renders audit records in the requested format.
func FormatAuditRecords(format Format, records []core.AuditRecord) (string, error) {
	switch format {
	case FormatJSON:
		return formatAuditJSON(records)
	case FormatMarkdown:
		return formatAuditTable(records, true), nil
	default:
		return formatAuditTable(records, false), nil
	}
}
