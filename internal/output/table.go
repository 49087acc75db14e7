package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tollgate/tollgate/internal/core"
)

func formatAuditTable(records []core.AuditRecord, markdown bool) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"User", "Endpoint", "Tier", "Outcome", "Requested At"})

	denied := 0
	for _, record := range records {
		if record.Outcome == core.OutcomeDenied {
			denied++
		}
		t.AppendRow(table.Row{
			record.UserID,
			record.Endpoint,
			string(record.Tier),
			string(record.Outcome),
			record.RequestedAt.UTC().Format(time.RFC3339),
		})
	}

	if len(records) > 0 {
		t.AppendFooter(table.Row{
			"",
			"",
			"",
			fmt.Sprintf("%d denied", denied),
			fmt.Sprintf("%d total", len(records)),
		})
	}

	if markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}
