package output

import (
	"encoding/json"
	"time"

	"github.com/tollgate/tollgate/internal/core"
)

type auditRecordJSON struct {
	UserID      string `json:"user_id"`
	Endpoint    string `json:"endpoint"`
	Tier        string `json:"tier"`
	Outcome     string `json:"outcome"`
	RequestedAt string `json:"requested_at"`
}

func formatAuditJSON(records []core.AuditRecord) (string, error) {
	payload := make([]auditRecordJSON, 0, len(records))
	for _, record := range records {
		payload = append(payload, auditRecordJSON{
			UserID:      record.UserID,
			Endpoint:    record.Endpoint,
			Tier:        string(record.Tier),
			Outcome:     string(record.Outcome),
			RequestedAt: record.RequestedAt.UTC().Format(time.RFC3339),
		})
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
