package ops

import "github.com/hpungsan/gather/internal/ledger"

// AuditOutput contains the result of the AuditList operation.
type AuditOutput struct {
	Entries []ledger.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
}

// AuditList returns the most recent run entries, newest first.
func AuditList(audit *ledger.Audit, limit int) (*AuditOutput, error) {
	limit = clampLimit(limit, DefaultAuditLimit, MaxAuditLimit)
	entries, err := audit.List(limit)
	if err != nil {
		return nil, err
	}
	return &AuditOutput{Entries: entries, Limit: limit}, nil
}
