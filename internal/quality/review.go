package quality

import (
	"context"
	"log/slog"
	"time"
)

// Rejection kinds.
const (
	KindRepresentative = "representative"
	KindJurisdiction   = "jurisdiction"
)

// Rejection is what the correction workflow receives about a dropped record.
type Rejection struct {
	ID           string      `json:"id"`
	Kind         string      `json:"kind"`
	ZipCode      string      `json:"zip_code"`
	Level        string      `json:"level,omitempty"`
	RecordID     string      `json:"record_id,omitempty"`
	Observed     string      `json:"observed,omitempty"`
	Violations   []Violation `json:"violations"`
	RulesVersion string      `json:"rules_version"`
	RequestID    string      `json:"request_id,omitempty"`
	RejectedAt   time.Time   `json:"rejected_at"`
}

// ReviewPublisher hands rejections to the human correction queue.
type ReviewPublisher interface {
	Publish(ctx context.Context, rej Rejection) error
}

// LogPublisher only records rejections in the log. Used when no queue is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, rej Rejection) error {
	p.logger.InfoContext(ctx, "rejection queued for review",
		"rejection_id", rej.ID,
		"kind", rej.Kind,
		"record_id", rej.RecordID,
		"rules", len(rej.Violations),
	)
	return nil
}
