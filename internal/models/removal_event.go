package models

import "time"

// RemovalEvent records one finished removal request for downstream consumers.
type RemovalEvent struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	ClientIP     string    `json:"client_ip"`
	OriginalName string    `json:"original_name,omitempty"`
	MimeType     string    `json:"mime_type"`
	InputBytes   int64     `json:"input_bytes"`
	OutputBytes  int64     `json:"output_bytes"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
