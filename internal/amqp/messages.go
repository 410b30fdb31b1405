package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"v4v/internal/core"
)

// ReportUpdatedMessage announces that a fetch finished and the snapshot for
// Site changed. Consumers rebuild whatever they render from it.
type ReportUpdatedMessage struct {
	ID        string    `json:"id"`
	Site      string    `json:"site"`
	TotalSats int64     `json:"total_sats"`
	EssaySats int64     `json:"essay_sats"`
	Count     int       `json:"count"`
	NewCount  int       `json:"new_count"`
	Warning   string    `json:"warning,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReportUpdatedMessage creates a message with a fresh ID
func NewReportUpdatedMessage(site string, summary core.Summary, newCount int, warning string) *ReportUpdatedMessage {
	return &ReportUpdatedMessage{
		ID:        uuid.NewString(),
		Site:      site,
		TotalSats: summary.TotalSats,
		EssaySats: summary.EssaySats,
		Count:     summary.Count,
		NewCount:  newCount,
		Warning:   warning,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportUpdatedMessageFromJSON decodes a message body.
func ReportUpdatedMessageFromJSON(data []byte) (*ReportUpdatedMessage, error) {
	var msg ReportUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
