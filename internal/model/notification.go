package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies a notification event. CRITICAL and COMPLIANCE events
// are additionally persisted to durable storage.
type Severity string

const (
	SeverityInfo       Severity = "INFO"
	SeverityWarning    Severity = "WARNING"
	SeverityNormal     Severity = "NORMAL"
	SeverityCritical   Severity = "CRITICAL"
	SeverityCompliance Severity = "COMPLIANCE"
)

// Durable reports whether events of this severity must be persisted.
func (s Severity) Durable() bool {
	return s == SeverityCritical || s == SeverityCompliance
}

// NotificationEvent is fanned out to the transient channel on every publish
// and selectively persisted.
type NotificationEvent struct {
	EventID   uuid.UUID         `json:"event_id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Severity  Severity          `json:"severity"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewNotification builds an event with a fresh ID and timestamp.
func NewNotification(userID, eventType string, severity Severity, payload map[string]string) NotificationEvent {
	return NotificationEvent{
		EventID:   uuid.New(),
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
