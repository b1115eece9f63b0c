package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Level represents alert severity
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert represents an operator-facing notification
type Alert struct {
	ID        string                 `json:"id"`
	Level     Level                  `json:"level"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// New creates an alert with an assigned ID and timestamp
func New(level Level, source, title, message string) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// Notifier delivers alerts to the operator. Delivery is best-effort; callers
// never block their decision path on it.
type Notifier interface {
	Notify(ctx context.Context, alert *Alert)
}

// NopNotifier discards alerts. Used in tests and when alerting is not
// configured.
type NopNotifier struct{}

// Notify discards the alert
func (NopNotifier) Notify(ctx context.Context, alert *Alert) {}
