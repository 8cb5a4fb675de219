package notify

import (
	"time"
)

// Event is the build lifecycle notification handed to the delivery channel.
// Push fan-out to devices happens outside this service.
type Event struct {
	BuildID     string    `json:"build_id"`
	AppID       string    `json:"app_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	DownloadURL *string   `json:"download_url,omitempty"`
	Error       *string   `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier publishes build completion and failure events. Publishing is
// best-effort: callers log failures and move on, the build outcome is
// already durable in the record store.
type Notifier interface {
	Publish(event Event) error
	Close() error
}
