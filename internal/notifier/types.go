package notifier

import "time"

// Config controls notification delivery.
type Config struct {
	Enabled       bool
	ChatID        int64
	ThreadID      int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// Timeout bounds one Notify or Amend call, retries included.
	Timeout     time.Duration
	ParseMode   string
	HistorySize int
}

type HistoryItem struct {
	At     time.Time
	ID     string
	Text   string
	Edited bool
}

// NotificationEvent is emitted on the event bus for delivery lifecycle events.
type NotificationEvent struct {
	ID       string    `json:"id,omitempty"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
