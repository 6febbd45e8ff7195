package notifier

import "time"

// Kind classifies a message.
type Kind string

const (
	KindVerdict Kind = "verdict"
	KindError   Kind = "error"
)

type Message struct {
	Kind Kind
	Text string
}

type Config struct {
	ChatID          int64
	RatePerSec      int
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

type HistoryItem struct {
	At    time.Time
	Kind  Kind
	Text  string
	Error string
}

// NotificationEvent is the Data of notifier.* bus events.
type NotificationEvent struct {
	Kind   Kind      `json:"kind"`
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key,omitempty"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
