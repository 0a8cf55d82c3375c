package scorm

import "time"

// Notice levels
const (
	NoticeInfo    = "info" // a session is saved again after a failure
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is an out-of-band report about the persistence of a session.
// The content frame only ever sees "true"/"false" and error codes, so
// failures the learner or operators must know about travel as Notices.
type Notice struct {
	Level     string    `json:"level"`
	SessionID string    `json:"session_id,omitempty"`
	LaunchID  string    `json:"launch_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
	At        time.Time `json:"at"`
}

// Notifier delivers Notices. Implementations must not block the caller for long.
type Notifier interface {
	Notify(n Notice)
}

// NopNotifier drops every Notice.
type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}
