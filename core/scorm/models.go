package scorm

import (
	"time"

	"github.com/trezcool/masomo-scorm/core"
)

// Version is the SCORM dialect a package speaks.
type Version string

const (
	Version12   Version = "1.2"
	Version2004 Version = "2004"
)

func (v Version) IsValid() bool {
	return v == Version12 || v == Version2004
}

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further status transition may happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the session can still be resumed.
func (s Status) IsActive() bool {
	return s == StatusNotStarted || s == StatusInProgress
}

// Package is an uploaded SCORM content bundle.
// EntryPath and Version are empty until the manifest has been resolved.
type Package struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Version     Version   `json:"version,omitempty"`
	EntryPath   string    `json:"entry_path,omitempty"`
	ContentRoot string    `json:"content_root"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Launchable reports whether the package has a known entry point.
func (p Package) Launchable() bool {
	return p.EntryPath != "" && p.Version.IsValid()
}

// NewPackage contains information needed to register an uploaded Package.
type NewPackage struct {
	Title       string  `json:"title" validate:"required,notblank"`
	ContentRoot string  `json:"content_root" validate:"required,notblank,content_root"`
	Version     Version `json:"version" validate:"omitempty,scorm_version"`
}

// Learner identifies who a session belongs to.
type Learner struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Session is one learner's attempt at one package.
type Session struct {
	ID        string            `json:"id"`
	PackageID string            `json:"package_id"`
	UserID    string            `json:"user_id"`
	Attempt   int               `json:"attempt"`
	Status    Status            `json:"status"`
	Score     *float64          `json:"score"`
	TotalTime string            `json:"total_time"` // raw, as last reported by the content
	Data      map[string]string `json:"data"`
	StartedAt *time.Time        `json:"started_at"` // UTC
	EndedAt   *time.Time        `json:"ended_at"`   // UTC
	CreatedAt time.Time         `json:"created_at"` // UTC
	UpdatedAt time.Time         `json:"updated_at"` // UTC
}

// Clone returns a deep copy of the session, safe to hand to another goroutine.
func (s Session) Clone() Session {
	c := s
	c.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	if s.Score != nil {
		score := *s.Score
		c.Score = &score
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return c
}

// Interaction is one append-only record of a value the content wrote.
type Interaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Element   string    `json:"element"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"` // UTC
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	PackageID string
	UserID    string
	Status    []Status
	Ordering  []core.DBOrdering
}

// SessionOrderingFields are the fields sessions may be ordered by.
var SessionOrderingFields = []string{"attempt", "status", "score", "started_at", "ended_at", "created_at", "updated_at"}
