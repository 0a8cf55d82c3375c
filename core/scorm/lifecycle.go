package scorm

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// statusTransitions maps the status vocabulary reported by content to the target Session status.
// Values absent from the table (incomplete, browsed, not attempted, unknown, ...) cause no transition.
var statusTransitions = map[string]Status{
	"completed": StatusCompleted,
	"passed":    StatusCompleted,
	"failed":    StatusFailed,
}

// MapReportedStatus returns the Session status a reported lesson/completion/success status leads to.
// Matching is exact: the SCORM vocabulary is lower case and "Completed" is not "completed".
func MapReportedStatus(raw string) (Status, bool) {
	status, ok := statusTransitions[raw]
	return status, ok
}

// Begin moves a not yet started session to in_progress.
// It reports whether the session changed.
func (s *Session) Begin(now time.Time) bool {
	if s.Status != StatusNotStarted {
		return false
	}
	s.Status = StatusInProgress
	if s.StartedAt == nil {
		t := now.UTC()
		s.StartedAt = &t
	}
	return true
}

// RecordStatus applies a content-reported status.
// Terminal sessions are never changed. A not yet started session is begun first.
// It reports whether the session changed.
func (s *Session) RecordStatus(raw string, now time.Time) bool {
	if s.Status.IsTerminal() {
		return false
	}
	changed := s.Begin(now)

	target, ok := MapReportedStatus(raw)
	if !ok {
		return changed
	}
	s.Status = target
	if s.EndedAt == nil {
		t := now.UTC()
		s.EndedAt = &t
	}
	return true
}

// RecordScore parses and stores a reported raw score.
// Values that are not finite numbers are discarded and the previous score kept.
// Out-of-range values are stored as reported.
func (s *Session) RecordScore(raw string) bool {
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return false
	}
	s.Score = &score
	return true
}

// RecordTime stores the reported session time verbatim.
func (s *Session) RecordTime(raw string) bool {
	s.TotalTime = raw
	return true
}

// WriteElement upserts a data element.
func (s *Session) WriteElement(element, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[element] = value
}

// Value returns the last value written for element.
func (s *Session) Value(element string) (string, bool) {
	v, ok := s.Data[element]
	return v, ok
}
