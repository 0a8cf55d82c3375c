package player

import (
	"time"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

// elementHandler applies the session side effect of writing an element.
type elementHandler func(sess *scorm.Session, value string, now time.Time) bool

func recordStatus(sess *scorm.Session, value string, now time.Time) bool {
	return sess.RecordStatus(value, now)
}

func recordScore(sess *scorm.Session, value string, _ time.Time) bool {
	return sess.RecordScore(value)
}

func recordTime(sess *scorm.Session, value string, _ time.Time) bool {
	return sess.RecordTime(value)
}

// elementHandlers lists the elements of both dialects that have a side effect on the session.
// Every other element is only stored.
var elementHandlers = map[string]elementHandler{
	"cmi.core.lesson_status": recordStatus,
	"cmi.completion_status":  recordStatus,
	"cmi.success_status":     recordStatus,
	"cmi.core.score.raw":     recordScore,
	"cmi.score.raw":          recordScore,
	"cmi.core.session_time":  recordTime,
	"cmi.session_time":       recordTime,
}

func isStatusElement(element string) bool {
	switch element {
	case "cmi.core.lesson_status", "cmi.completion_status", "cmi.success_status":
		return true
	}
	return false
}

// Entry modes
const (
	entryAbInitio = "ab-initio"
	entryResume   = "resume"
)

// defaultValue answers reads of elements the content never wrote.
func defaultValue(version scorm.Version, element string, learner scorm.Learner, entry string, status scorm.Status) (string, bool) {
	switch version {
	case scorm.Version12:
		switch element {
		case "cmi.core.student_id":
			return learner.ID, true
		case "cmi.core.student_name":
			return learner.Name, true
		case "cmi.core.entry":
			return entry, true
		case "cmi.core.credit":
			return "credit", true
		case "cmi.core.lesson_mode":
			return "normal", true
		case "cmi.core.lesson_status":
			return lessonStatus(status), true
		}
	case scorm.Version2004:
		switch element {
		case "cmi._version":
			return "1.0", true
		case "cmi.learner_id":
			return learner.ID, true
		case "cmi.learner_name":
			return learner.Name, true
		case "cmi.entry":
			return entry, true
		case "cmi.credit":
			return "credit", true
		case "cmi.mode":
			return "normal", true
		case "cmi.completion_status":
			return completionStatus(status), true
		case "cmi.success_status":
			if status == scorm.StatusFailed {
				return "failed", true
			}
			return "unknown", true
		}
	}
	return "", false
}

func lessonStatus(status scorm.Status) string {
	switch status {
	case scorm.StatusInProgress:
		return "incomplete"
	case scorm.StatusCompleted:
		return "completed"
	case scorm.StatusFailed:
		return "failed"
	}
	return "not attempted"
}

func completionStatus(status scorm.Status) string {
	switch status {
	case scorm.StatusInProgress:
		return "incomplete"
	case scorm.StatusCompleted, scorm.StatusFailed:
		return "completed"
	}
	return "not attempted"
}
