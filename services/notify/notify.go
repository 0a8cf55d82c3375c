// Package notify delivers session notices to the logs, to operators and to the learner's launch page.
package notify

import (
	"fmt"
	"net/mail"
	"sync"
	texttmpl "text/template"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

const defaultInboxSize = 20

// LogNotifier records notices with the application logger.
type LogNotifier struct {
	logger core.Logger
}

var _ scorm.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger core.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(notice scorm.Notice) {
	msg := fmt.Sprintf("session %s: %s", notice.SessionID, notice.Message)
	args := []interface{}{map[string]interface{}{"session_id": notice.SessionID, "launch_id": notice.LaunchID}}
	if notice.Err != nil {
		args = append(args, notice.Err)
	}
	if notice.UserID != "" {
		args = append(args, scorm.Learner{ID: notice.UserID})
	}

	switch notice.Level {
	case scorm.NoticeError:
		n.logger.Error(msg, args...)
	case scorm.NoticeInfo:
		n.logger.Info(msg, args...)
	default:
		n.logger.Warn(msg, args...)
	}
}

var operatorTmpl = texttmpl.Must(texttmpl.New("operator").Parse(
	`A learning session could not be saved.

Session:  {{.SessionID}}
Launch:   {{.LaunchID}}
Learner:  {{.UserID}}
At:       {{.At.Format "2006-01-02 15:04:05 MST"}}
Message:  {{.Message}}
{{if .Err}}Error:    {{.Err}}
{{end}}`))

// MailNotifier emails operators about error notices. Warnings are not mailed.
// A session is mailed about once per failure streak: the same error is mailed again only
// after an info notice reported the session saved.
type MailNotifier struct {
	mailer    core.EmailService
	operators []mail.Address

	mu      sync.Mutex
	failing map[string]map[string]struct{} // session id -> messages already mailed
}

var _ scorm.Notifier = (*MailNotifier)(nil)

func NewMailNotifier(mailer core.EmailService, conf *core.Config) *MailNotifier {
	return &MailNotifier{
		mailer:    mailer,
		operators: conf.OperatorEmails,
		failing:   make(map[string]map[string]struct{}),
	}
}

func (n *MailNotifier) Notify(notice scorm.Notice) {
	if len(n.operators) == 0 || !n.firstOfStreak(notice) {
		return
	}
	n.mailer.SendMessages(&core.EmailMessage{
		To:           n.operators,
		Subject:      "Session " + notice.SessionID + " could not be saved",
		TextTemplate: operatorTmpl,
		TemplateData: notice,
		Categories:   []string{"scorm-alert"},
		Tags: map[string]string{
			"session_id": notice.SessionID,
			"launch_id":  notice.LaunchID,
			"user_id":    notice.UserID,
		},
	})
}

// firstOfStreak reports whether an error notice opens a new failure streak, and closes
// the streaks of a session on info notices.
func (n *MailNotifier) firstOfStreak(notice scorm.Notice) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch notice.Level {
	case scorm.NoticeInfo:
		delete(n.failing, notice.SessionID)
		return false
	case scorm.NoticeError:
		mailed, ok := n.failing[notice.SessionID]
		if !ok {
			mailed = make(map[string]struct{})
			n.failing[notice.SessionID] = mailed
		}
		if _, ok = mailed[notice.Message]; ok {
			return false
		}
		mailed[notice.Message] = struct{}{}
		return true
	}
	return false
}

// Inbox keeps the latest notices of each session until the launch page collects them.
type Inbox struct {
	size int

	mu      sync.Mutex
	notices map[string][]scorm.Notice
}

var _ scorm.Notifier = (*Inbox)(nil)

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Inbox{size: size, notices: make(map[string][]scorm.Notice)}
}

func (in *Inbox) Notify(notice scorm.Notice) {
	if notice.SessionID == "" {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	queue := append(in.notices[notice.SessionID], notice)
	if len(queue) > in.size {
		queue = queue[len(queue)-in.size:]
	}
	in.notices[notice.SessionID] = queue
}

// Drain returns and forgets the pending notices of a session, oldest first.
func (in *Inbox) Drain(sessionID string) []scorm.Notice {
	in.mu.Lock()
	defer in.mu.Unlock()

	queue := in.notices[sessionID]
	delete(in.notices, sessionID)
	if queue == nil {
		return []scorm.Notice{}
	}
	return queue
}

// Multi fans notices out to several notifiers.
type Multi []scorm.Notifier

var _ scorm.Notifier = Multi(nil)

func (m Multi) Notify(notice scorm.Notice) {
	for _, n := range m {
		n.Notify(notice)
	}
}
