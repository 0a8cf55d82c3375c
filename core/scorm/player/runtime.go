package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

type (
	// Committer persists a session mirror.
	Committer interface {
		Commit(ctx context.Context, sess scorm.Session) (scorm.Session, error)
	}

	// InteractionAppender records written elements.
	InteractionAppender interface {
		Append(in scorm.Interaction) scorm.Interaction
		Flush(ctx context.Context) error
	}
)

// Runtime is the server half of the SCORM API of one launch.
// It owns the in-memory mirror of the session: reads and writes are answered from the
// mirror, which is persisted on Commit, Terminate, Release and autosave.
type Runtime struct {
	launch        Launch
	committer     Committer
	interactions  InteractionAppender
	notifier      scorm.Notifier
	metrics       scorm.Metrics
	commitTimeout time.Duration
	now           func() time.Time
	onTeardown    func(launchID string)

	mu          sync.Mutex
	sess        scorm.Session
	entry       string
	dirty       bool
	initialized bool
	terminated  bool
	lastStatus  *string // raw value of the last status element written
	lastErr     ErrorCode
	diagnostic  string
	lastCall    time.Time
	failing     bool // the last commit failed
}

func newRuntime(launch Launch, sess scorm.Session, p *Player) *Runtime {
	entry := entryAbInitio
	if len(sess.Data) > 0 {
		entry = entryResume
	}
	return &Runtime{
		launch:        launch,
		committer:     p.svc,
		interactions:  p.interactions,
		notifier:      p.notifier,
		metrics:       p.metrics,
		commitTimeout: p.opts.CommitTimeout,
		now:           p.now,
		onTeardown:    p.forget,
		sess:          sess.Clone(),
		entry:         entry,
		lastCall:      p.now(),
	}
}

func (rt *Runtime) Launch() Launch { return rt.launch }

// Session returns a copy of the mirror.
func (rt *Runtime) Session() scorm.Session {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.sess.Clone()
}

// IdleSince returns how long the content frame has made no call.
func (rt *Runtime) IdleSince(now time.Time) time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return now.Sub(rt.lastCall)
}

// Dirty reports whether the mirror holds changes not yet persisted.
func (rt *Runtime) Dirty() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.dirty
}

// Call dispatches a dialect function and returns its result along with the error code it left.
// Unknown functions answer "false" with NotImplemented.
func (rt *Runtime) Call(ctx context.Context, function string, args ...string) (string, ErrorCode) {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	var res string
	op, ok := Lookup(rt.launch.Version, function)
	switch {
	case !ok:
		rt.mu.Lock()
		rt.setError(NotImplemented, fmt.Sprintf("%s is not a SCORM %s function", function, rt.launch.Version))
		rt.mu.Unlock()
		res = "false"
	case op == OpInitialize:
		res = rt.Initialize(arg(0))
	case op == OpTerminate:
		res = rt.Terminate(ctx, arg(0))
	case op == OpGetValue:
		res = rt.GetValue(arg(0))
	case op == OpSetValue:
		res = rt.SetValue(arg(0), arg(1))
	case op == OpCommit:
		res = rt.Commit(ctx, arg(0))
	case op == OpGetLastError:
		res = rt.GetLastError()
	case op == OpGetErrorString:
		res = rt.GetErrorString(arg(0))
	case op == OpGetDiagnostic:
		res = rt.GetDiagnostic(arg(0))
	}

	rt.mu.Lock()
	code := rt.lastErr
	rt.lastCall = rt.now()
	rt.mu.Unlock()
	rt.metrics.ObserveCall(rt.launch.Version, function, int(code))
	return res, code
}

// setError must be called with mu held.
func (rt *Runtime) setError(code ErrorCode, diagnostic string) {
	rt.lastErr = code
	rt.diagnostic = diagnostic
}

func (rt *Runtime) Initialize(_ string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.terminated {
		rt.setError(GeneralException, "the launch has been terminated")
		return "false"
	}
	rt.initialized = true
	rt.setError(NoError, "")
	return "true"
}

// Terminate re-applies the last reported status, persists the mirror and tears the launch down.
func (rt *Runtime) Terminate(ctx context.Context, _ string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.terminated {
		rt.setError(GeneralException, "the launch has been terminated")
		return "false"
	}
	if rt.lastStatus != nil && rt.sess.RecordStatus(*rt.lastStatus, rt.now()) {
		rt.dirty = true
	}
	rt.terminated = true

	err := rt.commitLocked(ctx)
	rt.setError(NoError, "")
	if err != nil {
		// kept registered so autosave retries, torn down once persisted
		rt.diagnostic = err.Error()
		return "true"
	}
	rt.onTeardown(rt.launch.ID)
	return "true"
}

func (rt *Runtime) GetValue(element string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.terminated {
		rt.setError(GeneralException, "the launch has been terminated")
		return ""
	}
	if element == "" {
		rt.setError(InvalidArgument, "element name required")
		return ""
	}
	rt.setError(NoError, rt.earlyCall())

	if v, ok := rt.sess.Value(element); ok {
		return v
	}
	v, _ := defaultValue(rt.launch.Version, element, rt.launch.Learner, rt.entry, rt.sess.Status)
	return v
}

// SetValue records the value, appends it to the interaction log and applies the element's side effect.
// Writes before Initialize and writes of unknown elements are accepted.
func (rt *Runtime) SetValue(element, value string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.terminated {
		rt.setError(GeneralException, "the launch has been terminated")
		return "false"
	}
	if element == "" {
		rt.setError(InvalidArgument, "element name required")
		return "false"
	}

	now := rt.now()
	rt.sess.WriteElement(element, value)
	rt.interactions.Append(scorm.Interaction{
		SessionID: rt.sess.ID,
		Element:   element,
		Value:     value,
		Timestamp: now,
	})
	if handle, ok := elementHandlers[element]; ok {
		handle(&rt.sess, value, now)
	}
	if isStatusElement(element) {
		v := value
		rt.lastStatus = &v
	}
	rt.dirty = true
	rt.setError(NoError, rt.earlyCall())
	return "true"
}

// earlyCall returns the diagnostic of a call tolerated before Initialize. mu must be held.
func (rt *Runtime) earlyCall() string {
	if rt.initialized {
		return ""
	}
	return "called before Initialize"
}

// Commit persists the mirror before answering. A failed commit still answers "true": the mirror
// stays dirty for the next commit or autosave and the failure is reported out of band.
func (rt *Runtime) Commit(ctx context.Context, _ string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.terminated {
		rt.setError(GeneralException, "the launch has been terminated")
		return "false"
	}
	err := rt.commitLocked(ctx)
	rt.setError(NoError, "")
	if err != nil {
		rt.diagnostic = err.Error()
	}
	return "true"
}

func (rt *Runtime) GetLastError() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastErr.String()
}

func (rt *Runtime) GetErrorString(code string) string {
	return ErrorString(code)
}

// GetDiagnostic describes the last error. Any other code gets its error string.
func (rt *Runtime) GetDiagnostic(code string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if code == "" || code == rt.lastErr.String() {
		if rt.diagnostic != "" {
			return rt.diagnostic
		}
		return errorStrings[rt.lastErr]
	}
	return ErrorString(code)
}

// Autosave persists the mirror when it holds unsaved changes.
// A terminated launch whose final commit failed is torn down once it is persisted.
func (rt *Runtime) Autosave(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.dirty {
		return nil
	}
	if err := rt.commitLocked(ctx); err != nil {
		return err
	}
	if rt.terminated {
		rt.onTeardown(rt.launch.ID)
	}
	return nil
}

// Release persists the mirror of a frame that went away without terminating.
// The session stays resumable. Further calls fail.
func (rt *Runtime) Release(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.terminated {
		return nil
	}
	rt.terminated = true

	if err := rt.commitLocked(ctx); err != nil {
		return err
	}
	rt.onTeardown(rt.launch.ID)
	return nil
}

// commitLocked flushes the interaction log and persists the mirror. mu must be held.
func (rt *Runtime) commitLocked(ctx context.Context) error {
	if rt.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.commitTimeout)
		defer cancel()
	}

	// interaction failures are reported by the log itself and do not hold back the session
	_ = rt.interactions.Flush(ctx)

	saved, err := rt.committer.Commit(ctx, rt.sess.Clone())
	if err != nil {
		// retried by the next commit or autosave
		rt.dirty = true
		rt.failing = true
		rt.notifier.Notify(scorm.Notice{
			Level:     scorm.NoticeError,
			SessionID: rt.sess.ID,
			LaunchID:  rt.launch.ID,
			UserID:    rt.launch.Learner.ID,
			Message:   "your progress could not be saved, it will be retried",
			Err:       err,
			At:        rt.now(),
		})
		return errors.Wrap(err, "committing runtime "+rt.launch.ID)
	}

	// a terminal status persisted by another launch of the same session wins
	rt.sess.Status = saved.Status
	rt.sess.StartedAt = saved.StartedAt
	rt.sess.EndedAt = saved.EndedAt
	rt.sess.UpdatedAt = saved.UpdatedAt
	rt.dirty = false

	if rt.failing {
		rt.failing = false
		rt.notifier.Notify(scorm.Notice{
			Level:     scorm.NoticeInfo,
			SessionID: rt.sess.ID,
			LaunchID:  rt.launch.ID,
			UserID:    rt.launch.Learner.ID,
			Message:   "your progress has been saved",
			At:        rt.now(),
		})
	}
	return nil
}
