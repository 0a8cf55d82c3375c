package player

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

type (
	// SessionService is what the player needs from the session service.
	SessionService interface {
		Committer
		GetPackage(ctx context.Context, id string) (scorm.Package, error)
		ResolveSession(ctx context.Context, packageID, userID string) (scorm.Session, error)
		BeginAttempt(ctx context.Context, sessionID string) (scorm.Session, error)
		SessionByID(ctx context.Context, id string) (scorm.Session, error)
	}

	Options struct {
		ProxyPrefix   string
		CommitTimeout time.Duration
		IdleTimeout   time.Duration // runtimes without calls for this long are released by autosave
	}

	// Player launches packages and keeps the runtimes of the launches served by this process.
	Player struct {
		svc          SessionService
		interactions InteractionAppender
		store        LaunchStore
		notifier     scorm.Notifier
		metrics      scorm.Metrics
		logger       core.Logger
		opts         Options
		now          func() time.Time

		mu       sync.RWMutex
		runtimes map[string]*Runtime
	}
)

func New(
	svc SessionService,
	interactions InteractionAppender,
	store LaunchStore,
	notifier scorm.Notifier,
	metrics scorm.Metrics,
	logger core.Logger,
	opts Options,
) *Player {
	if store == nil {
		store = NewMemoryLaunchStore()
	}
	if notifier == nil {
		notifier = scorm.NopNotifier{}
	}
	if metrics == nil {
		metrics = scorm.NopMetrics{}
	}
	return &Player{
		svc:          svc,
		interactions: interactions,
		store:        store,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		opts:         opts,
		now:          func() time.Time { return time.Now().UTC() },
		runtimes:     make(map[string]*Runtime),
	}
}

// EntryURL is where the content frame loads the package entry point from.
func (p *Player) EntryURL(pkg scorm.Package) string {
	return path.Join(p.opts.ProxyPrefix, pkg.ID) + "/" + pkg.EntryPath
}

// Launch starts or resumes the learner's session on a package and opens a runtime for it.
func (p *Player) Launch(ctx context.Context, packageID string, learner scorm.Learner) (Launch, error) {
	pkg, err := p.svc.GetPackage(ctx, packageID)
	if err != nil {
		return Launch{}, err
	}
	if !pkg.Launchable() {
		return Launch{}, scorm.ErrNotLaunchable
	}

	sess, err := p.svc.ResolveSession(ctx, pkg.ID, learner.ID)
	if err != nil {
		return Launch{}, errors.Wrap(err, "resolving session")
	}
	sess, err = p.svc.BeginAttempt(ctx, sess.ID)
	if err != nil {
		return Launch{}, errors.Wrap(err, "beginning attempt")
	}

	l := Launch{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		PackageID: pkg.ID,
		Learner:   learner,
		Version:   pkg.Version,
		EntryURL:  p.EntryURL(pkg),
		CreatedAt: p.now(),
	}
	if err = p.store.Save(ctx, l); err != nil {
		return Launch{}, errors.Wrap(err, "saving launch")
	}
	p.register(newRuntime(l, sess, p))
	return l, nil
}

// Runtime returns the runtime of a launch, rebuilding it from the launch store and the
// persisted session when the launch was opened by another process.
func (p *Player) Runtime(ctx context.Context, launchID string) (*Runtime, error) {
	p.mu.RLock()
	rt, ok := p.runtimes[launchID]
	p.mu.RUnlock()
	if ok {
		return rt, nil
	}

	l, err := p.store.Get(ctx, launchID)
	if err != nil {
		if errors.Cause(err) == ErrLaunchNotFound {
			return nil, ErrLaunchNotFound
		}
		return nil, errors.Wrap(err, "getting launch")
	}
	sess, err := p.svc.SessionByID(ctx, l.SessionID)
	if err != nil {
		if errors.Cause(err) == scorm.ErrSessionNotFound {
			return nil, ErrLaunchNotFound
		}
		return nil, errors.Wrap(err, "getting launch session")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if rt, ok = p.runtimes[launchID]; ok {
		return rt, nil
	}
	rt = newRuntime(l, sess, p)
	p.runtimes[launchID] = rt
	p.metrics.SetActiveLaunches(len(p.runtimes))
	return rt, nil
}

// Call runs one SCORM call of the content frame of a launch.
func (p *Player) Call(ctx context.Context, launchID, function string, args ...string) (string, ErrorCode, error) {
	rt, err := p.Runtime(ctx, launchID)
	if err != nil {
		return "", NoError, err
	}
	res, code := rt.Call(ctx, function, args...)
	return res, code, nil
}

// Release handles a frame that went away without terminating.
func (p *Player) Release(ctx context.Context, launchID string) error {
	rt, err := p.Runtime(ctx, launchID)
	if err != nil {
		return err
	}
	return rt.Release(ctx)
}

// Autosave persists every runtime holding unsaved changes and releases the runtimes of frames
// that stopped calling. It returns the number of runtimes saved.
func (p *Player) Autosave(ctx context.Context) (int, error) {
	var (
		saved int
		errs  []string
		now   = p.now()
	)
	for _, rt := range p.snapshot() {
		if rt.Dirty() {
			if err := rt.Autosave(ctx); err != nil {
				errs = append(errs, err.Error())
				continue
			}
			saved++
		}
		if p.opts.IdleTimeout <= 0 || rt.IdleSince(now) < p.opts.IdleTimeout {
			continue
		}
		if err := rt.Release(ctx); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if p.logger != nil {
			p.logger.Info(fmt.Sprintf("released idle launch %s of session %s", rt.launch.ID, rt.launch.SessionID))
		}
	}
	if len(errs) > 0 {
		return saved, fmt.Errorf("autosave failed for %d runtime(s): %v", len(errs), errs)
	}
	return saved, nil
}

// Active returns the number of runtimes served by this process.
func (p *Player) Active() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.runtimes)
}

func (p *Player) snapshot() []*Runtime {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rts := make([]*Runtime, 0, len(p.runtimes))
	for _, rt := range p.runtimes {
		rts = append(rts, rt)
	}
	return rts
}

func (p *Player) register(rt *Runtime) {
	p.mu.Lock()
	p.runtimes[rt.launch.ID] = rt
	n := len(p.runtimes)
	p.mu.Unlock()
	p.metrics.SetActiveLaunches(n)
}

// forget tears a launch down. It is called by runtimes, with their own lock held.
func (p *Player) forget(launchID string) {
	p.mu.Lock()
	delete(p.runtimes, launchID)
	n := len(p.runtimes)
	p.mu.Unlock()
	p.metrics.SetActiveLaunches(n)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.Delete(ctx, launchID); err != nil && p.logger != nil {
		p.logger.Warn(fmt.Sprintf("deleting launch %s: %v", launchID, err), err)
	}
}
