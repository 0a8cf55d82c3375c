package scorm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

type InteractionLogOptions struct {
	FlushInterval time.Duration
	BatchSize     int
	MaxPending    int // oldest entries are discarded beyond this
	DefaultLimit  int
	MaxLimit      int
}

// isolateAttempts is how many rows of a failed batch are tried one by one before the
// failure is taken for an outage of the store.
const isolateAttempts = 3

// InteractionLog is the write-behind, append-only log of every element the content writes.
// Append never blocks the caller: entries are queued and written in batches by a background
// worker, or synchronously through Flush. A failed batch stays queued and is retried; entries
// carry their id from the moment they are appended, so a retried batch never duplicates rows.
// A failed batch is retried row by row: rows the store rejects while others are written are
// discarded with a notice, so one bad row never holds back the queue.
type InteractionLog struct {
	repo     InteractionRepository
	notifier Notifier
	metrics  Metrics
	logger   core.Logger
	opts     InteractionLogOptions

	mu          sync.Mutex
	pending     []Interaction
	failing     bool
	overflowing bool

	writeMu sync.Mutex // serializes batch writes so entries keep their append order
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started bool
	once    sync.Once
}

func NewInteractionLog(repo InteractionRepository, notifier Notifier, logger core.Logger, metrics Metrics, opts InteractionLogOptions) *InteractionLog {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 10000
	}
	if opts.MaxPending < opts.BatchSize {
		opts.MaxPending = opts.BatchSize
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 500
	}
	return &InteractionLog{
		repo:     repo,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the background flusher until Close is called.
func (l *InteractionLog) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	go l.run()
}

func (l *InteractionLog) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		case <-l.wake:
		}
		if l.Pending() == 0 {
			continue
		}
		if err := l.Flush(context.Background()); err != nil && l.logger != nil {
			l.logger.Warn("flushing interactions", err)
		}
	}
}

// Close stops the background flusher and writes whatever is still queued.
func (l *InteractionLog) Close(ctx context.Context) error {
	l.once.Do(func() { close(l.stop) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.Flush(ctx)
}

// Append queues an interaction. Missing ids and timestamps are assigned here, NUL characters
// are removed. When the queue is full the oldest entries are discarded.
func (l *InteractionLog) Append(in Interaction) Interaction {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	in.Element = strings.ReplaceAll(in.Element, "\x00", "")
	in.Value = strings.ReplaceAll(in.Value, "\x00", "")

	l.mu.Lock()
	l.pending = append(l.pending, in)
	var dropped []Interaction
	if over := len(l.pending) - l.opts.MaxPending; over > 0 {
		dropped = append(dropped, l.pending[:over]...)
		l.pending = l.pending[over:]
	}
	notify := len(dropped) > 0 && !l.overflowing
	if len(dropped) > 0 {
		l.overflowing = true
	}
	n := len(l.pending)
	l.mu.Unlock()

	l.metrics.SetPendingInteractions(n)
	if notify {
		l.notifier.Notify(Notice{
			Level:     NoticeWarning,
			SessionID: dropped[0].SessionID,
			Message:   "learning activity queue is full, the oldest entries were discarded",
			At:        time.Now().UTC(),
		})
	}
	if n >= l.opts.BatchSize {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	return in
}

// Pending returns the number of queued, not yet persisted interactions.
func (l *InteractionLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush synchronously writes every queued interaction.
func (l *InteractionLog) Flush(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	for {
		l.mu.Lock()
		n := len(l.pending)
		if n > l.opts.BatchSize {
			n = l.opts.BatchSize
		}
		batch := make([]Interaction, n)
		copy(batch, l.pending[:n])
		l.mu.Unlock()

		if n == 0 {
			l.recovered()
			return nil
		}

		if err := l.repo.AppendInteractions(ctx, batch); err != nil {
			l.metrics.ObserveInteractionFlush(n, err)
			rejected, ok := l.isolate(ctx, batch)
			if !ok {
				l.failed(batch[0], err)
				return errors.Wrap(err, "appending interactions")
			}
			l.reject(rejected)
		} else {
			l.metrics.ObserveInteractionFlush(n, nil)
		}

		// Append may have discarded part of the batch meanwhile, what is left of it is at the head
		l.mu.Lock()
		l.pending = dropWritten(l.pending, batch)
		left := len(l.pending)
		if left < l.opts.MaxPending {
			l.overflowing = false
		}
		l.mu.Unlock()
		l.metrics.SetPendingInteractions(left)
	}
}

type rejectedInteraction struct {
	Interaction
	err error
}

// isolate writes a failed batch one row at a time. It returns the rows the store rejected,
// and false when no row could be written at all, in which case the batch stays queued.
func (l *InteractionLog) isolate(ctx context.Context, batch []Interaction) ([]rejectedInteraction, bool) {
	if len(batch) < 2 {
		return nil, false
	}
	var (
		rejected []rejectedInteraction
		written  int
	)
	for _, in := range batch {
		err := l.repo.AppendInteractions(ctx, []Interaction{in})
		l.metrics.ObserveInteractionFlush(1, err)
		if err != nil {
			rejected = append(rejected, rejectedInteraction{Interaction: in, err: err})
			if written == 0 && len(rejected) >= isolateAttempts {
				return nil, false
			}
			continue
		}
		written++
	}
	return rejected, written > 0
}

// reject discards rows the store refused while it accepted others.
func (l *InteractionLog) reject(rejected []rejectedInteraction) {
	for _, in := range rejected {
		if l.logger != nil {
			l.logger.Error("discarding interaction "+in.ID, map[string]interface{}{"session_id": in.SessionID, "element": in.Element}, in.err)
		}
		l.notifier.Notify(Notice{
			Level:     NoticeError,
			SessionID: in.SessionID,
			Message:   "a learning activity entry was rejected by the store and discarded",
			Err:       in.err,
			At:        time.Now().UTC(),
		})
	}
}

// dropWritten removes the leading entries of pending that belong to batch.
func dropWritten(pending, batch []Interaction) []Interaction {
	written := make(map[string]struct{}, len(batch))
	for _, in := range batch {
		written[in.ID] = struct{}{}
	}
	i := 0
	for i < len(pending) {
		if _, ok := written[pending[i].ID]; !ok {
			break
		}
		i++
	}
	return pending[i:]
}

// failed notifies once per failure streak.
func (l *InteractionLog) failed(first Interaction, err error) {
	l.mu.Lock()
	notify := !l.failing
	l.failing = true
	l.mu.Unlock()

	if notify {
		l.notifier.Notify(Notice{
			Level:     NoticeWarning,
			SessionID: first.SessionID,
			Message:   "learning activity could not be saved yet, it will be retried",
			Err:       err,
			At:        time.Now().UTC(),
		})
	}
}

func (l *InteractionLog) recovered() {
	l.mu.Lock()
	l.failing = false
	l.mu.Unlock()
}

// MostRecent returns the latest persisted interactions of a session, newest first.
// limit defaults and is capped according to the log options.
func (l *InteractionLog) MostRecent(ctx context.Context, sessionID string, limit int) ([]Interaction, error) {
	limit = core.ClampLimit(limit, l.opts.DefaultLimit, l.opts.MaxLimit)
	interactions, err := l.repo.QueryInteractions(ctx, sessionID, limit)
	return interactions, errors.Wrap(err, "querying interactions")
}
