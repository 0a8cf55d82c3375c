package scorm_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	inmemdb "github.com/trezcool/masomo-scorm/storage/database/inmem"
)

var (
	errDBDown   = errors.New("connection refused")
	errRejected = errors.New("violates foreign key constraint")
)

type (
	flakyRepo struct {
		scorm.Repository
		mu      sync.Mutex
		down    bool
		rejects string // session whose rows fail the whole insert
		batches []int
	}

	recordingNotifier struct {
		mu      sync.Mutex
		notices []scorm.Notice
	}
)

func (r *flakyRepo) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *flakyRepo) AppendInteractions(ctx context.Context, interactions []scorm.Interaction, exec ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errDBDown
	}
	for _, in := range interactions {
		if r.rejects != "" && in.SessionID == r.rejects {
			return errRejected
		}
	}
	r.batches = append(r.batches, len(interactions))
	return r.Repository.AppendInteractions(ctx, interactions, exec...)
}

func (n *recordingNotifier) Notify(notice scorm.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func newInteractionLog(batchSize int) (*scorm.InteractionLog, *flakyRepo, *recordingNotifier, *fakeMetrics) {
	repo := &flakyRepo{Repository: inmemdb.NewScormRepository(inmemdb.Open())}
	notifier := &recordingNotifier{}
	metrics := newFakeMetrics()
	log := scorm.NewInteractionLog(repo, notifier, nil, metrics, scorm.InteractionLogOptions{
		FlushInterval: time.Hour,
		BatchSize:     batchSize,
		DefaultLimit:  3,
		MaxLimit:      5,
	})
	return log, repo, notifier, metrics
}

func TestInteractionLog_AppendAndFlush(t *testing.T) {
	ctx := context.Background()
	log, repo, _, metrics := newInteractionLog(2)

	in := log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: "1"})
	assert.NotEmpty(t, in.ID)
	assert.False(t, in.Timestamp.IsZero())

	kept := log.Append(scorm.Interaction{ID: "fixed", SessionID: "s1", Element: "cmi.core.lesson_location", Value: "2", Timestamp: testNow})
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, testNow, kept.Timestamp)

	log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.suspend_data", Value: "abc"})
	assert.Equal(t, 3, log.Pending())

	// nothing is persisted before a flush
	res, err := log.MostRecent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, 0, log.Pending())
	assert.Equal(t, []int{2, 1}, repo.batches)
	assert.Equal(t, 3, metrics.flushed)

	res, err = log.MostRecent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	// an empty flush writes nothing
	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, []int{2, 1}, repo.batches)
}

func TestInteractionLog_FlushFailure(t *testing.T) {
	ctx := context.Background()
	log, repo, notifier, _ := newInteractionLog(10)

	repo.setDown(true)
	log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: "1"})
	log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: "2"})

	err := log.Flush(ctx)
	assert.Equal(t, errDBDown, errors.Cause(err))
	assert.Equal(t, 2, log.Pending())
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, scorm.NoticeWarning, notifier.notices[0].Level)
	assert.Equal(t, "s1", notifier.notices[0].SessionID)
	assert.Equal(t, errDBDown, notifier.notices[0].Err)

	// one notice per failure streak
	require.Error(t, log.Flush(ctx))
	assert.Equal(t, 1, notifier.count())

	repo.setDown(false)
	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, 0, log.Pending())

	res, err := log.MostRecent(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	// a new streak notifies again
	repo.setDown(true)
	log.Append(scorm.Interaction{SessionID: "s2", Element: "cmi.core.lesson_status", Value: "passed"})
	require.Error(t, log.Flush(ctx))
	assert.Equal(t, 2, notifier.count())
}

func TestInteractionLog_RejectedRow(t *testing.T) {
	ctx := context.Background()
	log, repo, notifier, _ := newInteractionLog(10)
	repo.rejects = "orphan"

	// alone, a rejected row cannot be told from an outage and stays queued
	log.Append(scorm.Interaction{SessionID: "orphan", Element: "cmi.core.lesson_location", Value: "1"})
	require.Error(t, log.Flush(ctx))
	assert.Equal(t, 1, log.Pending())
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, scorm.NoticeWarning, notifier.notices[0].Level)

	for i := 0; i < 3; i++ {
		log.Append(scorm.Interaction{SessionID: "s2", Element: "cmi.core.lesson_location", Value: "2"})
	}
	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, 0, log.Pending())
	assert.Equal(t, []int{1, 1, 1}, repo.batches)

	res, err := log.MostRecent(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	require.Equal(t, 2, notifier.count())
	assert.Equal(t, scorm.NoticeError, notifier.notices[1].Level)
	assert.Equal(t, "orphan", notifier.notices[1].SessionID)
	assert.Equal(t, errRejected, notifier.notices[1].Err)

	// the queue keeps moving afterwards
	log.Append(scorm.Interaction{SessionID: "s2", Element: "cmi.core.lesson_location", Value: "3"})
	require.NoError(t, log.Flush(ctx))
	assert.Equal(t, []int{1, 1, 1, 1}, repo.batches)
}

func TestInteractionLog_MaxPending(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: inmemdb.NewScormRepository(inmemdb.Open())}
	notifier := &recordingNotifier{}
	log := scorm.NewInteractionLog(repo, notifier, nil, newFakeMetrics(), scorm.InteractionLogOptions{
		FlushInterval: time.Hour,
		BatchSize:     2,
		MaxPending:    3,
	})

	for i := 1; i <= 5; i++ {
		log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: strconv.Itoa(i), Timestamp: testNow.Add(time.Duration(i) * time.Second)})
	}
	assert.Equal(t, 3, log.Pending())
	// one notice per overflow
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, scorm.NoticeWarning, notifier.notices[0].Level)

	require.NoError(t, log.Flush(ctx))
	res, err := log.MostRecent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "5", res[0].Value)
	assert.Equal(t, "3", res[2].Value)
}

func TestInteractionLog_StripsNUL(t *testing.T) {
	log, _, _, _ := newInteractionLog(10)
	in := log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.suspend_data", Value: "a\x00b\x00"})
	assert.Equal(t, "ab", in.Value)
	assert.Equal(t, "cmi.suspend_data", in.Element)
}

func TestInteractionLog_MostRecentLimit(t *testing.T) {
	ctx := context.Background()
	log, _, _, _ := newInteractionLog(100)

	for i := 0; i < 8; i++ {
		log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Timestamp: testNow.Add(time.Duration(i) * time.Second)})
	}
	require.NoError(t, log.Flush(ctx))

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, 3},
		{"negative", -1, 3},
		{"explicit", 4, 4},
		{"capped", 100, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := log.MostRecent(ctx, "s1", tt.limit)
			require.NoError(t, err)
			require.Len(t, res, tt.want)
			assert.Equal(t, testNow.Add(7*time.Second), res[0].Timestamp)
		})
	}
}

func TestInteractionLog_StartAndClose(t *testing.T) {
	ctx := context.Background()
	log, _, _, _ := newInteractionLog(2)
	log.Start()
	log.Start()

	log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: "1"})
	log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: "2"})
	// a full batch wakes the flusher
	assert.Eventually(t, func() bool { return log.Pending() == 0 }, time.Second, 10*time.Millisecond)

	log.Append(scorm.Interaction{SessionID: "s1", Element: "cmi.core.lesson_location", Value: "3"})
	require.NoError(t, log.Close(ctx))
	require.NoError(t, log.Close(ctx))
	assert.Equal(t, 0, log.Pending())

	res, err := log.MostRecent(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}
