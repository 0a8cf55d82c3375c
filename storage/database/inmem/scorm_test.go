package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

var testNow = time.Date(2021, 3, 4, 10, 30, 0, 0, time.UTC)

func newSession(pkgID, userID string, attempt int, status scorm.Status) scorm.Session {
	return scorm.Session{
		ID:        uuid.New().String(),
		PackageID: pkgID,
		UserID:    userID,
		Attempt:   attempt,
		Status:    status,
		Data:      map[string]string{},
		CreatedAt: testNow.Add(time.Duration(attempt) * time.Minute),
		UpdatedAt: testNow,
	}
}

func TestScormRepository_CreateSessionConstraints(t *testing.T) {
	ctx := context.Background()
	repo := NewScormRepository(Open())
	pkgID := uuid.New().String()

	first, err := repo.CreateSession(ctx, newSession(pkgID, "u1", 1, scorm.StatusNotStarted))
	require.NoError(t, err)

	tests := []struct {
		name    string
		sess    scorm.Session
		wantErr error
	}{
		{"second active session", newSession(pkgID, "u1", 2, scorm.StatusNotStarted), scorm.ErrSessionConflict},
		{"attempt taken", newSession(pkgID, "u1", 1, scorm.StatusCompleted), scorm.ErrSessionConflict},
		{"other learner", newSession(pkgID, "u2", 1, scorm.StatusNotStarted), nil},
		{"other package", newSession(uuid.New().String(), "u1", 1, scorm.StatusNotStarted), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreateSession(ctx, tc.sess)
			assert.Equal(t, tc.wantErr, err)
		})
	}

	// once the first attempt is over, the next one can start
	first.Status = scorm.StatusCompleted
	_, err = repo.UpdateSession(ctx, first)
	require.NoError(t, err)
	_, err = repo.CreateSession(ctx, newSession(pkgID, "u1", 2, scorm.StatusNotStarted))
	assert.NoError(t, err)

	latest, err := repo.GetLatestSession(ctx, pkgID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Attempt)
}

func TestScormRepository_UpdateSessionKeepsTerminalState(t *testing.T) {
	ctx := context.Background()
	repo := NewScormRepository(Open())

	sess, err := repo.CreateSession(ctx, newSession(uuid.New().String(), "u1", 1, scorm.StatusInProgress))
	require.NoError(t, err)

	ended := testNow.Add(time.Hour)
	done := sess.Clone()
	done.Status = scorm.StatusFailed
	done.EndedAt = &ended
	_, err = repo.UpdateSession(ctx, done)
	require.NoError(t, err)

	// a stale mirror commits afterwards
	stale := sess.Clone()
	stale.Status = scorm.StatusInProgress
	stale.Data["cmi.core.lesson_location"] = "4"
	saved, err := repo.UpdateSession(ctx, stale)
	require.NoError(t, err)

	assert.Equal(t, scorm.StatusFailed, saved.Status)
	require.NotNil(t, saved.EndedAt)
	assert.Equal(t, ended, *saved.EndedAt)
	assert.Equal(t, "4", saved.Data["cmi.core.lesson_location"])

	_, err = repo.UpdateSession(ctx, newSession("x", "y", 1, scorm.StatusInProgress))
	assert.Equal(t, scorm.ErrSessionNotFound, err)
}

func TestScormRepository_QuerySessions(t *testing.T) {
	ctx := context.Background()
	repo := NewScormRepository(Open())
	pkgID := uuid.New().String()

	score := func(f float64) *float64 { return &f }
	s1 := newSession(pkgID, "u1", 1, scorm.StatusCompleted)
	s1.Score = score(70)
	s2 := newSession(pkgID, "u2", 1, scorm.StatusInProgress)
	s2.CreatedAt = testNow.Add(2 * time.Minute)
	s3 := newSession(pkgID, "u3", 1, scorm.StatusCompleted)
	s3.Score = score(90)
	s3.CreatedAt = testNow.Add(-time.Hour)
	for _, s := range []scorm.Session{s1, s2, s3} {
		_, err := repo.CreateSession(ctx, s)
		require.NoError(t, err)
	}
	_, err := repo.CreateSession(ctx, newSession(uuid.New().String(), "u1", 1, scorm.StatusInProgress))
	require.NoError(t, err)

	ids := func(sessions []scorm.Session) []string {
		res := make([]string, 0, len(sessions))
		for _, s := range sessions {
			res = append(res, s.ID)
		}
		return res
	}

	tests := []struct {
		name   string
		filter scorm.SessionFilter
		want   []string
	}{
		{"default ordering", scorm.SessionFilter{PackageID: pkgID}, []string{s3.ID, s1.ID, s2.ID}},
		{"by status", scorm.SessionFilter{PackageID: pkgID, Status: []scorm.Status{scorm.StatusInProgress}}, []string{s2.ID}},
		{"by user", scorm.SessionFilter{PackageID: pkgID, UserID: "u1"}, []string{s1.ID}},
		{
			"score descending, nulls first",
			scorm.SessionFilter{PackageID: pkgID, Ordering: []core.DBOrdering{{Field: "score"}}},
			[]string{s2.ID, s3.ID, s1.ID},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sessions, err := repo.QuerySessions(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(sessions))
		})
	}
}

func TestScormRepository_Interactions(t *testing.T) {
	ctx := context.Background()
	repo := NewScormRepository(Open())

	in := func(id, sessID string, ts time.Time) scorm.Interaction {
		return scorm.Interaction{ID: id, SessionID: sessID, Element: "cmi.core.lesson_location", Value: id, Timestamp: ts}
	}
	require.NoError(t, repo.AppendInteractions(ctx, []scorm.Interaction{
		in("a", "s1", testNow),
		in("b", "s1", testNow),
		in("c", "s1", testNow.Add(time.Second)),
		in("d", "s2", testNow.Add(time.Minute)),
	}))
	// replayed batch
	require.NoError(t, repo.AppendInteractions(ctx, []scorm.Interaction{in("a", "s1", testNow)}))

	res, err := repo.QueryInteractions(ctx, "s1", 0)
	require.NoError(t, err)
	got := make([]string, 0, len(res))
	for _, r := range res {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)

	res, err = repo.QueryInteractions(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].ID)

	times, err := repo.LastInteractionTimes(ctx, []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"s1": testNow.Add(time.Second), "s2": testNow.Add(time.Minute)}, times)
}
