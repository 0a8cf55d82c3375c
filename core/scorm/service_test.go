package scorm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	inmemdb "github.com/trezcool/masomo-scorm/storage/database/inmem"
	testutil "github.com/trezcool/masomo-scorm/tests"
)

var testNow = time.Date(2021, 3, 4, 10, 30, 0, 0, time.UTC)

type (
	fakeResolver struct {
		mu       sync.Mutex
		calls    int
		manifest scorm.Manifest
		err      error
	}

	fakeMetrics struct {
		scorm.NopMetrics
		mu       sync.Mutex
		resolves map[string]int
		commits  map[bool]int
		flushed  int
	}

	// racingRepo lets another process win the first session insert.
	racingRepo struct {
		scorm.Repository
		once   sync.Once
		winner scorm.Session
	}
)

func (r *fakeResolver) Resolve(context.Context, scorm.Package) (scorm.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.manifest, r.err
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{resolves: map[string]int{}, commits: map[bool]int{}}
}

func (m *fakeMetrics) ObserveResolve(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolves[outcome]++
}

func (m *fakeMetrics) ObserveCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits[err == nil]++
}

func (m *fakeMetrics) ObserveInteractionFlush(count int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.flushed += count
	}
}

func (m *fakeMetrics) resolved(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolves[outcome]
}

func (r *racingRepo) CreateSession(ctx context.Context, sess scorm.Session, exec ...core.DBExecutor) (scorm.Session, error) {
	var err error
	r.once.Do(func() {
		winner := sess
		winner.ID = "winner"
		r.winner, err = r.Repository.CreateSession(ctx, winner)
	})
	if err != nil {
		return scorm.Session{}, err
	}
	return r.Repository.CreateSession(ctx, sess, exec...)
}

func TestService_CreatePackage(t *testing.T) {
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	svc := scorm.NewService(repo, nil, nil, nil)

	pkg, err := svc.CreatePackage(context.Background(), scorm.NewPackage{Title: "Intro", ContentRoot: "intro", Version: scorm.Version12})
	require.NoError(t, err)
	assert.NotEmpty(t, pkg.ID)
	assert.Equal(t, "Intro", pkg.Title)
	assert.Equal(t, scorm.Version12, pkg.Version)
	assert.Empty(t, pkg.EntryPath)
	assert.False(t, pkg.Launchable())
	assert.False(t, pkg.CreatedAt.IsZero())

	got, err := svc.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg, got)
}

func TestService_ResolveManifest(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		resolver    *fakeResolver
		version     scorm.Version
		wantErr     error
		wantEntry   string
		wantVersion scorm.Version
	}{
		{
			name:        "resolved",
			resolver:    &fakeResolver{manifest: scorm.Manifest{EntryPath: "index.html", Version: scorm.Version2004}},
			wantEntry:   "index.html",
			wantVersion: scorm.Version2004,
		},
		{
			name:        "declared version kept when manifest has none",
			resolver:    &fakeResolver{manifest: scorm.Manifest{EntryPath: "index.html"}},
			version:     scorm.Version12,
			wantEntry:   "index.html",
			wantVersion: scorm.Version12,
		},
		{
			name:     "no manifest",
			resolver: &fakeResolver{err: scorm.ErrManifestNotFound},
			wantErr:  scorm.ErrManifestNotFound,
		},
		{
			name:     "no entry point",
			resolver: &fakeResolver{err: scorm.ErrNoEntryPoint},
			wantErr:  scorm.ErrNoEntryPoint,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := inmemdb.NewScormRepository(inmemdb.Open())
			svc := scorm.NewService(repo, tt.resolver, nil, nil)
			pkg := testutil.CreatePackage(t, repo, "Course", "course", tt.version, "")

			got, err := svc.ResolveManifest(ctx, pkg.ID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				stored, _ := repo.GetPackage(ctx, pkg.ID)
				assert.Empty(t, stored.EntryPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEntry, got.EntryPath)
			assert.Equal(t, tt.wantVersion, got.Version)
			assert.True(t, got.Launchable())

			// resolved once, then cached
			again, err := svc.ResolveManifest(ctx, pkg.ID)
			require.NoError(t, err)
			assert.Equal(t, got, again)
			assert.Equal(t, 1, tt.resolver.calls)
		})
	}

	svc := scorm.NewService(inmemdb.NewScormRepository(inmemdb.Open()), &fakeResolver{}, nil, nil)
	_, err := svc.ResolveManifest(ctx, "unknown")
	assert.Equal(t, scorm.ErrPackageNotFound, err)
}

func TestService_ResolveSession(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	metrics := newFakeMetrics()
	svc := scorm.NewService(repo, nil, nil, metrics)
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")

	first, err := svc.ResolveSession(ctx, pkg.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, scorm.StatusNotStarted, first.Status)
	assert.Nil(t, first.StartedAt)
	assert.NotNil(t, first.Data)

	resumed, err := svc.ResolveSession(ctx, pkg.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, resumed.ID)

	other, err := svc.ResolveSession(ctx, pkg.ID, "u2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, 1, other.Attempt)

	// a finished attempt is never resumed
	done := first.Clone()
	done.Status = scorm.StatusCompleted
	_, err = svc.Commit(ctx, done)
	require.NoError(t, err)

	next, err := svc.ResolveSession(ctx, pkg.ID, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, 2, next.Attempt)

	assert.Equal(t, 3, metrics.resolved(scorm.ResolveCreated))
	assert.Equal(t, 1, metrics.resolved(scorm.ResolveResumed))

	tests := []struct {
		name      string
		packageID string
		userID    string
		wantErr   error
	}{
		{"unknown package", "unknown", "u1", scorm.ErrPackageNotFound},
		{"blank learner", pkg.ID, "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveSession(ctx, tt.packageID, tt.userID)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			var verr *core.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestService_ResolveSessionConcurrently(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")

	// two processes sharing one store
	services := []*scorm.Service{
		scorm.NewService(repo, nil, nil, nil),
		scorm.NewService(repo, nil, nil, nil),
	}

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := services[i%2].ResolveSession(ctx, pkg.ID, "u1")
			if assert.NoError(t, err) {
				ids[i] = sess.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	sessions, err := repo.QuerySessions(ctx, scorm.SessionFilter{PackageID: pkg.ID})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestService_ResolveSessionLosesRace(t *testing.T) {
	ctx := context.Background()
	repo := &racingRepo{Repository: inmemdb.NewScormRepository(inmemdb.Open())}
	metrics := newFakeMetrics()
	svc := scorm.NewService(repo, nil, nil, metrics)
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")

	sess, err := svc.ResolveSession(ctx, pkg.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "winner", sess.ID)
	assert.Equal(t, 1, metrics.resolved(scorm.ResolveConflict))
	assert.Equal(t, 1, metrics.resolved(scorm.ResolveResumed))
	assert.Equal(t, 0, metrics.resolved(scorm.ResolveCreated))
}

func TestService_BeginAttempt(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	svc := scorm.NewService(repo, nil, nil, nil)
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")

	sess := testutil.CreateSession(t, repo, pkg.ID, "u1", 1, scorm.StatusNotStarted)
	begun, err := svc.BeginAttempt(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StatusInProgress, begun.Status)
	require.NotNil(t, begun.StartedAt)

	again, err := svc.BeginAttempt(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, *begun.StartedAt, *again.StartedAt)

	done := testutil.CreateSession(t, repo, pkg.ID, "u2", 1, scorm.StatusFailed)
	got, err := svc.BeginAttempt(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, scorm.StatusFailed, got.Status)

	_, err = svc.BeginAttempt(ctx, "unknown")
	assert.Equal(t, scorm.ErrSessionNotFound, err)
}

func TestService_Commit(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	metrics := newFakeMetrics()
	svc := scorm.NewService(repo, nil, nil, metrics)
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")
	sess := testutil.CreateSession(t, repo, pkg.ID, "u1", 1, scorm.StatusInProgress)

	sess.WriteElement("cmi.core.lesson_location", "3")
	sess.RecordScore("80")
	sess.RecordStatus("passed", sess.CreatedAt)
	saved, err := svc.Commit(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, scorm.StatusCompleted, saved.Status)
	assert.Equal(t, "3", saved.Data["cmi.core.lesson_location"])
	require.NotNil(t, saved.Score)
	assert.Equal(t, 80.0, *saved.Score)
	assert.True(t, !saved.UpdatedAt.Before(sess.UpdatedAt))

	// an unchanged session is still written
	_, err = svc.Commit(ctx, saved)
	require.NoError(t, err)

	// a stale copy cannot reopen the attempt
	stale := sess.Clone()
	stale.Status = scorm.StatusInProgress
	saved, err = svc.Commit(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, scorm.StatusCompleted, saved.Status)

	_, err = svc.Commit(ctx, scorm.Session{ID: "unknown"})
	assert.Equal(t, scorm.ErrSessionNotFound, errors.Cause(err))

	assert.Equal(t, 3, metrics.commits[true])
	assert.Equal(t, 1, metrics.commits[false])
}

func TestService_ListSessions(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	svc := scorm.NewService(repo, nil, nil, nil)
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")

	s1 := testutil.CreateSession(t, repo, pkg.ID, "u1", 1, scorm.StatusCompleted, testNow)
	s2 := testutil.CreateSession(t, repo, pkg.ID, "u1", 2, scorm.StatusInProgress, testNow.Add(time.Minute))
	s3 := testutil.CreateSession(t, repo, pkg.ID, "u2", 1, scorm.StatusFailed, testNow.Add(2*time.Minute))

	tests := []struct {
		name   string
		filter scorm.SessionFilter
		want   []string
	}{
		{"all", scorm.SessionFilter{PackageID: pkg.ID}, []string{s1.ID, s2.ID, s3.ID}},
		{"learner", scorm.SessionFilter{PackageID: pkg.ID, UserID: "u1"}, []string{s1.ID, s2.ID}},
		{
			"terminal",
			scorm.SessionFilter{PackageID: pkg.ID, Status: []scorm.Status{scorm.StatusCompleted, scorm.StatusFailed}},
			[]string{s1.ID, s3.ID},
		},
		{
			"newest first",
			scorm.SessionFilter{PackageID: pkg.ID, Ordering: []core.DBOrdering{{Field: "created_at"}}},
			[]string{s3.ID, s2.ID, s1.ID},
		},
		{
			"unknown ordering field ignored",
			scorm.SessionFilter{PackageID: pkg.ID, Ordering: []core.DBOrdering{{Field: "user_id; DROP TABLE scorm_sessions"}}},
			[]string{s1.ID, s2.ID, s3.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := svc.ListSessions(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(sessions))
			for _, s := range sessions {
				got = append(got, s.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	latest, err := svc.LatestSession(ctx, pkg.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, s2.ID, latest.ID)
}

func TestService_Aggregate(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewScormRepository(inmemdb.Open())
	svc := scorm.NewService(repo, nil, nil, nil)
	pkg := testutil.CreatePackage(t, repo, "Course", "course", scorm.Version12, "index.html")

	s1 := testutil.CreateSession(t, repo, pkg.ID, "u1", 1, scorm.StatusInProgress, testNow)
	s1.RecordScore("70")
	s1.RecordTime("0000:05:00")
	s1.RecordStatus("completed", testNow)
	_, err := svc.Commit(ctx, s1)
	require.NoError(t, err)
	testutil.CreateSession(t, repo, pkg.ID, "u2", 1, scorm.StatusInProgress, testNow.Add(time.Minute))

	require.NoError(t, repo.AppendInteractions(ctx, []scorm.Interaction{
		{ID: "i1", SessionID: s1.ID, Element: "cmi.core.score.raw", Value: "70", Timestamp: testNow.Add(time.Second)},
	}))

	rep, err := svc.Aggregate(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.SessionCount)
	assert.Equal(t, 1, rep.CompletedCount)
	assert.Equal(t, 0.5, rep.CompletionRate)
	require.NotNil(t, rep.AvgScore)
	assert.Equal(t, 70.0, *rep.AvgScore)
	require.NotNil(t, rep.AvgTimeSeconds)
	assert.Equal(t, 300.0, *rep.AvgTimeSeconds)
	require.NotNil(t, rep.Sessions[0].LastInteractionAt)
	assert.Equal(t, testNow.Add(time.Second), *rep.Sessions[0].LastInteractionAt)
	assert.Nil(t, rep.Sessions[1].LastInteractionAt)

	_, err = svc.Aggregate(ctx, "unknown")
	assert.Equal(t, scorm.ErrPackageNotFound, err)
}
