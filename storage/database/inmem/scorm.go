package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

type scormRepository struct {
	db *DB
}

var _ scorm.Repository = (*scormRepository)(nil) // interface compliance check

func NewScormRepository(db *DB) *scormRepository {
	return &scormRepository{db: db}
}

// Packages

func (repo *scormRepository) CreatePackage(_ context.Context, pkg scorm.Package, _ ...core.DBExecutor) (scorm.Package, error) {
	t := repo.db.packages
	t.Lock()
	defer t.Unlock()

	t.table[pkg.ID] = pkg
	return pkg, nil
}

func (repo *scormRepository) GetPackage(_ context.Context, id string, _ ...core.DBExecutor) (scorm.Package, error) {
	t := repo.db.packages
	t.RLock()
	defer t.RUnlock()

	if pkg, ok := t.table[id]; ok {
		return pkg, nil
	}
	return scorm.Package{}, scorm.ErrPackageNotFound
}

func (repo *scormRepository) UpdatePackage(_ context.Context, pkg scorm.Package, _ ...core.DBExecutor) (scorm.Package, error) {
	t := repo.db.packages
	t.Lock()
	defer t.Unlock()

	orig, ok := t.table[pkg.ID]
	if !ok {
		return scorm.Package{}, scorm.ErrPackageNotFound
	}
	orig.Title = pkg.Title
	orig.Version = pkg.Version
	orig.EntryPath = pkg.EntryPath
	orig.UpdatedAt = pkg.UpdatedAt
	t.table[pkg.ID] = orig
	return orig, nil
}

// Sessions

func (repo *scormRepository) CreateSession(_ context.Context, sess scorm.Session, _ ...core.DBExecutor) (scorm.Session, error) {
	t := repo.db.sessions
	t.Lock()
	defer t.Unlock()

	for _, s := range t.table {
		if s.PackageID != sess.PackageID || s.UserID != sess.UserID {
			continue
		}
		if s.Attempt == sess.Attempt || (s.Status.IsActive() && sess.Status.IsActive()) {
			return scorm.Session{}, scorm.ErrSessionConflict
		}
	}
	if _, ok := t.table[sess.ID]; ok {
		return scorm.Session{}, scorm.ErrSessionConflict
	}
	if sess.Data == nil {
		sess.Data = map[string]string{}
	}
	t.table[sess.ID] = sess.Clone()
	return sess.Clone(), nil
}

func (repo *scormRepository) GetSession(_ context.Context, id string, _ ...core.DBExecutor) (scorm.Session, error) {
	t := repo.db.sessions
	t.RLock()
	defer t.RUnlock()

	if sess, ok := t.table[id]; ok {
		return sess.Clone(), nil
	}
	return scorm.Session{}, scorm.ErrSessionNotFound
}

func (repo *scormRepository) GetActiveSession(_ context.Context, packageID, userID string, _ ...core.DBExecutor) (scorm.Session, error) {
	t := repo.db.sessions
	t.RLock()
	defer t.RUnlock()

	for _, s := range t.table {
		if s.PackageID == packageID && s.UserID == userID && s.Status.IsActive() {
			return s.Clone(), nil
		}
	}
	return scorm.Session{}, scorm.ErrSessionNotFound
}

func (repo *scormRepository) GetLatestSession(_ context.Context, packageID, userID string, _ ...core.DBExecutor) (scorm.Session, error) {
	t := repo.db.sessions
	t.RLock()
	defer t.RUnlock()

	var (
		latest scorm.Session
		found  bool
	)
	for _, s := range t.table {
		if s.PackageID == packageID && s.UserID == userID && (!found || s.Attempt > latest.Attempt) {
			latest, found = s, true
		}
	}
	if !found {
		return scorm.Session{}, scorm.ErrSessionNotFound
	}
	return latest.Clone(), nil
}

func (repo *scormRepository) QuerySessions(_ context.Context, filter scorm.SessionFilter, _ ...core.DBExecutor) ([]scorm.Session, error) {
	t := repo.db.sessions
	t.RLock()
	defer t.RUnlock()

	statuses := make(map[scorm.Status]struct{}, len(filter.Status))
	for _, s := range filter.Status {
		statuses[s] = struct{}{}
	}

	sessions := make([]scorm.Session, 0)
	for _, s := range t.table {
		if filter.PackageID != "" && s.PackageID != filter.PackageID {
			continue
		}
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[s.Status]; !ok {
				continue
			}
		}
		sessions = append(sessions, s.Clone())
	}

	ordering := filter.Ordering
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "attempt", Ascending: true}}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareSessions(sessions[i], sessions[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// UpdateSession keeps a terminal status and a set ended_at, like the SQL implementation does.
func (repo *scormRepository) UpdateSession(_ context.Context, sess scorm.Session, _ ...core.DBExecutor) (scorm.Session, error) {
	t := repo.db.sessions
	t.Lock()
	defer t.Unlock()

	orig, ok := t.table[sess.ID]
	if !ok {
		return scorm.Session{}, scorm.ErrSessionNotFound
	}
	upd := sess.Clone()
	upd.PackageID = orig.PackageID
	upd.UserID = orig.UserID
	upd.Attempt = orig.Attempt
	upd.CreatedAt = orig.CreatedAt
	if orig.Status.IsTerminal() {
		upd.Status = orig.Status
	}
	if orig.StartedAt != nil {
		upd.StartedAt = orig.StartedAt
	}
	if orig.EndedAt != nil {
		upd.EndedAt = orig.EndedAt
	}
	if upd.Data == nil {
		upd.Data = map[string]string{}
	}
	t.table[sess.ID] = upd
	return upd.Clone(), nil
}

// Interactions

func (repo *scormRepository) AppendInteractions(_ context.Context, interactions []scorm.Interaction, _ ...core.DBExecutor) error {
	t := repo.db.interactions
	t.Lock()
	defer t.Unlock()

	for _, in := range interactions {
		if _, ok := t.ids[in.ID]; ok {
			continue
		}
		t.seq++
		t.ids[in.ID] = struct{}{}
		t.table[in.SessionID] = append(t.table[in.SessionID], interactionRow{Interaction: in, seq: t.seq})
	}
	return nil
}

func (repo *scormRepository) QueryInteractions(_ context.Context, sessionID string, limit int, _ ...core.DBExecutor) ([]scorm.Interaction, error) {
	t := repo.db.interactions
	t.RLock()
	rows := make([]interactionRow, len(t.table[sessionID]))
	copy(rows, t.table[sessionID])
	t.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.After(rows[j].Timestamp)
		}
		return rows[i].seq > rows[j].seq
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	res := make([]scorm.Interaction, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.Interaction)
	}
	return res, nil
}

func (repo *scormRepository) LastInteractionTimes(_ context.Context, sessionIDs []string, _ ...core.DBExecutor) (map[string]time.Time, error) {
	t := repo.db.interactions
	t.RLock()
	defer t.RUnlock()

	res := make(map[string]time.Time, len(sessionIDs))
	for _, id := range sessionIDs {
		for _, r := range t.table[id] {
			if last, ok := res[id]; !ok || r.Timestamp.After(last) {
				res[id] = r.Timestamp
			}
		}
	}
	return res, nil
}

func compareSessions(a, b scorm.Session, field string) int {
	switch field {
	case "attempt":
		return compareInts(a.Attempt, b.Attempt)
	case "status":
		return compareStrings(string(a.Status), string(b.Status))
	case "score":
		return compareFloatPtrs(a.Score, b.Score)
	case "started_at":
		return compareTimePtrs(a.StartedAt, b.StartedAt)
	case "ended_at":
		return compareTimePtrs(a.EndedAt, b.EndedAt)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// nulls sort last, as in PostgreSQL ascending order
func compareFloatPtrs(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func compareTimePtrs(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compareTimes(*a, *b)
}
