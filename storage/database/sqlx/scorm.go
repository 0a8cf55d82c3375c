package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

const (
	tablePackages     = "packages"
	tableSessions     = "scorm_sessions"
	tableInteractions = "scorm_interactions"

	pgUniqueViolation = "23505"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	packageColumns     = []string{"id", "title", "version", "entry_path", "content_root", "created_at", "updated_at"}
	sessionColumns     = []string{"id", "package_id", "user_id", "attempt", "status", "score", "total_time", "data", "started_at", "ended_at", "created_at", "updated_at"}
	interactionColumns = []string{"id", "session_id", "element", "value", "timestamp"}

	terminalStatuses = "'" + string(scorm.StatusCompleted) + "', '" + string(scorm.StatusFailed) + "'"
	activeStatuses   = []string{string(scorm.StatusNotStarted), string(scorm.StatusInProgress)}
)

type (
	packageRow struct {
		ID          string      `db:"id"`
		Title       string      `db:"title"`
		Version     null.String `db:"version"`
		EntryPath   null.String `db:"entry_path"`
		ContentRoot string      `db:"content_root"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	sessionRow struct {
		ID        string       `db:"id"`
		PackageID string       `db:"package_id"`
		UserID    string       `db:"user_id"`
		Attempt   int          `db:"attempt"`
		Status    string       `db:"status"`
		Score     null.Float64 `db:"score"`
		TotalTime string       `db:"total_time"`
		Data      []byte       `db:"data"`
		StartedAt null.Time    `db:"started_at"`
		EndedAt   null.Time    `db:"ended_at"`
		CreatedAt time.Time    `db:"created_at"`
		UpdatedAt time.Time    `db:"updated_at"`
	}

	interactionRow struct {
		ID        string    `db:"id"`
		SessionID string    `db:"session_id"`
		Element   string    `db:"element"`
		Value     string    `db:"value"`
		Timestamp time.Time `db:"timestamp"`
	}
)

func (r packageRow) unwrap() scorm.Package {
	return scorm.Package{
		ID:          r.ID,
		Title:       r.Title,
		Version:     scorm.Version(r.Version.String),
		EntryPath:   r.EntryPath.String,
		ContentRoot: r.ContentRoot,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r sessionRow) unwrap() (scorm.Session, error) {
	sess := scorm.Session{
		ID:        r.ID,
		PackageID: r.PackageID,
		UserID:    r.UserID,
		Attempt:   r.Attempt,
		Status:    scorm.Status(r.Status),
		Score:     r.Score.Ptr(),
		TotalTime: r.TotalTime,
		Data:      map[string]string{},
		StartedAt: utcPtr(r.StartedAt),
		EndedAt:   utcPtr(r.EndedAt),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &sess.Data); err != nil {
			return scorm.Session{}, errors.Wrap(err, "decoding session data")
		}
	}
	return sess, nil
}

func (r interactionRow) unwrap() scorm.Interaction {
	return scorm.Interaction{
		ID:        r.ID,
		SessionID: r.SessionID,
		Element:   r.Element,
		Value:     r.Value,
		Timestamp: r.Timestamp.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// stripNUL removes NUL characters, which PostgreSQL rejects in text and jsonb values.
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func encodeData(data map[string]string) (string, error) {
	clean := make(map[string]string, len(data))
	for k, v := range data {
		clean[stripNUL(k)] = stripNUL(v)
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", errors.Wrap(err, "encoding session data")
	}
	// jsonb params must be sent as text, lib/pq sends []byte as bytea
	return string(b), nil
}

type scormRepository struct {
	exec core.DBExecutor
}

var _ scorm.Repository = (*scormRepository)(nil) // interface compliance check

func NewScormRepository(exec core.DBExecutor) *scormRepository {
	return &scormRepository{exec: exec}
}

func (repo scormRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

type sqlizer interface {
	ToSql() (string, []interface{}, error)
}

// query runs a built statement and scans every row into dest, a pointer to a slice of rows.
func (repo scormRepository) query(ctx context.Context, exec []core.DBExecutor, stmt sqlizer, dest interface{}) error {
	q, args, err := stmt.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	rows, err := repo.getExec(exec).QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if err = sqlx.StructScan(rows, dest); err != nil {
		return errors.Wrap(err, "scanning rows")
	}
	return rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// Packages

func (repo scormRepository) CreatePackage(ctx context.Context, pkg scorm.Package, exec ...core.DBExecutor) (scorm.Package, error) {
	stmt := psq.Insert(tablePackages).
		Columns(packageColumns...).
		Values(
			pkg.ID, pkg.Title,
			null.NewString(string(pkg.Version), pkg.Version != ""),
			null.NewString(pkg.EntryPath, pkg.EntryPath != ""),
			pkg.ContentRoot, pkg.CreatedAt.UTC(), pkg.UpdatedAt.UTC(),
		).
		Suffix("RETURNING " + strings.Join(packageColumns, ", "))

	var rows []packageRow
	if err := repo.query(ctx, exec, stmt, &rows); err != nil {
		return scorm.Package{}, errors.Wrap(err, "inserting package")
	}
	if len(rows) == 0 {
		return scorm.Package{}, errors.New("inserting package: no row returned")
	}
	return rows[0].unwrap(), nil
}

func (repo scormRepository) GetPackage(ctx context.Context, id string, exec ...core.DBExecutor) (scorm.Package, error) {
	if _, err := uuid.Parse(id); err != nil {
		return scorm.Package{}, scorm.ErrPackageNotFound
	}
	stmt := psq.Select(packageColumns...).From(tablePackages).Where(sq.Eq{"id": id})

	var rows []packageRow
	if err := repo.query(ctx, exec, stmt, &rows); err != nil {
		return scorm.Package{}, errors.Wrap(err, "finding package by ID")
	}
	if len(rows) == 0 {
		return scorm.Package{}, scorm.ErrPackageNotFound
	}
	return rows[0].unwrap(), nil
}

func (repo scormRepository) UpdatePackage(ctx context.Context, pkg scorm.Package, exec ...core.DBExecutor) (scorm.Package, error) {
	stmt := psq.Update(tablePackages).
		Set("title", pkg.Title).
		Set("version", null.NewString(string(pkg.Version), pkg.Version != "")).
		Set("entry_path", null.NewString(pkg.EntryPath, pkg.EntryPath != "")).
		Set("updated_at", pkg.UpdatedAt.UTC()).
		Where(sq.Eq{"id": pkg.ID}).
		Suffix("RETURNING " + strings.Join(packageColumns, ", "))

	var rows []packageRow
	if err := repo.query(ctx, exec, stmt, &rows); err != nil {
		return scorm.Package{}, errors.Wrap(err, "updating package")
	}
	if len(rows) == 0 {
		return scorm.Package{}, scorm.ErrPackageNotFound
	}
	return rows[0].unwrap(), nil
}

// Sessions

func (repo scormRepository) oneSession(ctx context.Context, exec []core.DBExecutor, stmt sqlizer, msg string) (scorm.Session, error) {
	var rows []sessionRow
	if err := repo.query(ctx, exec, stmt, &rows); err != nil {
		return scorm.Session{}, errors.Wrap(err, msg)
	}
	if len(rows) == 0 {
		return scorm.Session{}, scorm.ErrSessionNotFound
	}
	return rows[0].unwrap()
}

func (repo scormRepository) CreateSession(ctx context.Context, sess scorm.Session, exec ...core.DBExecutor) (scorm.Session, error) {
	data, err := encodeData(sess.Data)
	if err != nil {
		return scorm.Session{}, err
	}
	stmt := psq.Insert(tableSessions).
		Columns(sessionColumns...).
		Values(
			sess.ID, sess.PackageID, sess.UserID, sess.Attempt, string(sess.Status),
			null.Float64FromPtr(sess.Score), stripNUL(sess.TotalTime), data,
			null.TimeFromPtr(sess.StartedAt), null.TimeFromPtr(sess.EndedAt),
			sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
		).
		Suffix("RETURNING " + strings.Join(sessionColumns, ", "))

	created, err := repo.oneSession(ctx, exec, stmt, "inserting session")
	if err != nil {
		if isUniqueViolation(err) {
			return scorm.Session{}, scorm.ErrSessionConflict
		}
		return scorm.Session{}, err
	}
	return created, nil
}

func (repo scormRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (scorm.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return scorm.Session{}, scorm.ErrSessionNotFound
	}
	stmt := psq.Select(sessionColumns...).From(tableSessions).Where(sq.Eq{"id": id})
	return repo.oneSession(ctx, exec, stmt, "finding session by ID")
}

func (repo scormRepository) GetActiveSession(ctx context.Context, packageID, userID string, exec ...core.DBExecutor) (scorm.Session, error) {
	stmt := psq.Select(sessionColumns...).
		From(tableSessions).
		Where(sq.Eq{"package_id": packageID, "user_id": userID, "status": activeStatuses}).
		Limit(1)
	return repo.oneSession(ctx, exec, stmt, "finding active session")
}

func (repo scormRepository) GetLatestSession(ctx context.Context, packageID, userID string, exec ...core.DBExecutor) (scorm.Session, error) {
	if _, err := uuid.Parse(packageID); err != nil {
		return scorm.Session{}, scorm.ErrSessionNotFound
	}
	stmt := psq.Select(sessionColumns...).
		From(tableSessions).
		Where(sq.Eq{"package_id": packageID, "user_id": userID}).
		OrderBy("attempt DESC").
		Limit(1)
	return repo.oneSession(ctx, exec, stmt, "finding latest session")
}

func (repo scormRepository) QuerySessions(ctx context.Context, filter scorm.SessionFilter, exec ...core.DBExecutor) ([]scorm.Session, error) {
	qb := psq.Select(sessionColumns...).From(tableSessions)
	if filter.PackageID != "" {
		if _, err := uuid.Parse(filter.PackageID); err != nil {
			return []scorm.Session{}, nil
		}
		qb = qb.Where(sq.Eq{"package_id": filter.PackageID})
	}
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		qb = qb.Where(sq.Eq{"status": statuses})
	}

	if len(filter.Ordering) > 0 {
		orderList := make([]string, 0, len(filter.Ordering))
		for _, ord := range filter.Ordering {
			orderList = append(orderList, ord.String())
		}
		qb = qb.OrderBy(orderList...)
	} else {
		qb = qb.OrderBy("created_at ASC", "attempt ASC")
	}

	var rows []sessionRow
	if err := repo.query(ctx, exec, qb, &rows); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]scorm.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.unwrap()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// UpdateSession never moves a session out of a terminal status and never clears started_at or ended_at.
func (repo scormRepository) UpdateSession(ctx context.Context, sess scorm.Session, exec ...core.DBExecutor) (scorm.Session, error) {
	data, err := encodeData(sess.Data)
	if err != nil {
		return scorm.Session{}, err
	}
	stmt := psq.Update(tableSessions).
		Set("status", sq.Expr("CASE WHEN status IN ("+terminalStatuses+") THEN status ELSE ? END", string(sess.Status))).
		Set("score", null.Float64FromPtr(sess.Score)).
		Set("total_time", stripNUL(sess.TotalTime)).
		Set("data", data).
		Set("started_at", sq.Expr("COALESCE(started_at, ?)", null.TimeFromPtr(sess.StartedAt))).
		Set("ended_at", sq.Expr("COALESCE(ended_at, ?)", null.TimeFromPtr(sess.EndedAt))).
		Set("updated_at", sess.UpdatedAt.UTC()).
		Where(sq.Eq{"id": sess.ID}).
		Suffix("RETURNING " + strings.Join(sessionColumns, ", "))
	return repo.oneSession(ctx, exec, stmt, "updating session")
}

// Interactions

func (repo scormRepository) AppendInteractions(ctx context.Context, interactions []scorm.Interaction, exec ...core.DBExecutor) error {
	if len(interactions) == 0 {
		return nil
	}
	ib := psq.Insert(tableInteractions).Columns(interactionColumns...)
	for _, in := range interactions {
		ib = ib.Values(in.ID, in.SessionID, stripNUL(in.Element), stripNUL(in.Value), in.Timestamp.UTC())
	}
	ib = ib.Suffix("ON CONFLICT (id) DO NOTHING")

	q, args, err := ib.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, "inserting interactions")
	}
	return nil
}

func (repo scormRepository) QueryInteractions(ctx context.Context, sessionID string, limit int, exec ...core.DBExecutor) ([]scorm.Interaction, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return []scorm.Interaction{}, nil
	}
	qb := psq.Select(interactionColumns...).
		From(tableInteractions).
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("timestamp DESC", "seq DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	var rows []interactionRow
	if err := repo.query(ctx, exec, qb, &rows); err != nil {
		return nil, errors.Wrap(err, "querying interactions")
	}
	interactions := make([]scorm.Interaction, 0, len(rows))
	for _, r := range rows {
		interactions = append(interactions, r.unwrap())
	}
	return interactions, nil
}

func (repo scormRepository) LastInteractionTimes(ctx context.Context, sessionIDs []string, exec ...core.DBExecutor) (map[string]time.Time, error) {
	res := make(map[string]time.Time, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return res, nil
	}
	q, args, err := psq.Select("session_id", "MAX(timestamp)").
		From(tableInteractions).
		Where(sq.Eq{"session_id": sessionIDs}).
		GroupBy("session_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	rows, err := repo.getExec(exec).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying last interaction times")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id string
			ts time.Time
		)
		if err = rows.Scan(&id, &ts); err != nil {
			return nil, errors.Wrap(err, "scanning last interaction time")
		}
		res[id] = ts.UTC()
	}
	return res, errors.Wrap(rows.Err(), "querying last interaction times")
}
