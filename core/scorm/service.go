package scorm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/masomo-scorm/core"
)

const maxResolveAttempts = 5

type (
	// Manifest is what the manifest resolver learns about a package.
	Manifest struct {
		EntryPath string
		Version   Version
	}

	ManifestResolver interface {
		Resolve(ctx context.Context, pkg Package) (Manifest, error)
	}

	Service struct {
		repo     Repository
		resolver ManifestResolver
		metrics  Metrics
		logger   core.Logger
		group    singleflight.Group
		now      func() time.Time
	}
)

func NewService(repo Repository, resolver ManifestResolver, logger core.Logger, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Packages

func (np *NewPackage) Clean() {
	np.Title = core.CleanString(np.Title)
	np.ContentRoot = core.CleanString(np.ContentRoot)
	np.Version = Version(core.CleanString(string(np.Version)))
}

func (svc *Service) CreatePackage(ctx context.Context, np NewPackage) (Package, error) {
	now := svc.now()
	pkg := Package{
		ID:          uuid.New().String(),
		Title:       np.Title,
		Version:     np.Version,
		ContentRoot: np.ContentRoot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	pkg, err := svc.repo.CreatePackage(ctx, pkg)
	return pkg, errors.Wrap(err, "creating package")
}

func (svc *Service) GetPackage(ctx context.Context, id string) (Package, error) {
	return svc.repo.GetPackage(ctx, id)
}

// ResolveManifest fills in the entry point and version of a package from its manifest.
// A package is resolved at most once, later calls return the cached result.
func (svc *Service) ResolveManifest(ctx context.Context, id string) (Package, error) {
	pkg, err := svc.repo.GetPackage(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if pkg.EntryPath != "" {
		return pkg, nil
	}
	if svc.resolver == nil {
		return Package{}, errors.Wrap(ErrManifestNotFound, "no manifest resolver")
	}

	m, err := svc.resolver.Resolve(ctx, pkg)
	if err != nil {
		return Package{}, errors.Wrapf(err, "resolving manifest of package %s", pkg.ID)
	}
	pkg.EntryPath = m.EntryPath
	if m.Version.IsValid() {
		pkg.Version = m.Version
	}
	pkg.UpdatedAt = svc.now()

	pkg, err = svc.repo.UpdatePackage(ctx, pkg)
	return pkg, errors.Wrap(err, "updating package")
}

// Sessions

// ResolveSession returns the active session of the pair, creating the next attempt when none exists.
// Concurrent calls for the same pair in this process share one lookup. Calls racing from other
// processes are reconciled by the repository's uniqueness constraints: the loser looks up again.
func (svc *Service) ResolveSession(ctx context.Context, packageID, userID string) (Session, error) {
	if core.CleanString(userID) == "" {
		return Session{}, core.NewValidationError(errors.New("learner required"), core.FieldError{Field: "user_id", Error: "this field is required"})
	}

	key := fmt.Sprintf("%d:%s|%s", len(packageID), packageID, userID)
	v, err, _ := svc.group.Do(key, func() (interface{}, error) {
		return svc.resolveSession(ctx, packageID, userID)
	})
	if err != nil {
		return Session{}, err
	}
	// the result may be shared with other callers
	return v.(Session).Clone(), nil
}

func (svc *Service) resolveSession(ctx context.Context, packageID, userID string) (Session, error) {
	if _, err := svc.repo.GetPackage(ctx, packageID); err != nil {
		return Session{}, err
	}

	for i := 0; i < maxResolveAttempts; i++ {
		sess, err := svc.repo.GetActiveSession(ctx, packageID, userID)
		if err == nil {
			svc.metrics.ObserveResolve(ResolveResumed)
			return sess, nil
		}
		if errors.Cause(err) != ErrSessionNotFound {
			return Session{}, errors.Wrap(err, "finding active session")
		}

		attempt := 1
		latest, err := svc.repo.GetLatestSession(ctx, packageID, userID)
		switch {
		case err == nil:
			attempt = latest.Attempt + 1
		case errors.Cause(err) != ErrSessionNotFound:
			return Session{}, errors.Wrap(err, "finding latest session")
		}

		now := svc.now()
		sess, err = svc.repo.CreateSession(ctx, Session{
			ID:        uuid.New().String(),
			PackageID: packageID,
			UserID:    userID,
			Attempt:   attempt,
			Status:    StatusNotStarted,
			Data:      map[string]string{},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil {
			svc.metrics.ObserveResolve(ResolveCreated)
			return sess, nil
		}
		if errors.Cause(err) != ErrSessionConflict {
			return Session{}, errors.Wrap(err, "creating session")
		}
		// lost a race against another resolver: the winner's session is found on the next lookup
		svc.metrics.ObserveResolve(ResolveConflict)
	}
	return Session{}, errors.Wrap(ErrSessionConflict, "resolving session")
}

// BeginAttempt marks a not yet started session as in progress.
func (svc *Service) BeginAttempt(ctx context.Context, sessionID string) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !sess.Begin(svc.now()) {
		return sess, nil
	}
	sess.UpdatedAt = svc.now()
	sess, err = svc.repo.UpdateSession(ctx, sess)
	return sess, errors.Wrap(err, "beginning attempt")
}

// Commit persists the in-memory state of a session. It always writes, even when nothing changed.
func (svc *Service) Commit(ctx context.Context, sess Session) (Session, error) {
	sess.UpdatedAt = svc.now()
	saved, err := svc.repo.UpdateSession(ctx, sess)
	svc.metrics.ObserveCommit(err)
	if err != nil {
		return Session{}, errors.Wrap(err, "committing session")
	}
	return saved, nil
}

func (svc *Service) SessionByID(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

// LatestSession returns the most recent session of a learner on a package.
func (svc *Service) LatestSession(ctx context.Context, packageID, userID string) (Session, error) {
	return svc.repo.GetLatestSession(ctx, packageID, userID)
}

func (svc *Service) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	filter.Ordering = core.AllowedOrderings(filter.Ordering, SessionOrderingFields...)
	sessions, err := svc.repo.QuerySessions(ctx, filter)
	return sessions, errors.Wrap(err, "querying sessions")
}
