package scorm

import (
	"context"
	"time"

	"github.com/trezcool/masomo-scorm/core"
)

type (
	PackageRepository interface {
		CreatePackage(ctx context.Context, pkg Package, exec ...core.DBExecutor) (Package, error)
		GetPackage(ctx context.Context, id string, exec ...core.DBExecutor) (Package, error)
		UpdatePackage(ctx context.Context, pkg Package, exec ...core.DBExecutor) (Package, error)
	}

	SessionRepository interface {
		// CreateSession inserts a new session. It returns ErrSessionConflict when the pair
		// already holds an active session or the attempt number is taken.
		CreateSession(ctx context.Context, sess Session, exec ...core.DBExecutor) (Session, error)
		GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (Session, error)
		// GetActiveSession returns the not_started or in_progress session of the pair.
		GetActiveSession(ctx context.Context, packageID, userID string, exec ...core.DBExecutor) (Session, error)
		// GetLatestSession returns the session with the highest attempt number of the pair.
		GetLatestSession(ctx context.Context, packageID, userID string, exec ...core.DBExecutor) (Session, error)
		QuerySessions(ctx context.Context, filter SessionFilter, exec ...core.DBExecutor) ([]Session, error)
		// UpdateSession persists the mutable fields of sess.
		// A terminal status already persisted is kept, and so is a set EndedAt.
		UpdateSession(ctx context.Context, sess Session, exec ...core.DBExecutor) (Session, error)
	}

	InteractionRepository interface {
		// AppendInteractions inserts interactions, skipping ids that already exist.
		AppendInteractions(ctx context.Context, interactions []Interaction, exec ...core.DBExecutor) error
		// QueryInteractions returns the most recent interactions of a session, newest first.
		QueryInteractions(ctx context.Context, sessionID string, limit int, exec ...core.DBExecutor) ([]Interaction, error)
		// LastInteractionTimes returns the newest interaction timestamp per session id.
		LastInteractionTimes(ctx context.Context, sessionIDs []string, exec ...core.DBExecutor) (map[string]time.Time, error)
	}

	Repository interface {
		PackageRepository
		SessionRepository
		InteractionRepository
	}
)
