package interfaces

import (
	"context"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
)

// SessionRepository defines the interface for Session data access.
// Implementations keep at most one active session per case.
type SessionRepository interface {
	// GetOrCreateActive returns the active session of a case, atomically creating
	// one with the next sequence number when none exists. created reports whether
	// a new session was stored.
	GetOrCreateActive(ctx context.Context, caseID model.CaseID, now time.Time) (session *model.Session, created bool, err error)

	// Get retrieves a session by ID. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, id model.SessionID) (*model.Session, error)

	// FindActive returns the active session of a case, or nil when there is none
	FindActive(ctx context.Context, caseID model.CaseID) (*model.Session, error)

	// List returns the sessions of a case ordered by sequence number
	List(ctx context.Context, caseID model.CaseID) ([]*model.Session, error)

	// Complete marks a session completed and records its end time
	Complete(ctx context.Context, id model.SessionID, endedAt time.Time) (*model.Session, error)

	// Archive retires a completed session. Archiving an active session fails
	// with model.ErrValidation; archived sessions are returned unchanged.
	Archive(ctx context.Context, id model.SessionID) (*model.Session, error)
}
