package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*model.Session
}

func newSessionRepository() *sessionRepository {
	return &sessionRepository{
		sessions: make(map[model.SessionID]*model.Session),
	}
}

func copySession(s *model.Session) *model.Session {
	copied := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		copied.EndedAt = &t
	}
	return &copied
}

func (r *sessionRepository) GetOrCreateActive(ctx context.Context, caseID model.CaseID, now time.Time) (*model.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxSeq := 0
	for _, s := range r.sessions {
		if s.CaseID != caseID {
			continue
		}
		if s.IsActive() {
			return copySession(s), false, nil
		}
		if s.Sequence > maxSeq {
			maxSeq = s.Sequence
		}
	}

	created := &model.Session{
		ID:        model.NewSessionID(),
		CaseID:    caseID,
		Sequence:  maxSeq + 1,
		Status:    types.SessionStatusActive,
		StartedAt: now.UTC(),
	}
	r.sessions[created.ID] = created
	return copySession(created), true, nil
}

func (r *sessionRepository) Get(ctx context.Context, id model.SessionID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
	}
	return copySession(s), nil
}

// caseOf returns the owning case of a session without copying
func (r *sessionRepository) caseOf(id model.SessionID) (model.CaseID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return "", false
	}
	return s.CaseID, true
}

func (r *sessionRepository) FindActive(ctx context.Context, caseID model.CaseID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.CaseID == caseID && s.IsActive() {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (r *sessionRepository) List(ctx context.Context, caseID model.CaseID) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Session, 0)
	for _, s := range r.sessions {
		if s.CaseID == caseID {
			result = append(result, copySession(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	return result, nil
}

func (r *sessionRepository) Complete(ctx context.Context, id model.SessionID, endedAt time.Time) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
	}

	if s.IsActive() {
		ended := endedAt.UTC()
		s.Status = types.SessionStatusCompleted
		s.EndedAt = &ended
	}
	return copySession(s), nil
}

func (r *sessionRepository) Archive(ctx context.Context, id model.SessionID) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
	}
	if s.IsActive() {
		return nil, goerr.Wrap(model.ErrValidation, "active session cannot be archived", goerr.V(model.SessionIDKey, id))
	}

	s.Status = types.SessionStatusArchived
	return copySession(s), nil
}
