package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultKeepRecentSessions is the number of newest sessions CleanupOldSessions leaves untouched
const DefaultKeepRecentSessions = 5

type SessionUseCase struct {
	repo  interfaces.Repository
	now   func() time.Time
	locks keyedMutex
}

func NewSessionUseCase(repo interfaces.Repository, now func() time.Time) *SessionUseCase {
	return &SessionUseCase{repo: repo, now: now}
}

// GetOrCreateSession returns the active session of a case, starting a new one
// with the next sequence number when none is active.
func (uc *SessionUseCase) GetOrCreateSession(ctx context.Context, caseID model.CaseID) (*model.Session, error) {
	if _, err := uc.repo.Case().Get(ctx, caseID); err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, caseID))
	}

	unlock := uc.locks.Lock(string(caseID))
	defer unlock()

	session, created, err := uc.repo.Session().GetOrCreateActive(ctx, caseID, uc.now())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get or create session", goerr.V(model.CaseIDKey, caseID))
	}
	if created {
		logging.From(ctx).Info("session started",
			"case_id", caseID,
			"session_id", session.ID,
			"sequence", session.Sequence,
		)
	}
	return session, nil
}

func (uc *SessionUseCase) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s, err := uc.repo.Session().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session", goerr.V(model.SessionIDKey, id))
	}
	return s, nil
}

// CompleteSession closes an active session. Completing an already completed
// session returns it unchanged.
func (uc *SessionUseCase) CompleteSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s, err := uc.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsActive() {
		return s, nil
	}

	completed, err := uc.repo.Session().Complete(ctx, id, uc.now())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to complete session", goerr.V(model.SessionIDKey, id))
	}
	return completed, nil
}

func (uc *SessionUseCase) ListSessions(ctx context.Context, caseID model.CaseID) ([]*model.Session, error) {
	sessions, err := uc.repo.Session().List(ctx, caseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions", goerr.V(model.CaseIDKey, caseID))
	}
	return sessions, nil
}

// SessionSummary counts the memory blocks of a session per type
func (uc *SessionUseCase) SessionSummary(ctx context.Context, id model.SessionID) (*model.SessionSummary, error) {
	s, err := uc.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	blocks, err := uc.repo.MemoryBlock().ListBySession(ctx, id, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list session blocks", goerr.V(model.SessionIDKey, id))
	}

	summary := &model.SessionSummary{
		SessionID: s.ID,
		Sequence:  s.Sequence,
		Status:    s.Status,
		Counts:    make(map[types.BlockType]int, len(types.AllBlockTypes())),
	}
	for _, t := range types.AllBlockTypes() {
		summary.Counts[t] = 0
	}
	for _, b := range blocks {
		summary.Counts[b.Type]++
		summary.Total++
	}
	return summary, nil
}

// CleanupOldSessions archives every completed session except the newest
// keepRecent ones and returns how many were archived. The active session is never touched.
func (uc *SessionUseCase) CleanupOldSessions(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error) {
	if keepRecent < 0 {
		return 0, goerr.Wrap(model.ErrValidation, "keepRecent must not be negative", goerr.V("keep_recent", keepRecent))
	}

	sessions, err := uc.ListSessions(ctx, caseID)
	if err != nil {
		return 0, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Sequence > sessions[j].Sequence
	})
	if len(sessions) <= keepRecent {
		return 0, nil
	}

	archived := 0
	for _, s := range sessions[keepRecent:] {
		if s.Status != types.SessionStatusCompleted {
			continue
		}
		if _, err := uc.repo.Session().Archive(ctx, s.ID); err != nil {
			return archived, goerr.Wrap(err, "failed to archive session", goerr.V(model.SessionIDKey, s.ID))
		}
		archived++
	}

	if archived > 0 {
		logging.From(ctx).Info("archived old sessions", "case_id", caseID, "count", archived)
	}
	return archived, nil
}

// keyedMutex serializes work per key without holding locks for unrelated keys
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
