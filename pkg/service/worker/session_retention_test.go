package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/repository/memory"
	"github.com/LalaIAm/case-agent/pkg/service/worker"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/m-mizutani/gt"
)

type mockCaseLister struct {
	listCasesFn func(ctx context.Context) ([]*model.Case, error)
}

func (m *mockCaseLister) ListCases(ctx context.Context) ([]*model.Case, error) {
	return m.listCasesFn(ctx)
}

type mockSessionCleaner struct {
	mu      sync.Mutex
	calls   []model.CaseID
	cleanFn func(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error)
}

func (m *mockSessionCleaner) CleanupOldSessions(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, caseID)
	m.mu.Unlock()
	return m.cleanFn(ctx, caseID, keepRecent)
}

func (m *mockSessionCleaner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestSessionRetentionWorker_Sweep(t *testing.T) {
	ctx := t.Context()
	repo := memory.New()
	uc := usecase.New(repo)

	c, err := uc.Case.CreateCase(ctx, "owner", "Deposit dispute", "Landlord kept my deposit")
	gt.NoError(t, err).Required()

	for range 3 {
		s, err := uc.Session.GetOrCreateSession(ctx, c.ID)
		gt.NoError(t, err).Required()
		_, err = uc.Session.CompleteSession(ctx, s.ID)
		gt.NoError(t, err).Required()
	}
	active, err := uc.Session.GetOrCreateSession(ctx, c.ID)
	gt.NoError(t, err).Required()

	w := worker.NewSessionRetentionWorker(uc.Case, uc.Session, 2, time.Hour)
	archived, err := w.Sweep(ctx)
	gt.NoError(t, err).Required()
	gt.Number(t, archived).Equal(2)

	sessions, err := uc.Session.ListSessions(ctx, c.ID)
	gt.NoError(t, err).Required()
	counts := map[types.SessionStatus]int{}
	for _, s := range sessions {
		counts[s.Status]++
	}
	gt.Number(t, counts[types.SessionStatusArchived]).Equal(2)
	gt.Number(t, counts[types.SessionStatusCompleted]).Equal(1)
	gt.Number(t, counts[types.SessionStatusActive]).Equal(1)

	got, err := uc.Session.GetSession(ctx, active.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Status).Equal(types.SessionStatusActive)

	t.Run("second sweep is a no-op", func(t *testing.T) {
		archived, err := w.Sweep(ctx)
		gt.NoError(t, err).Required()
		gt.Number(t, archived).Equal(0)
	})
}

func TestSessionRetentionWorker_SkipsFailingCase(t *testing.T) {
	lister := &mockCaseLister{
		listCasesFn: func(ctx context.Context) ([]*model.Case, error) {
			return []*model.Case{{ID: "case-a"}, {ID: "case-b"}}, nil
		},
	}
	cleaner := &mockSessionCleaner{
		cleanFn: func(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error) {
			if caseID == "case-a" {
				return 0, errors.New("storage unavailable")
			}
			return 3, nil
		},
	}

	w := worker.NewSessionRetentionWorker(lister, cleaner, 5, time.Hour)
	archived, err := w.Sweep(t.Context())
	gt.NoError(t, err).Required()
	gt.Number(t, archived).Equal(3)
	gt.Number(t, cleaner.callCount()).Equal(2)
}

func TestSessionRetentionWorker_ListFailure(t *testing.T) {
	lister := &mockCaseLister{
		listCasesFn: func(ctx context.Context) ([]*model.Case, error) {
			return nil, errors.New("storage unavailable")
		},
	}
	cleaner := &mockSessionCleaner{
		cleanFn: func(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error) {
			return 0, nil
		},
	}

	w := worker.NewSessionRetentionWorker(lister, cleaner, 5, time.Hour)
	_, err := w.Sweep(t.Context())
	gt.Error(t, err)
	gt.Number(t, cleaner.callCount()).Equal(0)
}

func TestSessionRetentionWorker_StartStop(t *testing.T) {
	lister := &mockCaseLister{
		listCasesFn: func(ctx context.Context) ([]*model.Case, error) {
			return []*model.Case{{ID: "case-a"}}, nil
		},
	}
	cleaner := &mockSessionCleaner{
		cleanFn: func(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error) {
			return 0, nil
		},
	}

	w := worker.NewSessionRetentionWorker(lister, cleaner, 5, 10*time.Millisecond)
	gt.NoError(t, w.Start(t.Context())).Required()

	deadline := time.Now().Add(2 * time.Second)
	for cleaner.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	gt.Bool(t, cleaner.callCount() >= 2).True()
}

func TestSessionRetentionWorker_InvalidInterval(t *testing.T) {
	w := worker.NewSessionRetentionWorker(&mockCaseLister{}, &mockSessionCleaner{}, 5, 0)
	gt.Error(t, w.Start(t.Context()))
}
