package worker

import (
	"context"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// CaseLister lists every case the worker sweeps
type CaseLister interface {
	ListCases(ctx context.Context) ([]*model.Case, error)
}

// SessionCleaner archives completed sessions beyond the retention count
type SessionCleaner interface {
	CleanupOldSessions(ctx context.Context, caseID model.CaseID, keepRecent int) (int, error)
}

// SessionRetentionWorker periodically archives old completed sessions of every case
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Archiving is idempotent, so overlapping sweeps from several instances are harmless
type SessionRetentionWorker struct {
	cases      CaseLister
	sessions   SessionCleaner
	keepRecent int
	interval   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewSessionRetentionWorker creates a worker that keeps the newest keepRecent sessions per case
func NewSessionRetentionWorker(cases CaseLister, sessions SessionCleaner, keepRecent int, interval time.Duration) *SessionRetentionWorker {
	return &SessionRetentionWorker{
		cases:      cases,
		sessions:   sessions,
		keepRecent: keepRecent,
		interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background sweep loop without blocking the caller
func (w *SessionRetentionWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return goerr.New("retention interval must be positive", goerr.V("interval", w.interval))
	}

	logging.Default().Info("Session retention worker starting",
		"interval", w.interval.String(),
		"keep_recent", w.keepRecent)

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *SessionRetentionWorker) Stop() {
	logging.Default().Info("Session retention worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Session retention worker stopped")
}

func (w *SessionRetentionWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	if _, err := w.Sweep(ctx); err != nil {
		logging.Default().Error("Initial session sweep failed (will retry next interval)",
			"error", err.Error())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				logging.Default().Error("Session sweep failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("Session retention worker context cancelled")
			return
		}
	}
}

// Sweep runs one retention pass over all cases and returns the number of
// archived sessions. A failing case is logged and skipped.
func (w *SessionRetentionWorker) Sweep(ctx context.Context) (int, error) {
	startTime := time.Now()

	cases, err := w.cases.ListCases(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list cases")
	}

	total := 0
	for _, c := range cases {
		n, err := w.sessions.CleanupOldSessions(ctx, c.ID, w.keepRecent)
		total += n
		if err != nil {
			logging.Default().Warn("failed to clean up sessions",
				"case_id", c.ID,
				"error", err.Error())
			continue
		}
	}

	logging.Default().Info("Session sweep completed",
		"cases", len(cases),
		"archived", total,
		"duration", time.Since(startTime).String())

	return total, nil
}
