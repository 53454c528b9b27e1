package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// Session is a bounded unit of orchestration activity within a Case.
// At most one session per case is active at a time.
type Session struct {
	ID        SessionID
	CaseID    CaseID
	Sequence  int
	Status    types.SessionStatus
	StartedAt time.Time
	EndedAt   *time.Time
}

// IsActive reports whether the session accepts new work
func (s *Session) IsActive() bool {
	return s.Status == types.SessionStatusActive
}

// SessionSummary reports the number of memory blocks per type recorded in a session
type SessionSummary struct {
	SessionID SessionID               `json:"session_id"`
	Sequence  int                     `json:"sequence"`
	Status    types.SessionStatus     `json:"status"`
	Counts    map[types.BlockType]int `json:"counts"`
	Total     int                     `json:"total"`
}
