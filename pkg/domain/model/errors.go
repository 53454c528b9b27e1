package model

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Sentinel errors, one per error kind. Wrap them with goerr.Wrap to attach context values.
var (
	ErrNotFound         = goerr.New("not found")
	ErrValidation       = goerr.New("validation failed")
	ErrConflict         = goerr.New("conflict")
	ErrTransientService = goerr.New("transient service failure")
	ErrPermanentStage   = goerr.New("stage failed permanently")
	ErrStageTimeout     = goerr.New("stage timed out")
	ErrNotConfigured    = goerr.New("not configured")
)

// Context keys for error values
const (
	CaseIDKey    = "case_id"
	SessionIDKey = "session_id"
	BlockIDKey   = "block_id"
	RuleIDKey    = "rule_id"
	RunIDKey     = "run_id"
	StageKey     = "stage"
)

var transientMarkers = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many requests",
	"resource exhausted",
	"timeout",
	"timed out",
	"temporarily",
	"overloaded",
	"connection reset",
	"connection refused",
	"unavailable",
}

// KindOf classifies err. Unknown errors are treated as permanent stage failures
// unless their message looks like a transient service condition.
func KindOf(err error) types.ErrorKind {
	if err == nil {
		return types.ErrorKindNone
	}

	switch {
	case errors.Is(err, ErrStageTimeout):
		return types.ErrorKindTimeout
	case errors.Is(err, ErrNotFound):
		return types.ErrorKindNotFound
	case errors.Is(err, ErrValidation):
		return types.ErrorKindValidation
	case errors.Is(err, ErrConflict):
		return types.ErrorKindConflict
	case errors.Is(err, ErrPermanentStage):
		return types.ErrorKindPermanentStage
	case errors.Is(err, ErrTransientService):
		return types.ErrorKindTransientService
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ErrorKindTransientService
	}
	if errors.Is(err, context.Canceled) {
		return types.ErrorKindPermanentStage
	}

	if IsTransientMessage(err.Error()) {
		return types.ErrorKindTransientService
	}
	return types.ErrorKindPermanentStage
}

// IsTransientMessage reports whether msg describes a timeout, connection or rate-limit failure
func IsTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
