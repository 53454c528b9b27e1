package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
)

// CaseLawSearcher looks up precedents from an external web source
type CaseLawSearcher interface {
	SearchCaseLaw(ctx context.Context, query model.CaseLawQuery) ([]*model.CaseLawHit, error)
}

// PrecedentRecorder adds precedents found during research to the rule corpus.
// Recording the same URL again replaces the earlier rule.
type PrecedentRecorder interface {
	RecordCaseLaw(ctx context.Context, hit *model.CaseLawHit, jurisdiction string) (*model.Rule, error)
}
