package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestKindOf(t *testing.T) {
	gt.Value(t, model.KindOf(nil)).Equal(types.ErrorKindNone)
	gt.Value(t, model.KindOf(goerr.Wrap(model.ErrNotFound, "session"))).Equal(types.ErrorKindNotFound)
	gt.Value(t, model.KindOf(goerr.Wrap(model.ErrConflict, "busy"))).Equal(types.ErrorKindConflict)
	gt.Value(t, model.KindOf(goerr.Wrap(model.ErrStageTimeout, "slow"))).Equal(types.ErrorKindTimeout)
	gt.Value(t, model.KindOf(errors.New("429: rate limit exceeded"))).Equal(types.ErrorKindTransientService)
	gt.Value(t, model.KindOf(errors.New("model is overloaded"))).Equal(types.ErrorKindTransientService)
	gt.Value(t, model.KindOf(errors.New("invalid JSON in response"))).Equal(types.ErrorKindPermanentStage)
	gt.Value(t, model.KindOf(context.Canceled)).Equal(types.ErrorKindPermanentStage)
	gt.Bool(t, types.ErrorKindTransientService.IsRetryable()).True()
	gt.Bool(t, types.ErrorKindValidation.IsRetryable()).False()
}
