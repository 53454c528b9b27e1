package model_test

import (
	"testing"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/gt"
)

func TestNewIDs(t *testing.T) {
	id1 := model.NewMemoryBlockID()
	id2 := model.NewMemoryBlockID()

	gt.Value(t, string(id1)).NotEqual("")
	gt.Value(t, id1).NotEqual(id2)
	gt.Value(t, model.NewCaseID()).NotEqual(model.NewCaseID())
}

func TestSearchScope(t *testing.T) {
	gt.Bool(t, model.SessionScope("s1").IsValid()).True()
	gt.Bool(t, model.CaseScope("c1").IsValid()).True()
	gt.Bool(t, model.SearchScope{}.IsValid()).False()
	gt.Bool(t, model.SearchScope{SessionID: "s1", CaseID: "c1"}.IsValid()).False()
}
