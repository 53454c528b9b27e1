package model_test

import (
	"errors"
	"testing"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func TestNormalizeMetadata(t *testing.T) {
	t.Run("drops keys not allowed for the block type", func(t *testing.T) {
		md, err := model.NormalizeMetadata(types.BlockTypeFact, model.Metadata{
			"fact_type":   "timeline",
			"citation":    "MN Stat. § 491A.01",
			"unknown_key": 42,
			"source":      "intake",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, md["fact_type"]).Equal("timeline")
		gt.Value(t, md["source"]).Equal("intake")
		_, hasCitation := md["citation"]
		gt.Bool(t, hasCitation).False()
		_, hasUnknown := md["unknown_key"]
		gt.Bool(t, hasUnknown).False()
	})

	t.Run("unknown enum values fall back to the type default", func(t *testing.T) {
		md, err := model.NormalizeMetadata(types.BlockTypeEvidence, model.Metadata{"evidence_type": "hearsay"})
		gt.NoError(t, err).Required()
		gt.Value(t, md["evidence_type"]).Equal("document")

		md, err = model.NormalizeMetadata(types.BlockTypeStrategy, model.Metadata{"strategy_type": "bluff"})
		gt.NoError(t, err).Required()
		gt.Value(t, md["strategy_type"]).Equal("legal_argument")
	})

	t.Run("scores are clamped into the unit interval", func(t *testing.T) {
		md, err := model.NormalizeMetadata(types.BlockTypeRule, model.Metadata{"applicability_score": 1.7})
		gt.NoError(t, err).Required()
		gt.Value(t, md["applicability_score"]).Equal(1.0)

		md, err = model.NormalizeMetadata(types.BlockTypeFact, model.Metadata{"confidence_score": -3})
		gt.NoError(t, err).Required()
		gt.Value(t, md["confidence_score"]).Equal(0.0)
	})

	t.Run("strategy priority and dependencies are coerced", func(t *testing.T) {
		md, err := model.NormalizeMetadata(types.BlockTypeStrategy, model.Metadata{
			"priority":     2.0,
			"dependencies": []any{"file claim", nil, 3},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, md["priority"]).Equal(2)
		gt.Value(t, md["dependencies"]).Equal([]string{"file claim", "3"})
	})

	t.Run("malformed related_blocks is a validation error", func(t *testing.T) {
		_, err := model.NormalizeMetadata(types.BlockTypeFact, model.Metadata{"related_blocks": "abc"})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrValidation)).True()
	})

	t.Run("non-boolean answered is a validation error", func(t *testing.T) {
		_, err := model.NormalizeMetadata(types.BlockTypeQuestion, model.Metadata{"answered": 3})
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrValidation)).True()
	})
}

func TestMetadataRelatedBlocks(t *testing.T) {
	md := model.Metadata{"related_blocks": []any{"a", "b"}}
	gt.Value(t, md.RelatedBlocks()).Equal([]model.MemoryBlockID{"a", "b"})

	clone := md.Clone()
	clone["related_blocks"] = []string{"c"}
	gt.Array(t, md.RelatedBlocks()).Length(2)
}

func TestMetadata_CloneKeepsEmptyLists(t *testing.T) {
	md := model.Metadata{
		"dependencies": []string{},
		"key_details":  []any{},
		"absent":       []string(nil),
	}
	clone := md.Clone()

	deps, ok := clone["dependencies"].([]string)
	gt.Bool(t, ok).True()
	gt.Value(t, deps).NotNil()
	gt.Array(t, deps).Length(0)

	details, ok := clone["key_details"].([]any)
	gt.Bool(t, ok).True()
	gt.Value(t, details).NotNil()

	gt.Value(t, clone["absent"].([]string)).Nil()

	normalized, err := model.NormalizeMetadata(types.BlockTypeStrategy, model.Metadata{"dependencies": []string{}})
	gt.NoError(t, err).Required()
	gt.Value(t, normalized["dependencies"]).Equal([]string{})
}

func TestConfidenceFrom(t *testing.T) {
	gt.Value(t, model.ConfidenceFrom(map[string]any{"confidence_score": 0.4})).Equal(0.4)
	gt.Value(t, model.ConfidenceFrom(map[string]any{"confidence": 2.0})).Equal(1.0)
	gt.Value(t, model.ConfidenceFrom(map[string]any{})).Equal(model.DefaultConfidence)
}
