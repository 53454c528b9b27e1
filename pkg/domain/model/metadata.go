package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Metadata is the type-specific attribute map of a MemoryBlock
type Metadata map[string]any

// Metadata keys shared by every block type
const (
	MetaRelatedBlocks = "related_blocks"
	MetaSource        = "source"
	MetaConfidence    = "confidence"
	MetaRunID         = "run_id"
	MetaWriteKey      = "write_key"
)

// DefaultConfidence is used when a producer does not report a confidence score
const DefaultConfidence = 0.8

type metadataField struct {
	kind     fieldKind
	enum     []string
	fallback string
}

type fieldKind int

const (
	fieldAny fieldKind = iota
	fieldString
	fieldBool
	fieldInt
	fieldScore
	fieldStringList
)

var commonFields = map[string]metadataField{
	MetaRelatedBlocks: {kind: fieldStringList},
	MetaSource:        {kind: fieldString},
	MetaConfidence:    {kind: fieldScore},
	MetaRunID:         {kind: fieldString},
	MetaWriteKey:      {kind: fieldString},
}

var blockFields = map[types.BlockType]map[string]metadataField{
	types.BlockTypeFact: {
		"fact_type":        {kind: fieldString, enum: []string{"claim", "counterclaim", "timeline"}, fallback: "claim"},
		"date_occurred":    {kind: fieldString},
		"parties_involved": {kind: fieldAny},
		"confidence_score": {kind: fieldScore},
	},
	types.BlockTypeEvidence: {
		"evidence_type":       {kind: fieldString, enum: []string{"document", "witness", "physical"}, fallback: "document"},
		"document_id":         {kind: fieldString},
		"relevance_score":     {kind: fieldScore},
		"relevance_rationale": {kind: fieldString},
		"is_document_summary": {kind: fieldBool},
		"key_details":         {kind: fieldAny},
	},
	types.BlockTypeRule: {
		"rule_source":         {kind: fieldString, enum: []string{"statute", "case_law", "court_rule"}, fallback: "statute"},
		"citation":            {kind: fieldString},
		"jurisdiction":        {kind: fieldString},
		"applicability_score": {kind: fieldScore},
	},
	types.BlockTypeQuestion: {
		"question_type":  {kind: fieldString, enum: []string{"clarification", "missing_info", "legal_issue"}, fallback: "clarification"},
		"answered":       {kind: fieldBool},
		"answer_content": {kind: fieldString},
	},
	types.BlockTypeStrategy: {
		"strategy_type":             {kind: fieldString, enum: []string{"legal_argument", "negotiation", "procedural"}, fallback: "legal_argument"},
		"priority":                  {kind: fieldInt},
		"dependencies":              {kind: fieldStringList},
		"confidence_score":          {kind: fieldScore},
		"supporting_evidence_ids":   {kind: fieldStringList},
		"supporting_rule_citations": {kind: fieldStringList},
	},
}

// Clone returns a shallow copy of the map with list values copied
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case []string:
			// slices.Clone keeps an empty list non-nil
			out[k] = slices.Clone(vv)
		case []any:
			out[k] = slices.Clone(vv)
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the string value for key, or "" when absent or not a string
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the numeric value for key
func (m Metadata) Float(key string) (float64, bool) {
	return toFloat(m[key])
}

// RelatedBlocks returns the ids stored under related_blocks
func (m Metadata) RelatedBlocks() []MemoryBlockID {
	ids, _ := toStringList(m[MetaRelatedBlocks])
	out := make([]MemoryBlockID, 0, len(ids))
	for _, id := range ids {
		out = append(out, MemoryBlockID(id))
	}
	return out
}

// NormalizeMetadata keeps only the keys allowed for blockType and coerces their values.
// Unknown keys are dropped, out-of-range scores are clamped into [0, 1] and unknown
// enum values fall back to the type default. A value that cannot be coerced to the
// declared shape yields ErrValidation.
func NormalizeMetadata(blockType types.BlockType, md Metadata) (Metadata, error) {
	fields, ok := blockFields[blockType]
	if !ok {
		return nil, goerr.Wrap(ErrValidation, "unknown block type", goerr.V("block_type", blockType))
	}

	out := Metadata{}
	for key, value := range md {
		field, allowed := fields[key]
		if !allowed {
			field, allowed = commonFields[key]
		}
		if !allowed || value == nil {
			continue
		}

		normalized, err := normalizeField(field, value)
		if err != nil {
			return nil, goerr.Wrap(ErrValidation, "invalid metadata value",
				goerr.V("block_type", blockType),
				goerr.V("key", key),
				goerr.V("reason", err.Error()),
			)
		}
		out[key] = normalized
	}

	return out, nil
}

func normalizeField(field metadataField, value any) (any, error) {
	switch field.kind {
	case fieldString:
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		if len(field.enum) > 0 && !slices.Contains(field.enum, s) {
			return field.fallback, nil
		}
		return s, nil

	case fieldBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected boolean, got %T", value)
		}

	case fieldInt:
		if f, ok := toFloat(value); ok {
			return int(f), nil
		}
		if s, ok := value.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				return n, nil
			}
		}
		return 1, nil

	case fieldScore:
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", value)
		}
		return ClampScore(f), nil

	case fieldStringList:
		list, ok := toStringList(value)
		if !ok {
			return nil, fmt.Errorf("expected list of strings, got %T", value)
		}
		return list, nil
	}

	return value, nil
}

// ClampScore bounds a score to [0, 1], mapping NaN to 0
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ConfidenceFrom reads confidence_score or confidence from raw producer output,
// defaulting to DefaultConfidence.
func ConfidenceFrom(raw map[string]any) float64 {
	for _, key := range []string{"confidence_score", MetaConfidence} {
		if f, ok := toFloat(raw[key]); ok {
			return ClampScore(f)
		}
	}
	return DefaultConfidence
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case nil:
		return nil, true
	case []string:
		return slices.Clone(list), true
	case []MemoryBlockID:
		out := make([]string, 0, len(list))
		for _, id := range list {
			out = append(out, string(id))
		}
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out, true
	default:
		return nil, false
	}
}
