package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// MemoryBlock is an atomic unit of recorded knowledge about a case.
// CaseID is denormalized from the owning session so that case-wide search
// does not need a join.
type MemoryBlock struct {
	ID        MemoryBlockID
	SessionID SessionID
	CaseID    CaseID
	Type      types.BlockType
	Content   string
	Embedding []float32
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Copy returns a deep copy of the block
func (b *MemoryBlock) Copy() *MemoryBlock {
	copied := *b
	if b.Embedding != nil {
		copied.Embedding = make([]float32, len(b.Embedding))
		copy(copied.Embedding, b.Embedding)
	}
	copied.Metadata = b.Metadata.Clone()
	return &copied
}

// ScoredBlock is a search hit with its cosine similarity to the query
type ScoredBlock struct {
	Block      *MemoryBlock
	Similarity float64
}

// SearchScope restricts a memory search to one session or to all sessions of a case.
// Exactly one of SessionID and CaseID is set.
type SearchScope struct {
	SessionID SessionID
	CaseID    CaseID
}

// SessionScope returns a scope for a single session
func SessionScope(id SessionID) SearchScope { return SearchScope{SessionID: id} }

// CaseScope returns a scope covering every session of a case
func CaseScope(id CaseID) SearchScope { return SearchScope{CaseID: id} }

// IsValid reports whether exactly one scope target is set
func (s SearchScope) IsValid() bool {
	return (s.SessionID != "") != (s.CaseID != "")
}

// BlockFilter narrows a vector lookup at the repository level
type BlockFilter struct {
	Scope SearchScope
	Types []types.BlockType
	Limit int
}

// MatchesType reports whether t passes the type filter
func (f BlockFilter) MatchesType(t types.BlockType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}

// MemorySearch is the input of a semantic memory search
type MemorySearch struct {
	Query         string
	Scope         SearchScope
	Types         []types.BlockType
	Limit         int
	MinSimilarity *float64
}
