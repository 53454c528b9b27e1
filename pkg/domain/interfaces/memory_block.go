package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// MemoryBlockRepository defines the interface for MemoryBlock persistence and vector lookup
type MemoryBlockRepository interface {
	// Create stores a new block, generating an ID when empty
	Create(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error)

	// Get retrieves a block by ID. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, id model.MemoryBlockID) (*model.MemoryBlock, error)

	// Update replaces content, embedding and metadata of an existing block
	Update(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error)

	// Delete removes a block. Returns model.ErrNotFound when absent.
	Delete(ctx context.Context, id model.MemoryBlockID) error

	// ListBySession returns blocks of a session in creation order, optionally filtered by type
	ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error)

	// ListByCase returns blocks across all sessions of a case, newest first.
	// A non-positive limit returns every block.
	ListByCase(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error)

	// FindSimilar returns up to filter.Limit blocks inside filter.Scope ordered by
	// descending cosine similarity (1 - cosine distance) to embedding.
	FindSimilar(ctx context.Context, embedding []float32, filter model.BlockFilter) ([]*model.ScoredBlock, error)
}
