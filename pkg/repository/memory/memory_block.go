package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type storedBlock struct {
	block *model.MemoryBlock
	seq   uint64
}

type memoryBlockRepository struct {
	mu       sync.RWMutex
	blocks   map[model.MemoryBlockID]*storedBlock
	seq      uint64
	sessions *sessionRepository
}

func newMemoryBlockRepository(sessions *sessionRepository) *memoryBlockRepository {
	return &memoryBlockRepository{
		blocks:   make(map[model.MemoryBlockID]*storedBlock),
		sessions: sessions,
	}
}

func (r *memoryBlockRepository) Create(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error) {
	created := block.Copy()
	if created.ID == "" {
		created.ID = model.NewMemoryBlockID()
	}
	if created.CaseID == "" {
		caseID, ok := r.sessions.caseOf(created.SessionID)
		if !ok {
			return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, created.SessionID))
		}
		created.CaseID = caseID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blocks[created.ID]; exists {
		return nil, goerr.Wrap(model.ErrConflict, "memory block already exists", goerr.V(model.BlockIDKey, created.ID))
	}

	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = created.CreatedAt
	}

	r.seq++
	r.blocks[created.ID] = &storedBlock{block: created, seq: r.seq}
	return created.Copy(), nil
}

func (r *memoryBlockRepository) Get(ctx context.Context, id model.MemoryBlockID) (*model.MemoryBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.blocks[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, id))
	}
	return stored.block.Copy(), nil
}

func (r *memoryBlockRepository) Update(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.blocks[block.ID]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, block.ID))
	}

	updated := stored.block.Copy()
	updated.Content = block.Content
	if block.Embedding != nil {
		updated.Embedding = append([]float32(nil), block.Embedding...)
	}
	updated.Metadata = block.Metadata.Clone()
	updated.UpdatedAt = block.UpdatedAt
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now().UTC()
	}

	stored.block = updated
	return updated.Copy(), nil
}

func (r *memoryBlockRepository) Delete(ctx context.Context, id model.MemoryBlockID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blocks[id]; !exists {
		return goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, id))
	}
	delete(r.blocks, id)
	return nil
}

func (r *memoryBlockRepository) ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error) {
	filter := model.BlockFilter{Types: blockTypes}
	matched := r.collect(func(b *model.MemoryBlock) bool {
		return b.SessionID == sessionID && filter.MatchesType(b.Type)
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})
	return unwrapBlocks(matched, 0), nil
}

func (r *memoryBlockRepository) ListByCase(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error) {
	filter := model.BlockFilter{Types: blockTypes}
	matched := r.collect(func(b *model.MemoryBlock) bool {
		return b.CaseID == caseID && filter.MatchesType(b.Type)
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq > matched[j].seq
	})
	return unwrapBlocks(matched, limit), nil
}

func (r *memoryBlockRepository) FindSimilar(ctx context.Context, embedding []float32, filter model.BlockFilter) ([]*model.ScoredBlock, error) {
	if !filter.Scope.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "search scope must name exactly one session or case")
	}

	matched := r.collect(func(b *model.MemoryBlock) bool {
		if len(b.Embedding) == 0 || !filter.MatchesType(b.Type) {
			return false
		}
		if filter.Scope.SessionID != "" {
			return b.SessionID == filter.Scope.SessionID
		}
		return b.CaseID == filter.Scope.CaseID
	})

	results := make([]*model.ScoredBlock, 0, len(matched))
	for _, m := range matched {
		results = append(results, &model.ScoredBlock{
			Block:      m.block.Copy(),
			Similarity: cosineSimilarity(embedding, m.block.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (r *memoryBlockRepository) collect(match func(*model.MemoryBlock) bool) []*storedBlock {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*storedBlock
	for _, stored := range r.blocks {
		if match(stored.block) {
			out = append(out, stored)
		}
	}
	return out
}

func unwrapBlocks(stored []*storedBlock, limit int) []*model.MemoryBlock {
	if limit > 0 && limit < len(stored) {
		stored = stored[:limit]
	}
	result := make([]*model.MemoryBlock, 0, len(stored))
	for _, s := range stored {
		result = append(result, s.block.Copy())
	}
	return result
}
