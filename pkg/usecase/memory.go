package usecase

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

const maxSearchLimit = 100

// MemoryUseCase is the semantic memory store of cases. Every block is embedded
// with the same embedder so similarities stay comparable across the corpus.
type MemoryUseCase struct {
	repo     interfaces.Repository
	embedder interfaces.Embedder
	config   MemoryConfig
	now      func() time.Time
}

var _ interfaces.MemoryStore = &MemoryUseCase{}

func NewMemoryUseCase(repo interfaces.Repository, embedder interfaces.Embedder, cfg MemoryConfig, now func() time.Time) *MemoryUseCase {
	return &MemoryUseCase{
		repo:     repo,
		embedder: embedder,
		config:   cfg,
		now:      now,
	}
}

func (uc *MemoryUseCase) embed(ctx context.Context, text string) ([]float32, error) {
	if uc.embedder == nil {
		return nil, goerr.New("embedder is not configured")
	}
	vec, err := uc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text")
	}
	return vec, nil
}

// Create embeds content and stores it as a new block of the session.
func (uc *MemoryUseCase) Create(ctx context.Context, sessionID model.SessionID, blockType types.BlockType, content string, metadata model.Metadata) (*model.MemoryBlock, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, goerr.Wrap(model.ErrValidation, "block content is empty", goerr.V(model.SessionIDKey, sessionID))
	}
	if !blockType.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "invalid block type", goerr.V("block_type", blockType))
	}

	session, err := uc.repo.Session().Get(ctx, sessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session", goerr.V(model.SessionIDKey, sessionID))
	}

	md, err := model.NormalizeMetadata(blockType, metadata)
	if err != nil {
		return nil, err
	}
	if err := uc.checkRelated(ctx, "", md.RelatedBlocks()); err != nil {
		return nil, err
	}

	vec, err := uc.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	block, err := uc.repo.MemoryBlock().Create(ctx, &model.MemoryBlock{
		SessionID: session.ID,
		CaseID:    session.CaseID,
		Type:      blockType,
		Content:   content,
		Embedding: vec,
		Metadata:  md,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory block", goerr.V(model.SessionIDKey, sessionID))
	}
	return block, nil
}

func (uc *MemoryUseCase) Get(ctx context.Context, id model.MemoryBlockID) (*model.MemoryBlock, error) {
	block, err := uc.repo.MemoryBlock().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory block", goerr.V(model.BlockIDKey, id))
	}
	return block, nil
}

// Update changes content and/or metadata of a block. A changed content is
// re-embedded. A non-nil metadata replaces the whole map.
func (uc *MemoryUseCase) Update(ctx context.Context, id model.MemoryBlockID, content *string, metadata model.Metadata) (*model.MemoryBlock, error) {
	block, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	update := &model.MemoryBlock{
		ID:        block.ID,
		SessionID: block.SessionID,
		CaseID:    block.CaseID,
		Type:      block.Type,
		Content:   block.Content,
		Metadata:  block.Metadata,
		CreatedAt: block.CreatedAt,
		UpdatedAt: uc.now(),
	}

	if content != nil {
		trimmed := strings.TrimSpace(*content)
		if trimmed == "" {
			return nil, goerr.Wrap(model.ErrValidation, "block content is empty", goerr.V(model.BlockIDKey, id))
		}
		if trimmed != block.Content {
			vec, err := uc.embed(ctx, trimmed)
			if err != nil {
				return nil, err
			}
			update.Content = trimmed
			update.Embedding = vec
		}
	}

	if metadata != nil {
		md, err := model.NormalizeMetadata(block.Type, metadata)
		if err != nil {
			return nil, err
		}
		if err := uc.checkRelated(ctx, id, md.RelatedBlocks()); err != nil {
			return nil, err
		}
		update.Metadata = md
	}

	updated, err := uc.repo.MemoryBlock().Update(ctx, update)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update memory block", goerr.V(model.BlockIDKey, id))
	}
	return updated, nil
}

func (uc *MemoryUseCase) Delete(ctx context.Context, id model.MemoryBlockID) error {
	if err := uc.repo.MemoryBlock().Delete(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete memory block", goerr.V(model.BlockIDKey, id))
	}
	return nil
}

// ListBySession returns the blocks of a session in creation order
func (uc *MemoryUseCase) ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error) {
	if _, err := uc.repo.Session().Get(ctx, sessionID); err != nil {
		return nil, goerr.Wrap(err, "failed to get session", goerr.V(model.SessionIDKey, sessionID))
	}
	blocks, err := uc.repo.MemoryBlock().ListBySession(ctx, sessionID, blockTypes)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memory blocks", goerr.V(model.SessionIDKey, sessionID))
	}
	return blocks, nil
}

// Search embeds the query and returns the most similar blocks inside the scope,
// ordered by descending similarity and bounded by the limit.
func (uc *MemoryUseCase) Search(ctx context.Context, query model.MemorySearch) ([]*model.ScoredBlock, error) {
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return nil, goerr.Wrap(model.ErrValidation, "search query is empty")
	}
	if !query.Scope.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "search scope needs exactly one of session or case")
	}
	for _, t := range query.Types {
		if !t.IsValid() {
			return nil, goerr.Wrap(model.ErrValidation, "invalid block type", goerr.V("block_type", t))
		}
	}
	if query.MinSimilarity != nil && (*query.MinSimilarity < -1 || *query.MinSimilarity > 1) {
		return nil, goerr.Wrap(model.ErrValidation, "min similarity must be in [-1, 1]", goerr.V("min_similarity", *query.MinSimilarity))
	}

	limit := query.Limit
	if limit <= 0 {
		limit = uc.config.SearchLimit
	}
	limit = min(limit, maxSearchLimit)

	vec, err := uc.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := uc.repo.MemoryBlock().FindSimilar(ctx, vec, model.BlockFilter{
		Scope: query.Scope,
		Types: query.Types,
		Limit: limit,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory blocks")
	}

	if query.MinSimilarity == nil {
		return hits, nil
	}
	filtered := make([]*model.ScoredBlock, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity >= *query.MinSimilarity {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// Link appends related block ids to the related_blocks metadata of a block.
// Ids already linked are skipped and every id must refer to an existing block.
func (uc *MemoryUseCase) Link(ctx context.Context, id model.MemoryBlockID, related []model.MemoryBlockID) (*model.MemoryBlock, error) {
	block, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.checkRelated(ctx, id, related); err != nil {
		return nil, err
	}

	current := block.Metadata.RelatedBlocks()
	links := make([]string, 0, len(current)+len(related))
	for _, r := range current {
		links = append(links, string(r))
	}
	for _, r := range related {
		if !slices.Contains(links, string(r)) {
			links = append(links, string(r))
		}
	}

	md := block.Metadata.Clone()
	if md == nil {
		md = model.Metadata{}
	}
	md[model.MetaRelatedBlocks] = links

	updated, err := uc.repo.MemoryBlock().Update(ctx, &model.MemoryBlock{
		ID:        block.ID,
		SessionID: block.SessionID,
		CaseID:    block.CaseID,
		Type:      block.Type,
		Content:   block.Content,
		Metadata:  md,
		CreatedAt: block.CreatedAt,
		UpdatedAt: uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to link memory block", goerr.V(model.BlockIDKey, id))
	}
	return updated, nil
}

// RelatedBlocks follows related_blocks one hop. Links to deleted blocks are skipped.
func (uc *MemoryUseCase) RelatedBlocks(ctx context.Context, id model.MemoryBlockID) ([]*model.MemoryBlock, error) {
	block, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var result []*model.MemoryBlock
	for _, relatedID := range block.Metadata.RelatedBlocks() {
		related, err := uc.repo.MemoryBlock().Get(ctx, relatedID)
		if err != nil {
			if model.KindOf(err) == types.ErrorKindNotFound {
				continue
			}
			return nil, goerr.Wrap(err, "failed to get related block", goerr.V(model.BlockIDKey, relatedID))
		}
		result = append(result, related)
	}
	return result, nil
}

// CaseContext returns blocks across every session of a case, newest first
func (uc *MemoryUseCase) CaseContext(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error) {
	if limit <= 0 {
		limit = uc.config.CaseContextLimit
	}
	blocks, err := uc.repo.MemoryBlock().ListByCase(ctx, caseID, blockTypes, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list case blocks", goerr.V(model.CaseIDKey, caseID))
	}
	return blocks, nil
}

// FormatContext renders blocks for a reasoning prompt, truncated to the context window
func (uc *MemoryUseCase) FormatContext(blocks []*model.MemoryBlock) string {
	return TruncateForContext(FormatMemoryContext(blocks), uc.config.ContextWindow)
}

func (uc *MemoryUseCase) checkRelated(ctx context.Context, self model.MemoryBlockID, related []model.MemoryBlockID) error {
	for _, r := range related {
		if r == "" {
			return goerr.Wrap(model.ErrValidation, "related block id is empty")
		}
		if self != "" && r == self {
			return goerr.Wrap(model.ErrValidation, "block cannot be linked to itself", goerr.V(model.BlockIDKey, self))
		}
		if _, err := uc.repo.MemoryBlock().Get(ctx, r); err != nil {
			if model.KindOf(err) == types.ErrorKindNotFound {
				return goerr.Wrap(model.ErrValidation, "related block does not exist", goerr.V(model.BlockIDKey, r))
			}
			return goerr.Wrap(err, "failed to check related block", goerr.V(model.BlockIDKey, r))
		}
	}
	return nil
}

// FormatMemoryContext groups blocks by type under markdown headers, in the
// order fact, evidence, strategy, rule, question.
func FormatMemoryContext(blocks []*model.MemoryBlock) string {
	byType := make(map[types.BlockType][]*model.MemoryBlock)
	for _, b := range blocks {
		byType[b.Type] = append(byType[b.Type], b)
	}

	var sb strings.Builder
	for _, t := range types.AllBlockTypes() {
		group, ok := byType[t]
		if !ok {
			continue
		}
		sb.WriteString("## " + t.Title() + "\n")
		for _, b := range group {
			sb.WriteString("- " + b.Content + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// TruncateForContext cuts text to at most maxChars runes, preferring a sentence
// or line boundary in the second half of the window.
func TruncateForContext(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	truncated := string(runes[:maxChars])
	cut := max(strings.LastIndex(truncated, "."), strings.LastIndex(truncated, "\n"))
	if cut >= 0 && len([]rune(truncated[:cut])) > maxChars/2 {
		return truncated[:cut+1]
	}
	return strings.TrimRightFunc(truncated, isSpace) + "..."
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
