package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// MemoryStore is the memory handle available to stage processors
type MemoryStore interface {
	Create(ctx context.Context, sessionID model.SessionID, blockType types.BlockType, content string, metadata model.Metadata) (*model.MemoryBlock, error)
	Search(ctx context.Context, query model.MemorySearch) ([]*model.ScoredBlock, error)
	Link(ctx context.Context, id model.MemoryBlockID, related []model.MemoryBlockID) (*model.MemoryBlock, error)
	CaseContext(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error)
	ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error)
	Delete(ctx context.Context, id model.MemoryBlockID) error
}

// RuleRetriever is the retrieval handle available to stage processors
type RuleRetriever interface {
	HybridSearch(ctx context.Context, query model.HybridQuery) (*model.HybridResult, error)
}

// ReasoningLogger appends incremental reasoning to a run while it executes
type ReasoningLogger interface {
	LogReasoning(ctx context.Context, runID model.AgentRunID, text string)
}

// StageEnv bundles the collaborators a stage processor may use
type StageEnv struct {
	Memory    MemoryStore
	Rules     RuleRetriever
	Reasoning ReasoningLogger
	Documents DocumentRepository

	// CaseLaw is optional; research skips the web lookup when nil
	CaseLaw    CaseLawSearcher
	Precedents PrecedentRecorder
}

// StageProcessor executes one pipeline stage. Execute must be safe to retry.
type StageProcessor interface {
	Stage() types.Stage
	Execute(ctx context.Context, input *model.StageInput, env StageEnv) (*model.StageOutput, error)
}

// Publisher delivers events to case observers. Publish never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event)
}
