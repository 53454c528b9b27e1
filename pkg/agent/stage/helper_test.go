package stage_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/LalaIAm/case-agent/pkg/agent/stage"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/repository/memory"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{"{}"}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)

	mu       sync.Mutex
	sessions int
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	c.mu.Lock()
	c.sessions++
	c.mu.Unlock()
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func (c *mockLLMClient) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}

// respondWith returns a client whose sessions always answer with text
func respondWith(text string) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

// failWith returns a client whose sessions always fail with err
func failWith(err error) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return nil, err
				},
			}, nil
		},
	}
}

// fakeMemory keeps blocks in insertion order and answers CaseContext newest first
type fakeMemory struct {
	mu     sync.Mutex
	blocks []*model.MemoryBlock
	links  map[model.MemoryBlockID][]model.MemoryBlockID
	caseID model.CaseID

	searchFn func(ctx context.Context, query model.MemorySearch) ([]*model.ScoredBlock, error)
	// createErr fails the nth Create call (1-based) when it returns an error
	createErr func(n int) error
	creates   int
}

func newFakeMemory(caseID model.CaseID) *fakeMemory {
	return &fakeMemory{caseID: caseID, links: make(map[model.MemoryBlockID][]model.MemoryBlockID)}
}

func (m *fakeMemory) Create(ctx context.Context, sessionID model.SessionID, blockType types.BlockType, content string, metadata model.Metadata) (*model.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		if err := m.createErr(m.creates); err != nil {
			return nil, err
		}
	}
	b := &model.MemoryBlock{
		ID:        model.NewMemoryBlockID(),
		SessionID: sessionID,
		CaseID:    m.caseID,
		Type:      blockType,
		Content:   content,
		Metadata:  metadata.Clone(),
	}
	m.blocks = append(m.blocks, b)
	return b, nil
}

func (m *fakeMemory) Search(ctx context.Context, query model.MemorySearch) ([]*model.ScoredBlock, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
}

func (m *fakeMemory) Link(ctx context.Context, id model.MemoryBlockID, related []model.MemoryBlockID) (*model.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[id] = append(m.links[id], related...)
	return &model.MemoryBlock{ID: id}, nil
}

func (m *fakeMemory) CaseContext(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.MemoryBlock
	for i := len(m.blocks) - 1; i >= 0; i-- {
		b := m.blocks[i]
		if len(blockTypes) > 0 && !slices.Contains(blockTypes, b.Type) {
			continue
		}
		result = append(result, b)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *fakeMemory) ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.MemoryBlock
	for _, b := range m.blocks {
		if b.SessionID != sessionID {
			continue
		}
		if len(blockTypes) > 0 && !slices.Contains(blockTypes, b.Type) {
			continue
		}
		result = append(result, b)
	}
	return result, nil
}

func (m *fakeMemory) Delete(ctx context.Context, id model.MemoryBlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.blocks {
		if b.ID == id {
			m.blocks = slices.Delete(m.blocks, i, i+1)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *fakeMemory) OfType(t types.BlockType) []*model.MemoryBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.MemoryBlock
	for _, b := range m.blocks {
		if b.Type == t {
			result = append(result, b)
		}
	}
	return result
}

func (m *fakeMemory) Links() map[model.MemoryBlockID][]model.MemoryBlockID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links
}

type mockRules struct {
	hybridSearchFn func(ctx context.Context, query model.HybridQuery) (*model.HybridResult, error)
}

func (r *mockRules) HybridSearch(ctx context.Context, query model.HybridQuery) (*model.HybridResult, error) {
	if r.hybridSearchFn != nil {
		return r.hybridSearchFn(ctx, query)
	}
	return &model.HybridResult{}, nil
}

type fakeCaseLaw struct {
	mu       sync.Mutex
	queries  []model.CaseLawQuery
	searchFn func(ctx context.Context, query model.CaseLawQuery) ([]*model.CaseLawHit, error)
}

func (c *fakeCaseLaw) SearchCaseLaw(ctx context.Context, query model.CaseLawQuery) ([]*model.CaseLawHit, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	if c.searchFn != nil {
		return c.searchFn(ctx, query)
	}
	return nil, nil
}

type fakePrecedents struct {
	mu       sync.Mutex
	recorded map[model.RuleID]*model.CaseLawHit
}

func (p *fakePrecedents) RecordCaseLaw(ctx context.Context, hit *model.CaseLawHit, jurisdiction string) (*model.Rule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recorded == nil {
		p.recorded = make(map[model.RuleID]*model.CaseLawHit)
	}
	id := model.CaseLawRuleID(hit.URL)
	p.recorded[id] = hit
	return &model.Rule{ID: id, Type: types.RuleTypeCaseLaw, Title: hit.Title, Content: hit.Content, Jurisdiction: jurisdiction, Source: hit.URL}, nil
}

func (p *fakePrecedents) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recorded)
}

type recordingReasoning struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingReasoning) LogReasoning(ctx context.Context, runID model.AgentRunID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recordingReasoning) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type fixture struct {
	memory    *fakeMemory
	rules     *mockRules
	reasoning *recordingReasoning
	repo      *memory.Memory
	input     *model.StageInput
}

func newFixture(t *testing.T, description string) *fixture {
	t.Helper()
	c := &model.Case{
		ID:          model.NewCaseID(),
		Title:       "Deposit dispute",
		Description: description,
		Status:      types.CaseStatusActive,
	}
	return &fixture{
		memory:    newFakeMemory(c.ID),
		rules:     &mockRules{},
		reasoning: &recordingReasoning{},
		repo:      memory.New(),
		input: &model.StageInput{
			Case:         c,
			SessionID:    model.NewSessionID(),
			RunID:        model.NewAgentRunID(),
			PriorResults: map[types.Stage]model.StageResult{},
		},
	}
}

func (f *fixture) env() interfaces.StageEnv {
	return interfaces.StageEnv{
		Memory:    f.memory,
		Rules:     f.rules,
		Reasoning: f.reasoning,
		Documents: f.repo.Document(),
	}
}

func (f *fixture) upload(t *testing.T, filename, content string) *model.Document {
	t.Helper()
	doc, err := f.repo.Document().Create(context.Background(), &model.Document{
		CaseID:   f.input.Case.ID,
		Kind:     types.DocumentKindUploaded,
		Type:     types.DocumentTypeEvidence,
		Filename: filename,
		Content:  content,
	})
	gt.NoError(t, err).Required()
	return doc
}

func testConfig() stage.Config {
	return stage.DefaultConfig()
}
