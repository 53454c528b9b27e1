package usecase

import (
	"context"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/service/rules"
	"github.com/m-mizutani/gollem"
)

type UseCases struct {
	repo       interfaces.Repository
	embedder   interfaces.Embedder
	publisher  interfaces.Publisher
	corpus     *rules.Corpus
	processors []interfaces.StageProcessor
	caseLaw    interfaces.CaseLawSearcher
	llm        gollem.LLMClient
	config     Config
	now        func() time.Time

	Case      *CaseUseCase
	Session   *SessionUseCase
	Memory    *MemoryUseCase
	Retrieval *RetrievalUseCase
	Workflow  *WorkflowUseCase
	Advisor   *AdvisorUseCase
}

type Option func(*UseCases)

// WithEmbedder sets the embedding function shared by memory and rule retrieval
func WithEmbedder(embedder interfaces.Embedder) Option {
	return func(uc *UseCases) {
		uc.embedder = embedder
	}
}

// WithPublisher sets the progress event sink
func WithPublisher(publisher interfaces.Publisher) Option {
	return func(uc *UseCases) {
		uc.publisher = publisher
	}
}

// WithCorpus replaces the built-in static rule corpus
func WithCorpus(corpus *rules.Corpus) Option {
	return func(uc *UseCases) {
		uc.corpus = corpus
	}
}

// WithProcessors sets the stage processors run by the workflow
func WithProcessors(processors ...interfaces.StageProcessor) Option {
	return func(uc *UseCases) {
		uc.processors = processors
	}
}

// WithCaseLawSearcher enables web precedent lookups during research
func WithCaseLawSearcher(searcher interfaces.CaseLawSearcher) Option {
	return func(uc *UseCases) {
		uc.caseLaw = searcher
	}
}

// WithLLMClient sets the model used by the case advisor
func WithLLMClient(llm gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llm = llm
	}
}

// WithConfig sets tuning parameters
func WithConfig(cfg Config) Option {
	return func(uc *UseCases) {
		uc.config = cfg
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:   repo,
		config: DefaultConfig(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.publisher == nil {
		uc.publisher = nopPublisher{}
	}
	if uc.corpus == nil {
		uc.corpus = rules.Default()
	}

	uc.Case = NewCaseUseCase(repo, uc.now)
	uc.Session = NewSessionUseCase(repo, uc.now)
	uc.Memory = NewMemoryUseCase(repo, uc.embedder, uc.config.Memory, uc.now)
	uc.Retrieval = NewRetrievalUseCase(repo, uc.embedder, uc.corpus, uc.config.Retrieval, uc.now)
	uc.Workflow = NewWorkflowUseCase(repo, WorkflowDeps{
		Processors: uc.processors,
		Cases:      uc.Case,
		Sessions:   uc.Session,
		Memory:     uc.Memory,
		Retrieval:  uc.Retrieval,
		Publisher:  uc.publisher,
		CaseLaw:    uc.caseLaw,
	}, uc.config.Workflow, uc.now)
	uc.Advisor = NewAdvisorUseCase(repo, uc.llm, uc.Memory, uc.Workflow, uc.config.Advisor, uc.now)

	return uc
}

type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ *model.Event) {}
