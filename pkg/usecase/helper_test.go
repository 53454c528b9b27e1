package usecase_test

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/repository/memory"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/gt"
)

const testDimension = 64

// bagOfWordsEmbedder hashes lowercase words into a fixed number of buckets.
// Identical text always yields identical vectors.
type bagOfWordsEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *bagOfWordsEmbedder) Dimension() int { return testDimension }

func (e *bagOfWordsEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vec := make([]float32, testDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%testDimension]++
	}
	if len(words) == 0 {
		vec[0] = 1
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func (e *bagOfWordsEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *bagOfWordsEmbedder) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev *model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []*model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.Event(nil), p.events...)
}

func (p *recordingPublisher) OfType(t types.EventType) []*model.Event {
	var result []*model.Event
	for _, ev := range p.Events() {
		if ev.Type == t {
			result = append(result, ev)
		}
	}
	return result
}

// mockProcessor is a stage processor driven by a function field
type mockProcessor struct {
	stage     types.Stage
	executeFn func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error)

	mu    sync.Mutex
	calls int
}

func (p *mockProcessor) Stage() types.Stage { return p.stage }

func (p *mockProcessor) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.executeFn != nil {
		return p.executeFn(ctx, input, env)
	}
	return model.Completed(model.StageResult{"stage": string(p.stage)}), nil
}

func (p *mockProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newProcessors() map[types.Stage]*mockProcessor {
	m := make(map[types.Stage]*mockProcessor)
	for _, s := range types.AllStages() {
		m[s] = &mockProcessor{stage: s}
	}
	return m
}

func processorList(m map[types.Stage]*mockProcessor) []interfaces.StageProcessor {
	var list []interfaces.StageProcessor
	for _, s := range types.AllStages() {
		list = append(list, m[s])
	}
	return list
}

func testConfig() usecase.Config {
	cfg := usecase.DefaultConfig()
	cfg.Workflow.StageTimeout = 5 * time.Second
	cfg.Workflow.Retry = retry.Policy{MaxAttempts: 3}
	return cfg
}

type fixture struct {
	repo       *memory.Memory
	embedder   *bagOfWordsEmbedder
	publisher  *recordingPublisher
	processors map[types.Stage]*mockProcessor
	uc         *usecase.UseCases
}

func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()

	f := &fixture{
		repo:       memory.New(),
		embedder:   &bagOfWordsEmbedder{},
		publisher:  &recordingPublisher{},
		processors: newProcessors(),
	}

	base := []usecase.Option{
		usecase.WithEmbedder(f.embedder),
		usecase.WithPublisher(f.publisher),
		usecase.WithProcessors(processorList(f.processors)...),
		usecase.WithConfig(testConfig()),
	}
	f.uc = usecase.New(f.repo, append(base, opts...)...)
	t.Cleanup(f.uc.Workflow.Wait)
	return f
}

func (f *fixture) newCase(t *testing.T, description string) *model.Case {
	t.Helper()
	c, err := f.uc.Case.CreateCase(context.Background(), "owner-1", "Deposit dispute", description)
	gt.NoError(t, err).Required()
	return c
}

func (f *fixture) newSession(t *testing.T, caseID model.CaseID) *model.Session {
	t.Helper()
	s, err := f.uc.Session.GetOrCreateSession(context.Background(), caseID)
	gt.NoError(t, err).Required()
	return s
}
