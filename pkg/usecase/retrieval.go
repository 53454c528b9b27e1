package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/service/rules"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// RetrievalUseCase answers rule lookups from two independent sources: the
// in-memory static corpus by keyword and the Rule repository by vector similarity.
type RetrievalUseCase struct {
	repo     interfaces.Repository
	embedder interfaces.Embedder
	corpus   *rules.Corpus
	config   RetrievalConfig
	now      func() time.Time
}

var (
	_ interfaces.RuleRetriever     = &RetrievalUseCase{}
	_ interfaces.PrecedentRecorder = &RetrievalUseCase{}
)

func NewRetrievalUseCase(repo interfaces.Repository, embedder interfaces.Embedder, corpus *rules.Corpus, cfg RetrievalConfig, now func() time.Time) *RetrievalUseCase {
	return &RetrievalUseCase{
		repo:     repo,
		embedder: embedder,
		corpus:   corpus,
		config:   cfg,
		now:      now,
	}
}

// Corpus returns the static rule corpus
func (uc *RetrievalUseCase) Corpus() *rules.Corpus {
	return uc.corpus
}

func (uc *RetrievalUseCase) SearchStatic(query string) []*model.StaticRule {
	return uc.corpus.Search(query)
}

func (uc *RetrievalUseCase) GetStatic(id string) (*model.StaticRule, error) {
	return uc.corpus.Get(id)
}

func (uc *RetrievalUseCase) StaticByCategory(category string) []*model.StaticRule {
	return uc.corpus.ByCategory(category)
}

// HybridSearch runs the keyword and vector paths concurrently and returns both
// result sets without merging them. The static path never depends on the embedder:
// when both paths are requested a vector path failure leaves CaseLaw empty.
func (uc *RetrievalUseCase) HybridSearch(ctx context.Context, query model.HybridQuery) (*model.HybridResult, error) {
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return nil, goerr.Wrap(model.ErrValidation, "retrieval query is empty")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = uc.config.MaxResults
	}
	threshold := uc.config.SimilarityThreshold
	if query.MinSimilarity != nil {
		threshold = *query.MinSimilarity
	}

	result := &model.HybridResult{
		StaticRules: []*model.StaticRule{},
		CaseLaw:     []*model.ScoredRule{},
	}

	eg, ctx := errgroup.WithContext(ctx)

	if query.IncludeStatic {
		eg.Go(func() error {
			static := uc.corpus.Search(text)
			if len(static) > limit {
				static = static[:limit]
			}
			result.StaticRules = static
			return nil
		})
	}

	if query.IncludeCaseLaw {
		eg.Go(func() error {
			hits, err := uc.searchCaseLaw(ctx, text, limit, threshold)
			if err != nil {
				if !query.IncludeStatic {
					return err
				}
				logging.From(ctx).Warn("case law search failed, returning static rules only",
					"error", err,
					"query", text,
				)
				return nil
			}
			result.CaseLaw = hits
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("hybrid search",
		"query", text,
		"static_count", len(result.StaticRules),
		"case_law_count", len(result.CaseLaw),
	)
	return result, nil
}

func (uc *RetrievalUseCase) searchCaseLaw(ctx context.Context, text string, limit int, threshold float64) ([]*model.ScoredRule, error) {
	if uc.embedder == nil {
		return nil, goerr.New("embedder is not configured")
	}
	vec, err := uc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed retrieval query")
	}

	hits, err := uc.repo.Rule().FindSimilar(ctx, vec, model.RuleFilter{
		Types: types.PrecedentRuleTypes(),
		Limit: limit,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search rules")
	}

	filtered := make([]*model.ScoredRule, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity >= threshold {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// RuleTypeFor maps a static corpus category to a rule type
func RuleTypeFor(category string) types.RuleType {
	if category == "procedures" {
		return types.RuleTypeProcedure
	}
	return types.RuleTypeStatute
}

// SeedRules embeds every static rule into the Rule repository, keyed by corpus id.
// Rules already stored with identical content are left alone, so seeding twice is a no-op.
func (uc *RetrievalUseCase) SeedRules(ctx context.Context) (int, error) {
	if uc.embedder == nil {
		return 0, goerr.New("embedder is not configured")
	}

	seeded := 0
	for _, static := range uc.corpus.All() {
		id := model.RuleID(static.ID)
		existing, err := uc.repo.Rule().Get(ctx, id)
		if err != nil && model.KindOf(err) != types.ErrorKindNotFound {
			return seeded, goerr.Wrap(err, "failed to get rule", goerr.V(model.RuleIDKey, id))
		}
		if existing != nil && existing.Title == static.Title && existing.Content == static.Content && len(existing.Embedding) > 0 {
			continue
		}

		vec, err := uc.embedder.Embed(ctx, static.Title+"\n"+static.Content)
		if err != nil {
			return seeded, goerr.Wrap(err, "failed to embed rule", goerr.V(model.RuleIDKey, id))
		}

		if _, err := uc.repo.Rule().Put(ctx, &model.Rule{
			ID:           id,
			Type:         RuleTypeFor(static.Category),
			Title:        static.Title,
			Content:      static.Content,
			Jurisdiction: uc.corpusJurisdiction(),
			Source:       static.Source,
			Category:     static.Category,
			Embedding:    vec,
			CreatedAt:    uc.now(),
		}); err != nil {
			return seeded, goerr.Wrap(err, "failed to store rule", goerr.V(model.RuleIDKey, id))
		}
		seeded++
	}

	logging.From(ctx).Info("seeded static rules", "count", seeded, "version", uc.corpus.Version())
	return seeded, nil
}

// AddRuleInput describes an incrementally added case-law or interpretation record
type AddRuleInput struct {
	Type         types.RuleType
	Title        string
	Content      string
	Jurisdiction string
	Source       string
}

// AddRule embeds and stores a precedent record
func (uc *RetrievalUseCase) AddRule(ctx context.Context, input AddRuleInput) (*model.Rule, error) {
	return uc.putRule(ctx, model.NewRuleID(), input)
}

func (uc *RetrievalUseCase) putRule(ctx context.Context, id model.RuleID, input AddRuleInput) (*model.Rule, error) {
	if !input.Type.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "invalid rule type", goerr.V("rule_type", input.Type))
	}
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" || content == "" {
		return nil, goerr.Wrap(model.ErrValidation, "rule title and content are required")
	}
	if uc.embedder == nil {
		return nil, goerr.New("embedder is not configured")
	}

	vec, err := uc.embedder.Embed(ctx, title+"\n"+content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed rule")
	}

	jurisdiction := strings.TrimSpace(input.Jurisdiction)
	if jurisdiction == "" {
		jurisdiction = uc.corpusJurisdiction()
	}

	rule, err := uc.repo.Rule().Put(ctx, &model.Rule{
		ID:           id,
		Type:         input.Type,
		Title:        title,
		Content:      content,
		Jurisdiction: jurisdiction,
		Source:       strings.TrimSpace(input.Source),
		Embedding:    vec,
		CreatedAt:    uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store rule", goerr.V(model.RuleIDKey, id))
	}
	return rule, nil
}

// RecordCaseLaw stores a precedent found on the web as a case_law rule keyed by
// its URL, so a retried research stage replaces the record instead of adding one.
func (uc *RetrievalUseCase) RecordCaseLaw(ctx context.Context, hit *model.CaseLawHit, jurisdiction string) (*model.Rule, error) {
	if hit == nil || strings.TrimSpace(hit.URL) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "precedent URL is required")
	}
	return uc.putRule(ctx, model.CaseLawRuleID(hit.URL), AddRuleInput{
		Type:         types.RuleTypeCaseLaw,
		Title:        hit.Title,
		Content:      hit.Content,
		Jurisdiction: jurisdiction,
		Source:       hit.URL,
	})
}

func (uc *RetrievalUseCase) corpusJurisdiction() string {
	if j := uc.corpus.Jurisdiction(); j != "" {
		return j
	}
	return uc.config.Jurisdiction
}
