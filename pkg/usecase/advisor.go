package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

const advisorSystemPrompt = `You are a legal advisor for Minnesota Conciliation Court cases. Provide clear, actionable advice based on the case context. Ask clarifying questions when needed. Suggest next steps and identify gaps in the case.`

// ErrAdvisorUnavailable is returned when no LLM client is configured
var ErrAdvisorUnavailable = goerr.Wrap(model.ErrNotConfigured, "advisor has no LLM client")

// AdvisorUseCase answers free-form questions about a case from its memory and keeps the chat history
type AdvisorUseCase struct {
	repo     interfaces.Repository
	llm      gollem.LLMClient
	memory   *MemoryUseCase
	workflow *WorkflowUseCase
	config   AdvisorConfig
	now      func() time.Time
}

func NewAdvisorUseCase(repo interfaces.Repository, llm gollem.LLMClient, memory *MemoryUseCase, workflow *WorkflowUseCase, cfg AdvisorConfig, now func() time.Time) *AdvisorUseCase {
	return &AdvisorUseCase{
		repo:     repo,
		llm:      llm,
		memory:   memory,
		workflow: workflow,
		config:   cfg,
		now:      now,
	}
}

// AdvisorReply pairs a stored question with the stored answer
type AdvisorReply struct {
	Question *model.ConversationMessage `json:"question"`
	Answer   *model.ConversationMessage `json:"answer"`
}

// SendMessage stores the user's message, asks the model with the case memory and
// the turns before it as context, and stores the answer. The question stays recorded
// even when the model call fails.
func (uc *AdvisorUseCase) SendMessage(ctx context.Context, caseID model.CaseID, message string, includeContext bool) (*AdvisorReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, goerr.Wrap(model.ErrValidation, "message is empty")
	}
	if uc.llm == nil {
		return nil, ErrAdvisorUnavailable
	}
	if _, err := uc.repo.Case().Get(ctx, caseID); err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, caseID))
	}

	history, err := uc.repo.Conversation().Recent(ctx, caseID, uc.config.HistoryLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load conversation history", goerr.V(model.CaseIDKey, caseID))
	}

	question, err := uc.repo.Conversation().Append(ctx, &model.ConversationMessage{
		CaseID:    caseID,
		Role:      types.MessageRoleUser,
		Content:   message,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store question", goerr.V(model.CaseIDKey, caseID))
	}

	var memoryContext string
	var used []types.BlockType
	if includeContext {
		memoryContext, used, err = uc.BuildContext(ctx, caseID, message)
		if err != nil {
			return nil, err
		}
	}

	text, err := uc.generate(ctx, memoryContext, history, question)
	if err != nil {
		return nil, err
	}

	answer, err := uc.repo.Conversation().Append(ctx, &model.ConversationMessage{
		CaseID:      caseID,
		Role:        types.MessageRoleAssistant,
		Content:     text,
		ContextUsed: used,
		CreatedAt:   uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store answer", goerr.V(model.CaseIDKey, caseID))
	}

	logging.From(ctx).Info("advisor answered",
		"case_id", caseID,
		"context_types", used,
		"history", len(history))

	return &AdvisorReply{Question: question, Answer: answer}, nil
}

// BuildContext formats the memory relevant to query across every session of
// the case. A blank query falls back to the newest blocks of the case. It also
// returns the block types that made it into the context.
func (uc *AdvisorUseCase) BuildContext(ctx context.Context, caseID model.CaseID, query string) (string, []types.BlockType, error) {
	var blocks []*model.MemoryBlock
	if q := strings.TrimSpace(query); q != "" {
		hits, err := uc.memory.Search(ctx, model.MemorySearch{
			Query: q,
			Scope: model.CaseScope(caseID),
			Limit: uc.config.SearchLimit,
		})
		if err != nil {
			return "", nil, goerr.Wrap(err, "failed to search case memory", goerr.V(model.CaseIDKey, caseID))
		}
		for _, hit := range hits {
			blocks = append(blocks, hit.Block)
		}
	} else {
		found, err := uc.memory.CaseContext(ctx, caseID, nil, 0)
		if err != nil {
			return "", nil, err
		}
		blocks = found
	}
	if len(blocks) == 0 {
		return "", nil, nil
	}

	var used []types.BlockType
	for _, t := range types.AllBlockTypes() {
		if slices.ContainsFunc(blocks, func(b *model.MemoryBlock) bool { return b.Type == t }) {
			used = append(used, t)
		}
	}

	text := FormatMemoryContext(blocks)
	if len([]rune(text)) > uc.config.ContextWindow {
		text = TruncateForContext(text, uc.config.ContextWindow) + "\n\n[Context truncated.]"
	}
	return text, used, nil
}

func (uc *AdvisorUseCase) generate(ctx context.Context, memoryContext string, history []*model.ConversationMessage, question *model.ConversationMessage) (string, error) {
	var prompt strings.Builder
	if memoryContext != "" {
		prompt.WriteString("## Case context (use this to inform your advice)\n\n" + memoryContext + "\n\n")
	}

	var transcript strings.Builder
	for _, m := range history {
		speaker := "User"
		if m.Role == types.MessageRoleAssistant {
			speaker = "Advisor"
		}
		fmt.Fprintf(&transcript, "%s: %s\n\n", speaker, m.Content)
	}
	if transcript.Len() > 0 {
		prompt.WriteString("## Conversation so far\n\n" + transcript.String())
	}
	prompt.WriteString("User: " + question.Content)

	var answer string
	_, err := retry.Do(ctx, uc.workflow.config.Retry, retry.Options{
		Retryable: func(err error) bool {
			return model.KindOf(err) == types.ErrorKindTransientService
		},
		OnRetry: func(a retry.Attempt) {
			logging.From(ctx).Warn("advisor call failed, retrying", "attempt", a.Number, "wait", a.Wait, "error", a.Err)
		},
	}, func(ctx context.Context, attempt int) error {
		session, err := uc.llm.NewSession(ctx, gollem.WithSessionSystemPrompt(advisorSystemPrompt))
		if err != nil {
			return classifyServiceError(err, "failed to create advisor session")
		}
		resp, err := session.GenerateContent(ctx, gollem.Text(prompt.String()))
		if err != nil {
			return classifyServiceError(err, "failed to generate advice")
		}
		if resp == nil {
			return goerr.New("advisor returned no response")
		}
		answer = strings.TrimSpace(strings.Join(resp.Texts, ""))
		return nil
	})
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", goerr.New("advisor returned an empty answer")
	}
	return answer, nil
}

// History returns a page of the case conversation, newest first
func (uc *AdvisorUseCase) History(ctx context.Context, caseID model.CaseID, limit, offset int) ([]*model.ConversationMessage, error) {
	if limit < 1 || limit > 100 {
		return nil, goerr.Wrap(model.ErrValidation, "history limit must be between 1 and 100", goerr.V("limit", limit))
	}
	if offset < 0 {
		return nil, goerr.Wrap(model.ErrValidation, "history offset must not be negative", goerr.V("offset", offset))
	}
	msgs, err := uc.repo.Conversation().List(ctx, caseID, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversation", goerr.V(model.CaseIDKey, caseID))
	}
	return msgs, nil
}

// ClearHistory deletes the case conversation and returns how many messages were removed
func (uc *AdvisorUseCase) ClearHistory(ctx context.Context, caseID model.CaseID) (int, error) {
	n, err := uc.repo.Conversation().DeleteByCase(ctx, caseID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to clear conversation", goerr.V(model.CaseIDKey, caseID))
	}
	logging.From(ctx).Info("advisor history cleared", "case_id", caseID, "removed", n)
	return n, nil
}

// Suggestions returns the open questions intake recorded for the case, newest first
func (uc *AdvisorUseCase) Suggestions(ctx context.Context, caseID model.CaseID, limit int) ([]string, error) {
	if limit < 1 || limit > 10 {
		return nil, goerr.Wrap(model.ErrValidation, "suggestion limit must be between 1 and 10", goerr.V("limit", limit))
	}
	blocks, err := uc.memory.CaseContext(ctx, caseID, []types.BlockType{types.BlockTypeQuestion}, limit)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if answered, ok := b.Metadata["answered"].(bool); ok && answered {
			continue
		}
		if s := strings.TrimSpace(b.Content); s != "" {
			result = append(result, s)
		}
	}
	return result, nil
}

// Reanalyze starts a fresh workflow invocation, or a single stage when stage is set
func (uc *AdvisorUseCase) Reanalyze(ctx context.Context, caseID model.CaseID, stage types.Stage) (*RunResult, error) {
	return uc.workflow.RunWorkflow(ctx, caseID, RunOptions{Stage: stage})
}

// classifyServiceError marks rate limits, timeouts and outages as transient
func classifyServiceError(err error, msg string) error {
	if model.IsTransientMessage(err.Error()) {
		return goerr.Wrap(model.ErrTransientService, msg, goerr.V("error", err.Error()))
	}
	return goerr.Wrap(err, msg)
}
