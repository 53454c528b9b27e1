package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type conversationRepository struct {
	mu       sync.RWMutex
	messages map[model.CaseID][]*model.ConversationMessage
}

func newConversationRepository() *conversationRepository {
	return &conversationRepository{
		messages: make(map[model.CaseID][]*model.ConversationMessage),
	}
}

func copyMessage(m *model.ConversationMessage) *model.ConversationMessage {
	copied := *m
	copied.ContextUsed = slices.Clone(m.ContextUsed)
	return &copied
}

func (r *conversationRepository) Append(ctx context.Context, msg *model.ConversationMessage) (*model.ConversationMessage, error) {
	created := copyMessage(msg)
	if created.ID == "" {
		created.ID = model.NewMessageID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[created.CaseID] {
		if m.ID == created.ID {
			return nil, goerr.Wrap(model.ErrConflict, "message already exists", goerr.V("message_id", created.ID))
		}
	}
	r.messages[created.CaseID] = append(r.messages[created.CaseID], created)
	return copyMessage(created), nil
}

func (r *conversationRepository) Recent(ctx context.Context, caseID model.CaseID, limit int) ([]*model.ConversationMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[caseID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	result := make([]*model.ConversationMessage, 0, len(all)-start)
	for _, m := range all[start:] {
		result = append(result, copyMessage(m))
	}
	return result, nil
}

func (r *conversationRepository) List(ctx context.Context, caseID model.CaseID, limit, offset int) ([]*model.ConversationMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[caseID]
	result := make([]*model.ConversationMessage, 0)
	for i := len(all) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, copyMessage(all[i]))
	}
	return result, nil
}

func (r *conversationRepository) DeleteByCase(ctx context.Context, caseID model.CaseID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.messages[caseID])
	delete(r.messages, caseID)
	return n, nil
}
