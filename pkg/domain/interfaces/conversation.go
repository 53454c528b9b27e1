package interfaces

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
)

// ConversationRepository stores the advisor chat of each case
type ConversationRepository interface {
	// Append stores a message, generating an ID when empty
	Append(ctx context.Context, msg *model.ConversationMessage) (*model.ConversationMessage, error)

	// Recent returns the latest limit messages of a case, oldest first
	Recent(ctx context.Context, caseID model.CaseID, limit int) ([]*model.ConversationMessage, error)

	// List pages through the messages of a case, newest first
	List(ctx context.Context, caseID model.CaseID, limit, offset int) ([]*model.ConversationMessage, error)

	// DeleteByCase removes every message of a case and returns how many were removed
	DeleteByCase(ctx context.Context, caseID model.CaseID) (int, error)
}
