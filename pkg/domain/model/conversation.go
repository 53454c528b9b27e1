package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// ConversationMessage is one turn of the advisor chat of a case.
// ContextUsed lists the memory block types the advisor consulted for an answer.
type ConversationMessage struct {
	ID          MessageID
	CaseID      CaseID
	Role        types.MessageRole
	Content     string
	ContextUsed []types.BlockType
	CreatedAt   time.Time
}
