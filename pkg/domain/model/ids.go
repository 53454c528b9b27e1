package model

import (
	"github.com/google/uuid"
)

// CaseID identifies a Case
type CaseID string

// SessionID identifies a Session
type SessionID string

// MemoryBlockID identifies a MemoryBlock
type MemoryBlockID string

// RuleID identifies a Rule. Static rules keep their corpus identifier.
type RuleID string

// AgentRunID identifies an AgentRun
type AgentRunID string

// InvocationID groups the AgentRuns created by one workflow invocation
type InvocationID string

// DocumentID identifies a Document
type DocumentID string

// MessageID identifies a ConversationMessage
type MessageID string

// newTimeOrderedID returns a UUID v7 string, falling back to v4 if the clock source fails
func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func NewCaseID() CaseID { return CaseID(uuid.New().String()) }
func NewSessionID() SessionID { return SessionID(newTimeOrderedID()) }
func NewMemoryBlockID() MemoryBlockID { return MemoryBlockID(newTimeOrderedID()) }
func NewRuleID() RuleID { return RuleID(uuid.New().String()) }
func NewAgentRunID() AgentRunID { return AgentRunID(newTimeOrderedID()) }
func NewInvocationID() InvocationID { return InvocationID(newTimeOrderedID()) }
func NewDocumentID() DocumentID { return DocumentID(uuid.New().String()) }
func NewMessageID() MessageID { return MessageID(newTimeOrderedID()) }

func (id CaseID) String() string { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id MemoryBlockID) String() string { return string(id) }
func (id RuleID) String() string { return string(id) }
func (id AgentRunID) String() string { return string(id) }
func (id InvocationID) String() string { return string(id) }
func (id DocumentID) String() string { return string(id) }
func (id MessageID) String() string { return string(id) }
