package memory

import (
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is an in-process implementation of interfaces.Repository for development and tests
type Memory struct {
	caseRepo     *caseRepository
	session      *sessionRepository
	memoryBlock  *memoryBlockRepository
	rule         *ruleRepository
	agentRun     *agentRunRepository
	document     *documentRepository
	conversation *conversationRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	sessionRepo := newSessionRepository()
	return &Memory{
		caseRepo:     newCaseRepository(),
		session:      sessionRepo,
		memoryBlock:  newMemoryBlockRepository(sessionRepo),
		rule:         newRuleRepository(),
		agentRun:     newAgentRunRepository(),
		document:     newDocumentRepository(),
		conversation: newConversationRepository(),
	}
}

func (m *Memory) Case() interfaces.CaseRepository {
	return m.caseRepo
}

func (m *Memory) Session() interfaces.SessionRepository {
	return m.session
}

func (m *Memory) MemoryBlock() interfaces.MemoryBlockRepository {
	return m.memoryBlock
}

func (m *Memory) Rule() interfaces.RuleRepository {
	return m.rule
}

func (m *Memory) AgentRun() interfaces.AgentRunRepository {
	return m.agentRun
}

func (m *Memory) Document() interfaces.DocumentRepository {
	return m.document
}

func (m *Memory) Conversation() interfaces.ConversationRepository {
	return m.conversation
}

func (m *Memory) Close() error {
	return nil
}
