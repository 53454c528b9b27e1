package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Case() CaseRepository
	Session() SessionRepository
	MemoryBlock() MemoryBlockRepository
	Rule() RuleRepository
	AgentRun() AgentRunRepository
	Document() DocumentRepository
	Conversation() ConversationRepository

	// Close releases backend resources
	Close() error
}
