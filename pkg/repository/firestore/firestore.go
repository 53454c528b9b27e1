package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

// Collection names. All are top-level and share the optional prefix.
const (
	collectionCases        = "cases"
	collectionCaseSessions = "case_sessions"
	collectionSessions     = "sessions"
	collectionMemoryBlocks = "memory_blocks"
	collectionRules        = "rules"
	collectionAgentRuns    = "agent_runs"
	collectionDocuments    = "documents"
)

// vectorDistanceField receives the cosine distance of FindNearest hits
const vectorDistanceField = "VectorDistance"

// maxNearestLimit is the largest result count Firestore accepts for FindNearest
const maxNearestLimit = 1000

// CollectionNames lists every collection this backend writes, in migration order
func CollectionNames() []string {
	return []string{
		collectionCases,
		collectionCaseSessions,
		collectionSessions,
		collectionMemoryBlocks,
		collectionRules,
		collectionAgentRuns,
		collectionDocuments,
	}
}

type Firestore struct {
	client       *firestore.Client
	caseRepo     *caseRepository
	session      *sessionRepository
	memoryBlock  *memoryBlockRepository
	rule         *ruleRepository
	agentRun     *agentRunRepository
	document     *documentRepository
	conversation *conversationRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix namespaces every collection, used to isolate test runs
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		for _, b := range f.bases() {
			b.prefix = prefix
		}
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var (
		client *firestore.Client
		err    error
	)
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:       client,
		caseRepo:     &caseRepository{base: base{client: client}},
		session:      &sessionRepository{base: base{client: client}},
		memoryBlock:  &memoryBlockRepository{base: base{client: client}},
		rule:         &ruleRepository{base: base{client: client}},
		agentRun:     &agentRunRepository{base: base{client: client}},
		document:     &documentRepository{base: base{client: client}},
		conversation: &conversationRepository{base: base{client: client}},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) bases() []*base {
	return []*base{
		&f.caseRepo.base,
		&f.session.base,
		&f.memoryBlock.base,
		&f.rule.base,
		&f.agentRun.base,
		&f.document.base,
		&f.conversation.base,
	}
}

func (f *Firestore) Case() interfaces.CaseRepository {
	return f.caseRepo
}

func (f *Firestore) Session() interfaces.SessionRepository {
	return f.session
}

func (f *Firestore) MemoryBlock() interfaces.MemoryBlockRepository {
	return f.memoryBlock
}

func (f *Firestore) Rule() interfaces.RuleRepository {
	return f.rule
}

func (f *Firestore) AgentRun() interfaces.AgentRunRepository {
	return f.agentRun
}

func (f *Firestore) Document() interfaces.DocumentRepository {
	return f.document
}

func (f *Firestore) Conversation() interfaces.ConversationRepository {
	return f.conversation
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

type base struct {
	client *firestore.Client
	prefix string
}

func (b *base) collection(name string) *firestore.CollectionRef {
	return b.client.Collection(b.prefix + name)
}

func nearestLimit(limit int) int {
	if limit <= 0 || limit > maxNearestLimit {
		return maxNearestLimit
	}
	return limit
}

// similarityFrom converts the cosine distance Firestore reports into similarity
func similarityFrom(doc *firestore.DocumentSnapshot) float64 {
	v, err := doc.DataAt(vectorDistanceField)
	if err != nil {
		return 0
	}
	switch d := v.(type) {
	case float64:
		return 1 - d
	case int64:
		return 1 - float64(d)
	}
	return 0
}
