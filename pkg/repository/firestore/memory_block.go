package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// memoryBlockDoc is the Firestore document representation of model.MemoryBlock.
// Embedding is stored as firestore.Vector32 so that FindNearest vector search works.
type memoryBlockDoc struct {
	ID        model.MemoryBlockID `firestore:"ID"`
	SessionID model.SessionID     `firestore:"SessionID"`
	CaseID    model.CaseID        `firestore:"CaseID"`
	Type      types.BlockType     `firestore:"Type"`
	Content   string              `firestore:"Content"`
	Embedding firestore.Vector32  `firestore:"Embedding,omitempty"`
	Metadata  map[string]any      `firestore:"Metadata"`
	CreatedAt time.Time           `firestore:"CreatedAt"`
	UpdatedAt time.Time           `firestore:"UpdatedAt"`
}

func toMemoryBlockDoc(b *model.MemoryBlock) *memoryBlockDoc {
	doc := &memoryBlockDoc{
		ID:        b.ID,
		SessionID: b.SessionID,
		CaseID:    b.CaseID,
		Type:      b.Type,
		Content:   b.Content,
		Metadata:  b.Metadata.Clone(),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if len(b.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(b.Embedding)
	}
	return doc
}

func (d *memoryBlockDoc) toModel() *model.MemoryBlock {
	b := &model.MemoryBlock{
		ID:        d.ID,
		SessionID: d.SessionID,
		CaseID:    d.CaseID,
		Type:      d.Type,
		Content:   d.Content,
		Metadata:  model.Metadata(d.Metadata),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if b.Metadata == nil {
		b.Metadata = model.Metadata{}
	}
	if len(d.Embedding) > 0 {
		b.Embedding = []float32(d.Embedding)
	}
	return b
}

func docToMemoryBlock(doc *firestore.DocumentSnapshot) (*model.MemoryBlock, error) {
	var d memoryBlockDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toModel(), nil
}

type memoryBlockRepository struct {
	base
}

func blockTypeValues(blockTypes []types.BlockType) []string {
	values := make([]string, 0, len(blockTypes))
	for _, t := range blockTypes {
		values = append(values, string(t))
	}
	return values
}

func (r *memoryBlockRepository) Create(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error) {
	created := block.Copy()
	if created.ID == "" {
		created.ID = model.NewMemoryBlockID()
	}
	if created.CaseID == "" {
		sessionDoc, err := r.collection(collectionSessions).Doc(string(created.SessionID)).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, created.SessionID))
			}
			return nil, goerr.Wrap(err, "failed to get session", goerr.V(model.SessionIDKey, created.SessionID))
		}
		caseID, err := sessionDoc.DataAt("CaseID")
		if err != nil {
			return nil, goerr.Wrap(err, "session has no case", goerr.V(model.SessionIDKey, created.SessionID))
		}
		s, _ := caseID.(string)
		created.CaseID = model.CaseID(s)
	}

	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = created.CreatedAt
	}

	docRef := r.collection(collectionMemoryBlocks).Doc(string(created.ID))
	if _, err := docRef.Create(ctx, toMemoryBlockDoc(created)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrConflict, "memory block already exists", goerr.V(model.BlockIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create memory block", goerr.V(model.BlockIDKey, created.ID))
	}

	return created, nil
}

func (r *memoryBlockRepository) Get(ctx context.Context, id model.MemoryBlockID) (*model.MemoryBlock, error) {
	doc, err := r.collection(collectionMemoryBlocks).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get memory block", goerr.V(model.BlockIDKey, id))
	}

	b, err := docToMemoryBlock(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory block", goerr.V(model.BlockIDKey, id))
	}
	return b, nil
}

func (r *memoryBlockRepository) Update(ctx context.Context, block *model.MemoryBlock) (*model.MemoryBlock, error) {
	updatedAt := block.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	updates := []firestore.Update{
		{Path: "Content", Value: block.Content},
		{Path: "Metadata", Value: map[string]any(block.Metadata.Clone())},
		{Path: "UpdatedAt", Value: updatedAt},
	}
	if len(block.Embedding) > 0 {
		updates = append(updates, firestore.Update{Path: "Embedding", Value: firestore.Vector32(block.Embedding)})
	}

	if _, err := r.collection(collectionMemoryBlocks).Doc(string(block.ID)).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, block.ID))
		}
		return nil, goerr.Wrap(err, "failed to update memory block", goerr.V(model.BlockIDKey, block.ID))
	}

	return r.Get(ctx, block.ID)
}

func (r *memoryBlockRepository) Delete(ctx context.Context, id model.MemoryBlockID) error {
	docRef := r.collection(collectionMemoryBlocks).Doc(string(id))
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "memory block not found", goerr.V(model.BlockIDKey, id))
		}
		return goerr.Wrap(err, "failed to delete memory block", goerr.V(model.BlockIDKey, id))
	}
	return nil
}

func (r *memoryBlockRepository) ListBySession(ctx context.Context, sessionID model.SessionID, blockTypes []types.BlockType) ([]*model.MemoryBlock, error) {
	q := r.collection(collectionMemoryBlocks).Where("SessionID", "==", string(sessionID))
	if len(blockTypes) > 0 {
		q = q.Where("Type", "in", blockTypeValues(blockTypes))
	}
	q = q.OrderBy("CreatedAt", firestore.Asc)

	return r.list(ctx, q)
}

func (r *memoryBlockRepository) ListByCase(ctx context.Context, caseID model.CaseID, blockTypes []types.BlockType, limit int) ([]*model.MemoryBlock, error) {
	q := r.collection(collectionMemoryBlocks).Where("CaseID", "==", string(caseID))
	if len(blockTypes) > 0 {
		q = q.Where("Type", "in", blockTypeValues(blockTypes))
	}
	q = q.OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	return r.list(ctx, q)
}

func (r *memoryBlockRepository) list(ctx context.Context, q firestore.Query) ([]*model.MemoryBlock, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	blocks := make([]*model.MemoryBlock, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory blocks")
		}

		b, err := docToMemoryBlock(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory block")
		}
		blocks = append(blocks, b)
	}

	return blocks, nil
}

func (r *memoryBlockRepository) FindSimilar(ctx context.Context, embedding []float32, filter model.BlockFilter) ([]*model.ScoredBlock, error) {
	if !filter.Scope.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "search scope must name exactly one session or case")
	}

	var q firestore.Query
	if filter.Scope.SessionID != "" {
		q = r.collection(collectionMemoryBlocks).Where("SessionID", "==", string(filter.Scope.SessionID))
	} else {
		q = r.collection(collectionMemoryBlocks).Where("CaseID", "==", string(filter.Scope.CaseID))
	}
	if len(filter.Types) > 0 {
		q = q.Where("Type", "in", blockTypeValues(filter.Types))
	}

	vq := q.FindNearest("Embedding", firestore.Vector32(embedding), nearestLimit(filter.Limit),
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: vectorDistanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.ScoredBlock, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory block vector search results")
		}

		b, err := docToMemoryBlock(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory block from vector search")
		}
		results = append(results, &model.ScoredBlock{
			Block:      b,
			Similarity: similarityFrom(doc),
		})
	}

	return results, nil
}
