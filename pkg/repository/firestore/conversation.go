package firestore

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// subcollectionMessages holds the advisor chat under each case document
const subcollectionMessages = "messages"

type messageDoc struct {
	ID          model.MessageID   `firestore:"ID"`
	CaseID      model.CaseID      `firestore:"CaseID"`
	Role        types.MessageRole `firestore:"Role"`
	Content     string            `firestore:"Content"`
	ContextUsed []types.BlockType `firestore:"ContextUsed"`
	CreatedAt   time.Time         `firestore:"CreatedAt"`
}

func (d *messageDoc) toModel() *model.ConversationMessage {
	return &model.ConversationMessage{
		ID:          d.ID,
		CaseID:      d.CaseID,
		Role:        d.Role,
		Content:     d.Content,
		ContextUsed: d.ContextUsed,
		CreatedAt:   d.CreatedAt,
	}
}

type conversationRepository struct {
	base
}

func (r *conversationRepository) messages(caseID model.CaseID) *firestore.CollectionRef {
	return r.collection(collectionCases).Doc(string(caseID)).Collection(subcollectionMessages)
}

func (r *conversationRepository) Append(ctx context.Context, msg *model.ConversationMessage) (*model.ConversationMessage, error) {
	created := *msg
	if created.ID == "" {
		created.ID = model.NewMessageID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	d := messageDoc(created)
	if _, err := r.messages(created.CaseID).Doc(string(created.ID)).Create(ctx, &d); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrConflict, "message already exists", goerr.V("message_id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create message",
			goerr.V(model.CaseIDKey, created.CaseID),
			goerr.V("message_id", created.ID))
	}
	return &created, nil
}

func (r *conversationRepository) collect(caseID model.CaseID, iter *firestore.DocumentIterator) ([]*model.ConversationMessage, error) {
	defer iter.Stop()

	messages := make([]*model.ConversationMessage, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages", goerr.V(model.CaseIDKey, caseID))
		}

		var d messageDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal message", goerr.V("doc_id", snap.Ref.ID))
		}
		messages = append(messages, d.toModel())
	}
	return messages, nil
}

func (r *conversationRepository) Recent(ctx context.Context, caseID model.CaseID, limit int) ([]*model.ConversationMessage, error) {
	q := r.messages(caseID).OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	messages, err := r.collect(caseID, q.Documents(ctx))
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *conversationRepository) List(ctx context.Context, caseID model.CaseID, limit, offset int) ([]*model.ConversationMessage, error) {
	q := r.messages(caseID).OrderBy("CreatedAt", firestore.Desc)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.collect(caseID, q.Documents(ctx))
}

func (r *conversationRepository) DeleteByCase(ctx context.Context, caseID model.CaseID) (int, error) {
	const batchSize = 500
	total := 0

	for {
		iter := r.messages(caseID).Limit(batchSize).Documents(ctx)
		writer := r.client.BulkWriter(ctx)
		count := 0

		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				writer.End()
				return total, goerr.Wrap(err, "failed to iterate messages for deletion", goerr.V(model.CaseIDKey, caseID))
			}
			if _, err := writer.Delete(snap.Ref); err != nil {
				iter.Stop()
				writer.End()
				return total, goerr.Wrap(err, "failed to delete message", goerr.V("doc_id", snap.Ref.ID))
			}
			count++
		}
		iter.Stop()
		writer.End()

		total += count
		if count < batchSize {
			return total, nil
		}
	}
}
