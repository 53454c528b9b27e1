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

type sessionDoc struct {
	ID        model.SessionID     `firestore:"ID"`
	CaseID    model.CaseID        `firestore:"CaseID"`
	Sequence  int                 `firestore:"Sequence"`
	Status    types.SessionStatus `firestore:"Status"`
	StartedAt time.Time           `firestore:"StartedAt"`
	EndedAt   *time.Time          `firestore:"EndedAt"`
}

func toSessionDoc(s *model.Session) *sessionDoc {
	return &sessionDoc{
		ID:        s.ID,
		CaseID:    s.CaseID,
		Sequence:  s.Sequence,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}

func (d *sessionDoc) toModel() *model.Session {
	return &model.Session{
		ID:        d.ID,
		CaseID:    d.CaseID,
		Sequence:  d.Sequence,
		Status:    d.Status,
		StartedAt: d.StartedAt,
		EndedAt:   d.EndedAt,
	}
}

// caseSessionsDoc is the per-case pointer that serializes session creation.
// ActiveSessionID is empty while no session is active.
type caseSessionsDoc struct {
	ActiveSessionID model.SessionID `firestore:"ActiveSessionID"`
	LastSequence    int             `firestore:"LastSequence"`
}

type sessionRepository struct {
	base
}

func (r *sessionRepository) GetOrCreateActive(ctx context.Context, caseID model.CaseID, now time.Time) (*model.Session, bool, error) {
	pointerRef := r.collection(collectionCaseSessions).Doc(string(caseID))

	var (
		result  *model.Session
		created bool
	)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result, created = nil, false

		var pointer caseSessionsDoc
		snap, err := tx.Get(pointerRef)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return goerr.Wrap(err, "failed to read session pointer")
		default:
			if err := snap.DataTo(&pointer); err != nil {
				return goerr.Wrap(err, "failed to unmarshal session pointer")
			}
		}

		if pointer.ActiveSessionID != "" {
			activeSnap, err := tx.Get(r.collection(collectionSessions).Doc(string(pointer.ActiveSessionID)))
			if err != nil {
				return goerr.Wrap(err, "failed to read active session", goerr.V(model.SessionIDKey, pointer.ActiveSessionID))
			}
			var d sessionDoc
			if err := activeSnap.DataTo(&d); err != nil {
				return goerr.Wrap(err, "failed to unmarshal session")
			}
			if d.Status == types.SessionStatusActive {
				result = d.toModel()
				return nil
			}
		}

		session := &model.Session{
			ID:        model.NewSessionID(),
			CaseID:    caseID,
			Sequence:  pointer.LastSequence + 1,
			Status:    types.SessionStatusActive,
			StartedAt: now.UTC(),
		}
		if err := tx.Create(r.collection(collectionSessions).Doc(string(session.ID)), toSessionDoc(session)); err != nil {
			return goerr.Wrap(err, "failed to create session")
		}
		if err := tx.Set(pointerRef, &caseSessionsDoc{
			ActiveSessionID: session.ID,
			LastSequence:    session.Sequence,
		}); err != nil {
			return goerr.Wrap(err, "failed to update session pointer")
		}

		result, created = session, true
		return nil
	})
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to get or create active session", goerr.V(model.CaseIDKey, caseID))
	}

	return result, created, nil
}

func (r *sessionRepository) Get(ctx context.Context, id model.SessionID) (*model.Session, error) {
	doc, err := r.collection(collectionSessions).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V(model.SessionIDKey, id))
	}

	var d sessionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal session", goerr.V(model.SessionIDKey, id))
	}
	return d.toModel(), nil
}

func (r *sessionRepository) FindActive(ctx context.Context, caseID model.CaseID) (*model.Session, error) {
	iter := r.collection(collectionSessions).
		Where("CaseID", "==", string(caseID)).
		Where("Status", "==", string(types.SessionStatusActive)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query active session", goerr.V(model.CaseIDKey, caseID))
	}

	var d sessionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal session")
	}
	return d.toModel(), nil
}

func (r *sessionRepository) List(ctx context.Context, caseID model.CaseID) ([]*model.Session, error) {
	iter := r.collection(collectionSessions).
		Where("CaseID", "==", string(caseID)).
		OrderBy("Sequence", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	sessions := make([]*model.Session, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate sessions", goerr.V(model.CaseIDKey, caseID))
		}

		var d sessionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal session")
		}
		sessions = append(sessions, d.toModel())
	}

	return sessions, nil
}

func (r *sessionRepository) Complete(ctx context.Context, id model.SessionID, endedAt time.Time) (*model.Session, error) {
	sessionRef := r.collection(collectionSessions).Doc(string(id))

	var result *model.Session
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(sessionRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
			}
			return goerr.Wrap(err, "failed to read session", goerr.V(model.SessionIDKey, id))
		}

		var d sessionDoc
		if err := snap.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal session")
		}
		if d.Status != types.SessionStatusActive {
			result = d.toModel()
			return nil
		}

		ended := endedAt.UTC()
		d.Status = types.SessionStatusCompleted
		d.EndedAt = &ended
		if err := tx.Set(sessionRef, &d); err != nil {
			return goerr.Wrap(err, "failed to complete session")
		}

		pointerRef := r.collection(collectionCaseSessions).Doc(string(d.CaseID))
		if err := tx.Set(pointerRef, map[string]any{"ActiveSessionID": ""}, firestore.MergeAll); err != nil {
			return goerr.Wrap(err, "failed to clear session pointer")
		}

		result = d.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *sessionRepository) Archive(ctx context.Context, id model.SessionID) (*model.Session, error) {
	sessionRef := r.collection(collectionSessions).Doc(string(id))

	var result *model.Session
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(sessionRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNotFound, "session not found", goerr.V(model.SessionIDKey, id))
			}
			return goerr.Wrap(err, "failed to read session", goerr.V(model.SessionIDKey, id))
		}

		var d sessionDoc
		if err := snap.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal session")
		}
		if d.Status == types.SessionStatusActive {
			return goerr.Wrap(model.ErrValidation, "active session cannot be archived", goerr.V(model.SessionIDKey, id))
		}

		d.Status = types.SessionStatusArchived
		if err := tx.Update(sessionRef, []firestore.Update{{Path: "Status", Value: d.Status}}); err != nil {
			return goerr.Wrap(err, "failed to archive session", goerr.V(model.SessionIDKey, id))
		}
		result = d.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
