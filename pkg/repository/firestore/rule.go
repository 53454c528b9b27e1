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

type ruleDoc struct {
	ID           model.RuleID       `firestore:"ID"`
	Type         types.RuleType     `firestore:"Type"`
	Title        string             `firestore:"Title"`
	Content      string             `firestore:"Content"`
	Jurisdiction string             `firestore:"Jurisdiction"`
	Source       string             `firestore:"Source"`
	Category     string             `firestore:"Category"`
	Embedding    firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt    time.Time          `firestore:"CreatedAt"`
}

func toRuleDoc(r *model.Rule) *ruleDoc {
	doc := &ruleDoc{
		ID:           r.ID,
		Type:         r.Type,
		Title:        r.Title,
		Content:      r.Content,
		Jurisdiction: r.Jurisdiction,
		Source:       r.Source,
		Category:     r.Category,
		CreatedAt:    r.CreatedAt,
	}
	if len(r.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(r.Embedding)
	}
	return doc
}

func (d *ruleDoc) toModel() *model.Rule {
	r := &model.Rule{
		ID:           d.ID,
		Type:         d.Type,
		Title:        d.Title,
		Content:      d.Content,
		Jurisdiction: d.Jurisdiction,
		Source:       d.Source,
		Category:     d.Category,
		CreatedAt:    d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		r.Embedding = []float32(d.Embedding)
	}
	return r
}

func docToRule(doc *firestore.DocumentSnapshot) (*model.Rule, error) {
	var d ruleDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toModel(), nil
}

type ruleRepository struct {
	base
}

func ruleTypeValues(ruleTypes []types.RuleType) []string {
	values := make([]string, 0, len(ruleTypes))
	for _, t := range ruleTypes {
		values = append(values, string(t))
	}
	return values
}

func (r *ruleRepository) Put(ctx context.Context, rule *model.Rule) (*model.Rule, error) {
	stored := rule.Copy()
	if stored.ID == "" {
		stored.ID = model.NewRuleID()
	}
	docRef := r.collection(collectionRules).Doc(string(stored.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		switch {
		case status.Code(err) == codes.NotFound:
			stored.CreatedAt = time.Now().UTC()
		case err != nil:
			return goerr.Wrap(err, "failed to read rule")
		default:
			var existing ruleDoc
			if err := snap.DataTo(&existing); err != nil {
				return goerr.Wrap(err, "failed to unmarshal rule")
			}
			stored.CreatedAt = existing.CreatedAt
		}
		return tx.Set(docRef, toRuleDoc(stored))
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to put rule", goerr.V(model.RuleIDKey, stored.ID))
	}

	return stored, nil
}

func (r *ruleRepository) Get(ctx context.Context, id model.RuleID) (*model.Rule, error) {
	doc, err := r.collection(collectionRules).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "rule not found", goerr.V(model.RuleIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get rule", goerr.V(model.RuleIDKey, id))
	}

	rule, err := docToRule(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal rule", goerr.V(model.RuleIDKey, id))
	}
	return rule, nil
}

func (r *ruleRepository) List(ctx context.Context, ruleTypes []types.RuleType) ([]*model.Rule, error) {
	q := r.collection(collectionRules).Query
	if len(ruleTypes) > 0 {
		q = q.Where("Type", "in", ruleTypeValues(ruleTypes))
	}

	iter := q.OrderBy("ID", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	rules := make([]*model.Rule, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate rules")
		}

		rule, err := docToRule(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal rule")
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func (r *ruleRepository) FindSimilar(ctx context.Context, embedding []float32, filter model.RuleFilter) ([]*model.ScoredRule, error) {
	q := r.collection(collectionRules).Query
	if len(filter.Types) > 0 {
		q = q.Where("Type", "in", ruleTypeValues(filter.Types))
	}

	vq := q.FindNearest("Embedding", firestore.Vector32(embedding), nearestLimit(filter.Limit),
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: vectorDistanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.ScoredRule, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate rule vector search results")
		}

		rule, err := docToRule(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal rule from vector search")
		}
		results = append(results, &model.ScoredRule{
			Rule:       rule,
			Similarity: similarityFrom(doc),
		})
	}

	return results, nil
}
