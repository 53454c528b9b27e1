package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type CaseUseCase struct {
	repo interfaces.Repository
	now  func() time.Time
}

func NewCaseUseCase(repo interfaces.Repository, now func() time.Time) *CaseUseCase {
	return &CaseUseCase{repo: repo, now: now}
}

func (uc *CaseUseCase) CreateCase(ctx context.Context, ownerID, title, description string) (*model.Case, error) {
	now := uc.now()
	c := &model.Case{
		OwnerID:     strings.TrimSpace(ownerID),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      types.CaseStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := uc.repo.Case().Create(ctx, c)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create case")
	}
	return created, nil
}

func (uc *CaseUseCase) GetCase(ctx context.Context, id model.CaseID) (*model.Case, error) {
	c, err := uc.repo.Case().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, id))
	}
	return c, nil
}

func (uc *CaseUseCase) ListCases(ctx context.Context) ([]*model.Case, error) {
	cases, err := uc.repo.Case().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	return cases, nil
}

// UpdateDescription replaces the free-text description used by the intake stage
func (uc *CaseUseCase) UpdateDescription(ctx context.Context, id model.CaseID, description string) (*model.Case, error) {
	c, err := uc.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Description = strings.TrimSpace(description)
	c.UpdatedAt = uc.now()

	updated, err := uc.repo.Case().Update(ctx, c)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update case", goerr.V(model.CaseIDKey, id))
	}
	return updated, nil
}

// AddDocument registers the extracted text of an uploaded file
func (uc *CaseUseCase) AddDocument(ctx context.Context, caseID model.CaseID, filename, content string) (*model.Document, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, goerr.Wrap(model.ErrValidation, "document content is empty", goerr.V(model.CaseIDKey, caseID))
	}
	if _, err := uc.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	doc, err := uc.repo.Document().Create(ctx, &model.Document{
		CaseID:    caseID,
		Kind:      types.DocumentKindUploaded,
		Type:      types.DocumentTypeEvidence,
		Filename:  strings.TrimSpace(filename),
		Content:   content,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store document", goerr.V(model.CaseIDKey, caseID))
	}
	return doc, nil
}

func (uc *CaseUseCase) ListDocuments(ctx context.Context, caseID model.CaseID, kind types.DocumentKind) ([]*model.Document, error) {
	docs, err := uc.repo.Document().ListByCase(ctx, caseID, kind)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents", goerr.V(model.CaseIDKey, caseID))
	}
	return docs, nil
}

// setStatus moves the case to status, ignoring moves that would go backwards
func (uc *CaseUseCase) setStatus(ctx context.Context, id model.CaseID, status types.CaseStatus) error {
	c, err := uc.repo.Case().Get(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, id))
	}

	current := c.Status.Normalize()
	if !current.Advances(status) {
		return nil
	}

	c.Status = status
	c.UpdatedAt = uc.now()
	if _, err := uc.repo.Case().Update(ctx, c); err != nil {
		return goerr.Wrap(err, "failed to update case status",
			goerr.V(model.CaseIDKey, id),
			goerr.V("status", status))
	}
	logging.From(ctx).Info("case status changed", "case_id", id, "from", current, "to", status)
	return nil
}
