package model

import (
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// Document is text attached to a case. Uploaded documents carry extracted text
// supplied by the surrounding application; generated documents are drafts
// written by the drafting stage. RunID names the stage run that wrote a
// generated document.
type Document struct {
	ID        DocumentID
	CaseID    CaseID
	Kind      types.DocumentKind
	Type      types.DocumentType
	Filename  string
	Content   string
	Version   int
	RunID     AgentRunID
	CreatedAt time.Time
}
