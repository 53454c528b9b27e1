package model

import (
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/types"
)

// Case is the top-level unit of work analyzed by the pipeline
type Case struct {
	ID          CaseID
	OwnerID     string
	Title       string
	Description string
	Status      types.CaseStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasDescription reports whether the case carries a non-blank description
func (c *Case) HasDescription() bool {
	return strings.TrimSpace(c.Description) != ""
}

// DisplayTitle returns the title or a placeholder for untitled cases
func (c *Case) DisplayTitle() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	return "Untitled Case"
}
