package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/utils/errutil"
	"github.com/LalaIAm/case-agent/pkg/utils/safe"
	"github.com/m-mizutani/goerr/v2"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, data)
}

func readJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(model.ErrValidation, "invalid request body", goerr.V("error", err.Error()))
	}
	return nil
}

type caseResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCaseResponse(c *model.Case) caseResponse {
	return caseResponse{
		ID:          string(c.ID),
		OwnerID:     c.OwnerID,
		Title:       c.Title,
		Description: c.Description,
		Status:      string(c.Status.Normalize()),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type documentResponse struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Kind      string    `json:"kind"`
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocumentResponse(d *model.Document, withContent bool) documentResponse {
	resp := documentResponse{
		ID:        string(d.ID),
		CaseID:    string(d.CaseID),
		Kind:      string(d.Kind),
		Type:      string(d.Type),
		Filename:  d.Filename,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
	}
	if withContent {
		resp.Content = d.Content
	}
	return resp
}

type sessionResponse struct {
	ID        string     `json:"id"`
	CaseID    string     `json:"case_id"`
	Sequence  int        `json:"sequence"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		ID:        string(s.ID),
		CaseID:    string(s.CaseID),
		Sequence:  s.Sequence,
		Status:    string(s.Status),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}

type blockResponse struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	CaseID     string         `json:"case_id"`
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	Metadata   model.Metadata `json:"metadata"`
	Similarity *float64       `json:"similarity,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func toBlockResponse(b *model.MemoryBlock) blockResponse {
	md := b.Metadata
	if md == nil {
		md = model.Metadata{}
	}
	return blockResponse{
		ID:        string(b.ID),
		SessionID: string(b.SessionID),
		CaseID:    string(b.CaseID),
		Type:      string(b.Type),
		Content:   b.Content,
		Metadata:  md,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func toBlockResponses(blocks []*model.MemoryBlock) []blockResponse {
	resp := make([]blockResponse, len(blocks))
	for i, b := range blocks {
		resp[i] = toBlockResponse(b)
	}
	return resp
}

type runResponse struct {
	ID           string            `json:"id"`
	CaseID       string            `json:"case_id"`
	InvocationID string            `json:"invocation_id"`
	Stage        string            `json:"stage"`
	Status       string            `json:"status"`
	Reasoning    []string          `json:"reasoning"`
	Result       model.StageResult `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func toRunResponse(r *model.AgentRun) runResponse {
	reasoning := r.Reasoning
	if reasoning == nil {
		reasoning = []string{}
	}
	return runResponse{
		ID:           string(r.ID),
		CaseID:       string(r.CaseID),
		InvocationID: string(r.InvocationID),
		Stage:        string(r.Stage),
		Status:       string(r.Status),
		Reasoning:    reasoning,
		Result:       r.Result,
		Error:        r.Error,
		ErrorKind:    string(r.ErrorKind),
		Attempts:     r.Attempts,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
}

type ruleResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Jurisdiction string    `json:"jurisdiction"`
	Source       string    `json:"source"`
	Category     string    `json:"category,omitempty"`
	Similarity   *float64  `json:"similarity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toRuleResponse(r *model.Rule) ruleResponse {
	return ruleResponse{
		ID:           string(r.ID),
		Type:         string(r.Type),
		Title:        r.Title,
		Content:      r.Content,
		Jurisdiction: r.Jurisdiction,
		Source:       r.Source,
		Category:     r.Category,
		CreatedAt:    r.CreatedAt,
	}
}
