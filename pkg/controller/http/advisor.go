package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/errutil"
	"github.com/m-mizutani/goerr/v2"
)

type messageResponse struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	ContextUsed []string  `json:"context_used"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessageResponse(m *model.ConversationMessage) messageResponse {
	used := make([]string, len(m.ContextUsed))
	for i, t := range m.ContextUsed {
		used[i] = string(t)
	}
	return messageResponse{
		ID:          string(m.ID),
		CaseID:      string(m.CaseID),
		Role:        string(m.Role),
		Content:     m.Content,
		ContextUsed: used,
		CreatedAt:   m.CreatedAt,
	}
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, goerr.Wrap(model.ErrValidation, "invalid integer parameter", goerr.V(key, v))
	}
	return n, nil
}

type advisorMessageRequest struct {
	Message        string `json:"message"`
	IncludeContext *bool  `json:"include_context"`
}

type advisorMessageResponse struct {
	Question messageResponse `json:"question"`
	Answer   messageResponse `json:"answer"`
}

// sendAdvisorMessage serves POST /api/cases/{caseID}/advisor/message
func (s *Server) sendAdvisorMessage(w http.ResponseWriter, r *http.Request) {
	var req advisorMessageRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	includeContext := true
	if req.IncludeContext != nil {
		includeContext = *req.IncludeContext
	}

	reply, err := s.uc.Advisor.SendMessage(r.Context(), caseIDParam(r), req.Message, includeContext)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, advisorMessageResponse{
		Question: toMessageResponse(reply.Question),
		Answer:   toMessageResponse(reply.Answer),
	})
}

// advisorHistory serves GET /api/cases/{caseID}/advisor/history?limit=&offset=
func (s *Server) advisorHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	msgs, err := s.uc.Advisor.History(r.Context(), caseIDParam(r), limit, offset)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	resp := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		resp[i] = toMessageResponse(m)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) clearAdvisorHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.uc.Advisor.ClearHistory(r.Context(), caseIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) advisorSuggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 5)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	suggestions, err := s.uc.Advisor.Suggestions(r.Context(), caseIDParam(r), limit)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

type reanalyzeRequest struct {
	Stage string `json:"stage"`
}

func (s *Server) reanalyze(w http.ResponseWriter, r *http.Request) {
	var req reanalyzeRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			errutil.HandleHTTP(r.Context(), w, err)
			return
		}
	}

	result, err := s.uc.Advisor.Reanalyze(r.Context(), caseIDParam(r), types.Stage(req.Stage))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, result)
}
