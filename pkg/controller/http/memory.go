package http

import (
	"net/http"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/errutil"
	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
)

func sessionIDParam(r *http.Request) model.SessionID {
	return model.SessionID(chi.URLParam(r, "sessionID"))
}

func blockIDParam(r *http.Request) model.MemoryBlockID {
	return model.MemoryBlockID(chi.URLParam(r, "blockID"))
}

func parseBlockTypes(values []string) ([]types.BlockType, error) {
	var split []string
	for _, v := range values {
		split = append(split, strings.Split(v, ",")...)
	}
	parsed, err := types.ParseBlockTypes(split)
	if err != nil {
		return nil, goerr.Wrap(model.ErrValidation, err.Error())
	}
	return parsed, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	caseID := caseIDParam(r)
	if _, err := s.uc.Case.GetCase(r.Context(), caseID); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	sessions, err := s.uc.Session.ListSessions(r.Context(), caseID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	resp := make([]sessionResponse, len(sessions))
	for i, sess := range sessions {
		resp[i] = toSessionResponse(sess)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getOrCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.Session.GetOrCreateSession(r.Context(), caseIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.Session.CompleteSession(r.Context(), sessionIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) sessionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.uc.Session.SessionSummary(r.Context(), sessionIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

type createBlockRequest struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Metadata model.Metadata `json:"metadata"`
}

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	var req createBlockRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	block, err := s.uc.Memory.Create(r.Context(), sessionIDParam(r), types.BlockType(req.Type), req.Content, req.Metadata)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toBlockResponse(block))
}

func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	blockTypes, err := parseBlockTypes(r.URL.Query()["type"])
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	blocks, err := s.uc.Memory.ListBySession(r.Context(), sessionIDParam(r), blockTypes)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBlockResponses(blocks))
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	block, err := s.uc.Memory.Get(r.Context(), blockIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBlockResponse(block))
}

type updateBlockRequest struct {
	Content  *string        `json:"content"`
	Metadata model.Metadata `json:"metadata"`
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request) {
	var req updateBlockRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	block, err := s.uc.Memory.Update(r.Context(), blockIDParam(r), req.Content, req.Metadata)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBlockResponse(block))
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Memory.Delete(r.Context(), blockIDParam(r)); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkBlockRequest struct {
	Related []string `json:"related"`
}

func (s *Server) linkBlock(w http.ResponseWriter, r *http.Request) {
	var req linkBlockRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	related := make([]model.MemoryBlockID, len(req.Related))
	for i, id := range req.Related {
		related[i] = model.MemoryBlockID(id)
	}

	block, err := s.uc.Memory.Link(r.Context(), blockIDParam(r), related)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBlockResponse(block))
}

func (s *Server) relatedBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.uc.Memory.RelatedBlocks(r.Context(), blockIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBlockResponses(blocks))
}

type searchMemoryRequest struct {
	Query         string   `json:"query"`
	Scope         string   `json:"scope"`
	SessionID     string   `json:"session_id"`
	Types         []string `json:"types"`
	Limit         int      `json:"limit"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// searchMemory runs a semantic search over the whole case, or over one of its sessions with scope "session"
func (s *Server) searchMemory(w http.ResponseWriter, r *http.Request) {
	var req searchMemoryRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	caseID := caseIDParam(r)
	if _, err := s.uc.Case.GetCase(r.Context(), caseID); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	blockTypes, err := parseBlockTypes(req.Types)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	var scope model.SearchScope
	switch req.Scope {
	case "", "case":
		scope = model.CaseScope(caseID)
	case "session":
		sess, err := s.uc.Session.GetSession(r.Context(), model.SessionID(req.SessionID))
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err)
			return
		}
		if sess.CaseID != caseID {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrValidation, "session does not belong to case",
				goerr.V(model.SessionIDKey, sess.ID),
				goerr.V(model.CaseIDKey, caseID)))
			return
		}
		scope = model.SessionScope(sess.ID)
	default:
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrValidation, "scope must be session or case", goerr.V("scope", req.Scope)))
		return
	}

	hits, err := s.uc.Memory.Search(r.Context(), model.MemorySearch{
		Query:         req.Query,
		Scope:         scope,
		Types:         blockTypes,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	resp := make([]blockResponse, len(hits))
	for i, hit := range hits {
		resp[i] = toBlockResponse(hit.Block)
		similarity := hit.Similarity
		resp[i].Similarity = &similarity
	}
	writeJSON(w, r, http.StatusOK, resp)
}
