package http

import (
	"net/http"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/errutil"
	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
)

func caseIDParam(r *http.Request) model.CaseID {
	return model.CaseID(chi.URLParam(r, "caseID"))
}

type createCaseRequest struct {
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	c, err := s.uc.Case.CreateCase(r.Context(), req.OwnerID, req.Title, req.Description)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toCaseResponse(c))
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.uc.Case.ListCases(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	resp := make([]caseResponse, len(cases))
	for i, c := range cases {
		resp[i] = toCaseResponse(c)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.uc.Case.GetCase(r.Context(), caseIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCaseResponse(c))
}

type addDocumentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (s *Server) addDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	doc, err := s.uc.Case.AddDocument(r.Context(), caseIDParam(r), req.Filename, req.Content)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toDocumentResponse(doc, false))
}

// listDocuments lists uploaded documents, or generated drafts with ?kind=generated
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	kind := types.DocumentKindUploaded
	if v := r.URL.Query().Get("kind"); v != "" {
		parsed, err := types.ParseDocumentKind(v)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrValidation, err.Error()))
			return
		}
		kind = parsed
	}

	caseID := caseIDParam(r)
	if _, err := s.uc.Case.GetCase(r.Context(), caseID); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	docs, err := s.uc.Case.ListDocuments(r.Context(), caseID, kind)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	resp := make([]documentResponse, len(docs))
	for i, d := range docs {
		resp[i] = toDocumentResponse(d, kind == types.DocumentKindGenerated)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type runWorkflowRequest struct {
	Stage        string `json:"stage"`
	ForceRestart bool   `json:"force_restart"`
}

func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req runWorkflowRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			errutil.HandleHTTP(r.Context(), w, err)
			return
		}
	}

	result, err := s.uc.Workflow.RunWorkflow(r.Context(), caseIDParam(r), usecase.RunOptions{
		Stage:        types.Stage(req.Stage),
		ForceRestart: req.ForceRestart,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, result)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	state, err := s.uc.Workflow.GetStatus(r.Context(), caseIDParam(r))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	caseID := caseIDParam(r)
	if _, err := s.uc.Case.GetCase(r.Context(), caseID); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	runs, err := s.uc.Workflow.ListRuns(r.Context(), caseID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	resp := make([]runResponse, len(runs))
	for i, run := range runs {
		resp[i] = toRunResponse(run)
	}
	writeJSON(w, r, http.StatusOK, resp)
}
