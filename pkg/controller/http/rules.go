package http

import (
	"net/http"
	"strconv"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/errutil"
	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
)

func boolQuery(r *http.Request, key string, fallback bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, goerr.Wrap(model.ErrValidation, "invalid boolean parameter", goerr.V(key, v))
	}
	return b, nil
}

type hybridSearchResponse struct {
	StaticRules []*model.StaticRule `json:"static_rules"`
	CaseLaw     []ruleResponse      `json:"case_law"`
}

// searchRules serves GET /api/rules/search?q=&static=&case_law=&limit=&min_similarity=
func (s *Server) searchRules(w http.ResponseWriter, r *http.Request) {
	query := model.HybridQuery{Query: r.URL.Query().Get("q")}

	var err error
	if query.IncludeStatic, err = boolQuery(r, "static", true); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	if query.IncludeCaseLaw, err = boolQuery(r, "case_law", true); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrValidation, "invalid limit", goerr.V("limit", v)))
			return
		}
		query.Limit = n
	}
	if v := r.URL.Query().Get("min_similarity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrValidation, "invalid min_similarity", goerr.V("min_similarity", v)))
			return
		}
		query.MinSimilarity = &f
	}

	result, err := s.uc.Retrieval.HybridSearch(r.Context(), query)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	resp := hybridSearchResponse{
		StaticRules: result.StaticRules,
		CaseLaw:     make([]ruleResponse, len(result.CaseLaw)),
	}
	for i, hit := range result.CaseLaw {
		resp.CaseLaw[i] = toRuleResponse(hit.Rule)
		similarity := hit.Similarity
		resp.CaseLaw[i].Similarity = &similarity
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getStaticRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.uc.Retrieval.GetStatic(chi.URLParam(r, "ruleID"))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rule)
}

type addRuleRequest struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Jurisdiction string `json:"jurisdiction"`
	Source       string `json:"source"`
}

func (s *Server) addRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	rule, err := s.uc.Retrieval.AddRule(r.Context(), usecase.AddRuleInput{
		Type:         types.RuleType(req.Type),
		Title:        req.Title,
		Content:      req.Content,
		Jurisdiction: req.Jurisdiction,
		Source:       req.Source,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toRuleResponse(rule))
}
