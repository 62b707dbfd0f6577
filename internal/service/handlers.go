package service

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/project"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	defaultSearchK = 10
	maxSearchK     = 50
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "unbrowse",
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolver.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// executeRequest is the body of a direct execution call. The skill is
// named in the path, so unlike resolve there is no intent here.
type executeRequest struct {
	EndpointID    string         `json:"endpoint_id,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	Body          any            `json:"body,omitempty"`
	DryRun        bool           `json:"dry_run,omitempty"`
	ConfirmUnsafe bool           `json:"confirm_unsafe,omitempty"`
	Projection    *types.Recipe  `json:"projection,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.resolver.ExecuteSkill(r.Context(), chi.URLParam(r, "skillID"), resolver.ExecuteOptions{
		EndpointID:    req.EndpointID,
		Params:        req.Params,
		Body:          req.Body,
		DryRun:        req.DryRun,
		ConfirmUnsafe: req.ConfirmUnsafe,
	}, req.Projection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req resolver.FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.resolver.Feedback(req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type searchRequest struct {
	Intent string `json:"intent"`
	Domain string `json:"domain,omitempty"`
	K      int    `json:"k,omitempty"`
}

func decodeSearch(r *http.Request) (searchRequest, error) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Intent) == "" {
		return req, fault.Input("intent is required")
	}
	if req.K <= 0 {
		req.K = defaultSearchK
	}
	if req.K > maxSearchK {
		req.K = maxSearchK
	}
	return req, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearch(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hits, err := s.resolver.SearchMarketplace(r.Context(), req.Intent, req.K)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []types.SkillSearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleSearchDomain(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearch(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		s.writeError(w, r, fault.Input("domain is required"))
		return
	}
	hits, err := s.resolver.SearchMarketplaceDomain(r.Context(), req.Domain, req.Intent, req.K)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []types.SkillSearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

type loginRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		s.writeError(w, r, fault.New(fault.CodeInternal, "live capture is not configured"))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, r, fault.Input("url is required"))
		return
	}
	result, err := s.captures.Login(r.Context(), req.URL, s.creds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// skillSummary is a list row: enough to pick a skill without loading
// its full manifest.
type skillSummary struct {
	SkillID       string              `json:"skill_id"`
	Name          string              `json:"name"`
	Domain        string              `json:"domain"`
	ExecutionType types.ExecutionType `json:"execution_type"`
	Endpoints     int                 `json:"endpoints"`
	Consumes      []string            `json:"consumes,omitempty"`
	UpdatedAt     types.Timestamp     `json:"updated_at"`
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.store.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]skillSummary, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, skillSummary{
			SkillID:       m.SkillID,
			Name:          m.Name,
			Domain:        m.Domain,
			ExecutionType: m.ExecutionType,
			Endpoints:     len(m.Endpoints),
			Consumes:      m.Consumes,
			UpdatedAt:     m.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "skillID")
	m, err := s.store.Manifest(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	auth, err := s.store.Auth(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skill":    m,
		"has_auth": auth.HasUsableAuth(),
	})
}

func (s *Server) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	skillID := chi.URLParam(r, "skillID")
	endpointID := chi.URLParam(r, "endpointID")

	m, err := s.store.Manifest(skillID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if m.Endpoint(endpointID) == nil {
		s.writeError(w, r, fault.NotFound("endpoint", endpointID))
		return
	}

	var recipe types.Recipe
	if err := decodeJSON(r, &recipe); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := project.Validate(&recipe); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.SaveRecipe(skillID, endpointID, &recipe); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fault.Input("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	var h capture.History
	if s.captures != nil {
		h = s.captures.History(chi.URLParam(r, "domain"), limit)
	}
	if h.Detailed == nil {
		h.Detailed = []*capture.Record{}
	}
	writeJSON(w, http.StatusOK, h)
}
