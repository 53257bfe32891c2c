package rest

import (
	"net/http"

	"github.com/flowops/cadenza/model"
	"github.com/gorilla/mux"
)

func (s *Server) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.BusinessRule
	if !decodeBody(w, r, &rule) {
		return
	}
	rule.TenantId = tenantOf(r)
	created, err := s.rules.CreateRule(rule)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRules(tenantOf(r), r.URL.Query().Get("category"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rules)
}

func (s *Server) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

func (s *Server) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.BusinessRule
	if !decodeBody(w, r, &rule) {
		return
	}
	updated, err := s.rules.UpdateRule(tenantOf(r), mux.Vars(r)["id"], rule)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (s *Server) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.DeleteRule(tenantOf(r), mux.Vars(r)["id"]); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (s *Server) HandleEvaluateRule(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateRulesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.rules.EvaluateRule(tenantOf(r), mux.Vars(r)["id"], req.Context)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (s *Server) HandleEvaluateRules(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateRulesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := s.rules.EvaluateRules(tenantOf(r), req.Category, req.Context)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (s *Server) HandleRuleTemplates(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.rules.Templates())
}
