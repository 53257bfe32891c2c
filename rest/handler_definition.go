package rest

import (
	"net/http"

	"github.com/flowops/cadenza/model"
	"github.com/gorilla/mux"
)

func (s *Server) HandleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var def model.WorkflowDefinition
	if !decodeBody(w, r, &def) {
		return
	}
	created, err := s.definitions.CreateDefinition(tenantOf(r), userOf(r), def)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.definitions.ListDefinitions(tenantOf(r))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, defs)
}

func (s *Server) HandleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.definitions.GetDefinition(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

func (s *Server) HandleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	var def model.WorkflowDefinition
	if !decodeBody(w, r, &def) {
		return
	}
	updated, err := s.definitions.UpdateDefinition(tenantOf(r), mux.Vars(r)["id"], def)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (s *Server) HandleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	if err := s.definitions.DeleteDefinition(tenantOf(r), mux.Vars(r)["id"]); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (s *Server) HandleActivateDefinition(w http.ResponseWriter, r *http.Request) {
	s.setDefinitionActive(w, r, true)
}

func (s *Server) HandleDeactivateDefinition(w http.ResponseWriter, r *http.Request) {
	s.setDefinitionActive(w, r, false)
}

func (s *Server) setDefinitionActive(w http.ResponseWriter, r *http.Request, active bool) {
	def, err := s.definitions.SetActive(tenantOf(r), mux.Vars(r)["id"], active)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}
