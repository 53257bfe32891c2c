package rest

import (
	"net/http"

	"github.com/flowops/cadenza/model"
	"github.com/gorilla/mux"
)

func (s *Server) HandleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req model.StartWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	instance, err := s.engine.StartWorkflow(tenantOf(r), userOf(r), req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, instance)
}

func (s *Server) HandleListActiveWorkflows(w http.ResponseWriter, r *http.Request) {
	instances, err := s.engine.ListActiveInstances(tenantOf(r))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, instances)
}

func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	instance, err := s.engine.GetInstance(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, instance)
}

func (s *Server) HandleAdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	var req model.AdvanceStepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	instance, err := s.engine.AdvanceStep(tenantOf(r), mux.Vars(r)["id"], req.StepData)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, instance)
}

func (s *Server) HandleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	var req model.CancelWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	instance, err := s.engine.CancelWorkflow(tenantOf(r), mux.Vars(r)["id"], req.Reason, userOf(r))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, instance)
}

func (s *Server) HandleRetryWorkflow(w http.ResponseWriter, r *http.Request) {
	instance, err := s.engine.RetryWorkflow(tenantOf(r), mux.Vars(r)["id"], userOf(r))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, instance)
}

func (s *Server) HandleWorkflowHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.GetHistory(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (s *Server) HandleWorkflowReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.ExecutionReport(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (s *Server) HandleWorkflowTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.TasksByInstance(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tasks)
}
