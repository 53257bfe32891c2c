package rest

import (
	"net/http"

	"github.com/flowops/cadenza/model"
	"github.com/gorilla/mux"
)

func (s *Server) HandlePendingTasks(w http.ResponseWriter, r *http.Request) {
	assignee := r.URL.Query().Get("assignee")
	if len(assignee) == 0 {
		assignee = userOf(r)
	}
	tasks, err := s.tasks.PendingTasksForUser(tenantOf(r), assignee)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tasks)
}

func (s *Server) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetTask(tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) HandleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req model.CompleteTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := s.tasks.CompleteTask(tenantOf(r), mux.Vars(r)["id"], userOf(r), req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) HandleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req model.AssignTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := s.tasks.AssignTask(tenantOf(r), mux.Vars(r)["id"], userOf(r), req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) HandleReassignTask(w http.ResponseWriter, r *http.Request) {
	var req model.ReassignTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := s.tasks.ReassignTask(tenantOf(r), mux.Vars(r)["id"], userOf(r), req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}
