package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowops/cadenza/engine"
	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/metadata"
	"github.com/flowops/cadenza/metrics"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/rules"
	"github.com/flowops/cadenza/task"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type contextKey string

const tenantKey contextKey = "tenant"
const userKey contextKey = "user"

type Server struct {
	http.Server
	Port        int
	definitions *metadata.DefinitionService
	engine      *engine.WorkflowEngine
	tasks       *task.Service
	rules       *rules.Engine
}

func NewServer(httpPort int, definitions *metadata.DefinitionService, eng *engine.WorkflowEngine, tasks *task.Service, ruleEngine *rules.Engine, m *metrics.Metrics) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:        httpPort,
		definitions: definitions,
		engine:      eng,
		tasks:       tasks,
		rules:       ruleEngine,
	}

	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(loggingMiddleware)
	api.Use(tenantMiddleware)

	api.HandleFunc("/definitions", s.HandleCreateDefinition).Methods(http.MethodPost)
	api.HandleFunc("/definitions", s.HandleListDefinitions).Methods(http.MethodGet)
	api.HandleFunc("/definitions/{id}", s.HandleGetDefinition).Methods(http.MethodGet)
	api.HandleFunc("/definitions/{id}", s.HandleUpdateDefinition).Methods(http.MethodPut)
	api.HandleFunc("/definitions/{id}", s.HandleDeleteDefinition).Methods(http.MethodDelete)
	api.HandleFunc("/definitions/{id}/activate", s.HandleActivateDefinition).Methods(http.MethodPost)
	api.HandleFunc("/definitions/{id}/deactivate", s.HandleDeactivateDefinition).Methods(http.MethodPost)

	api.HandleFunc("/workflows", s.HandleStartWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows", s.HandleListActiveWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", s.HandleGetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/advance", s.HandleAdvanceWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/cancel", s.HandleCancelWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/retry", s.HandleRetryWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}/history", s.HandleWorkflowHistory).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/report", s.HandleWorkflowReport).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/tasks", s.HandleWorkflowTasks).Methods(http.MethodGet)

	api.HandleFunc("/tasks", s.HandlePendingTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", s.HandleGetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}/complete", s.HandleCompleteTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/assign", s.HandleAssignTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/reassign", s.HandleReassignTask).Methods(http.MethodPost)

	api.HandleFunc("/rules/templates", s.HandleRuleTemplates).Methods(http.MethodGet)
	api.HandleFunc("/rules/evaluate", s.HandleEvaluateRules).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.HandleCreateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.HandleListRules).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", s.HandleGetRule).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", s.HandleUpdateRule).Methods(http.MethodPut)
	api.HandleFunc("/rules/{id}", s.HandleDeleteRule).Methods(http.MethodDelete)
	api.HandleFunc("/rules/{id}/evaluate", s.HandleEvaluateRule).Methods(http.MethodPost)

	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.Duration("took", time.Since(start)))
	})
}

// tenantMiddleware extracts the caller identity. Every api route is tenant
// scoped; requests without a tenant are rejected before any handler runs.
func tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantId := r.Header.Get("X-Tenant-ID")
		if len(tenantId) == 0 {
			respondWithError(w, http.StatusBadRequest, string(model.CODE_VALIDATION), "X-Tenant-ID header is required")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenantId)
		ctx = context.WithValue(ctx, userKey, r.Header.Get("X-User-ID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantOf(r *http.Request) string {
	tenantId, _ := r.Context().Value(tenantKey).(string)
	return tenantId
}

func userOf(r *http.Request) string {
	userId, _ := r.Context().Value(userKey).(string)
	if len(userId) == 0 {
		return "anonymous"
	}
	return userId
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, data any) {
	response, _ := json.Marshal(apiResponse{Success: true, Data: data})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, httpCode int, code string, message string) {
	response, _ := json.Marshal(apiResponse{Success: false, Error: message, Code: code})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	w.Write(response)
}

// respondWithDomainError maps the typed failure onto the http status space.
func respondWithDomainError(w http.ResponseWriter, err error) {
	code := model.CodeOf(err)
	httpCode := http.StatusInternalServerError
	switch code {
	case model.CODE_NOT_FOUND:
		httpCode = http.StatusNotFound
	case model.CODE_VALIDATION:
		httpCode = http.StatusBadRequest
	case model.CODE_INVALID_STATE, model.CODE_CONFLICT:
		httpCode = http.StatusConflict
	case model.CODE_TRANSIENT_FAILURE:
		httpCode = http.StatusServiceUnavailable
	}
	respondWithError(w, httpCode, string(code), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, string(model.CODE_VALIDATION), "invalid request body")
		return false
	}
	return true
}
