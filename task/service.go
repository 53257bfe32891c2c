package task

import (
	"fmt"
	"time"

	"github.com/flowops/cadenza/engine"
	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"go.uber.org/zap"
)

// Service handles the human side of approval steps. Completing a task hands
// the decision to the workflow engine, which resumes the parked instance.
type Service struct {
	storage  persistence.TaskStorage
	logs     persistence.LogStorage
	engine   *engine.WorkflowEngine
	notifier Notifier
}

// Notifier is the slice of notify.Notifier the task service needs.
type Notifier interface {
	Send(recipientId string, title string, message string, channels []string)
}

func NewService(storage persistence.TaskStorage, logs persistence.LogStorage, eng *engine.WorkflowEngine, notifier Notifier) *Service {
	return &Service{storage: storage, logs: logs, engine: eng, notifier: notifier}
}

// CompleteTask hands the decision to the engine, which validates the task
// and resumes the parked instance in one locked transition. The task turns
// Completed only once the instance transition was persisted, so a failed
// completion can simply be retried.
func (s *Service) CompleteTask(tenantId string, taskId string, userId string, req model.CompleteTaskRequest) (*model.WorkflowTask, error) {
	if req.Decision != model.DECISION_APPROVE && req.Decision != model.DECISION_REJECT {
		return nil, model.NewValidationError(fmt.Sprintf("unknown decision %s", req.Decision))
	}
	task, err := s.engine.ResumeAfterDecision(tenantId, taskId, req, userId)
	if err != nil {
		return task, err
	}
	logger.Info("task completed",
		zap.String("task", task.Id),
		zap.String("instance", task.InstanceId),
		zap.String("decision", string(req.Decision)))
	return task, nil
}

// AssignTask sets the assignee of a pending task.
func (s *Service) AssignTask(tenantId string, taskId string, actor string, req model.AssignTaskRequest) (*model.WorkflowTask, error) {
	if len(req.Assignee) == 0 {
		return nil, model.NewValidationError("assignee can not be empty")
	}
	task, err := s.getOwnedTask(tenantId, taskId)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TASK_PENDING {
		return nil, model.NewInvalidStateError(fmt.Sprintf("task %s is %s and can not be assigned", taskId, task.Status))
	}
	now := time.Now().UTC()
	task.Assignee = req.Assignee
	task.AssignedBy = actor
	task.AssignedAt = &now
	if err := s.storage.SaveTask(task); err != nil {
		return nil, model.NewTransientError("error saving task", err)
	}
	s.appendLog(task, model.EVENT_TASK_ASSIGNED,
		fmt.Sprintf("task assigned to %s", req.Assignee),
		map[string]any{"assignee": req.Assignee}, actor)
	if s.notifier != nil {
		s.notifier.Send(req.Assignee, "Task Assigned", task.Description, nil)
	}
	return task, nil
}

// ReassignTask moves a pending task from one assignee to another. The
// current assignee must match so two reassignments cannot silently stomp
// each other.
func (s *Service) ReassignTask(tenantId string, taskId string, actor string, req model.ReassignTaskRequest) (*model.WorkflowTask, error) {
	if len(req.ToAssignee) == 0 {
		return nil, model.NewValidationError("toAssignee can not be empty")
	}
	task, err := s.getOwnedTask(tenantId, taskId)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TASK_PENDING {
		return nil, model.NewInvalidStateError(fmt.Sprintf("task %s is %s and can not be reassigned", taskId, task.Status))
	}
	if task.Assignee != req.FromAssignee {
		return nil, model.NewInvalidStateError(fmt.Sprintf("task %s is assigned to %s, not %s", taskId, task.Assignee, req.FromAssignee))
	}
	now := time.Now().UTC()
	task.Assignee = req.ToAssignee
	task.AssignedBy = actor
	task.AssignedAt = &now
	if err := s.storage.SaveTask(task); err != nil {
		return nil, model.NewTransientError("error saving task", err)
	}
	s.appendLog(task, model.EVENT_TASK_REASSIGNED,
		fmt.Sprintf("task reassigned from %s to %s", req.FromAssignee, req.ToAssignee),
		map[string]any{"from": req.FromAssignee, "to": req.ToAssignee}, actor)
	if s.notifier != nil {
		s.notifier.Send(req.ToAssignee, "Task Assigned", task.Description, nil)
	}
	return task, nil
}

func (s *Service) GetTask(tenantId string, taskId string) (*model.WorkflowTask, error) {
	return s.getOwnedTask(tenantId, taskId)
}

func (s *Service) PendingTasksForUser(tenantId string, userId string) ([]model.WorkflowTask, error) {
	tasks, err := s.storage.PendingTasksForUser(tenantId, userId)
	if err != nil {
		return nil, model.NewTransientError("error listing tasks", err)
	}
	return tasks, nil
}

func (s *Service) TasksByInstance(tenantId string, instanceId string) ([]model.WorkflowTask, error) {
	if _, err := s.engine.GetInstance(tenantId, instanceId); err != nil {
		return nil, err
	}
	tasks, err := s.storage.TasksByInstance(instanceId)
	if err != nil {
		return nil, model.NewTransientError("error listing tasks", err)
	}
	return tasks, nil
}

func (s *Service) getOwnedTask(tenantId string, taskId string) (*model.WorkflowTask, error) {
	task, err := s.storage.GetTask(taskId)
	if err != nil || task.TenantId != tenantId {
		return nil, model.NewNotFoundError("task", taskId)
	}
	return task, nil
}

func (s *Service) appendLog(task *model.WorkflowTask, eventType model.EventType, message string, payload map[string]any, actor string) {
	entry := &model.ExecutionLogEntry{
		InstanceId: task.InstanceId,
		StepId:     task.StepId,
		EventType:  eventType,
		Message:    message,
		Payload:    payload,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.logs.Append(entry); err != nil {
		logger.Error("error appending execution log", zap.String("instance", task.InstanceId), zap.Error(err))
	}
}
