package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/flowops/cadenza/cache"
	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/metrics"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowEngine owns every instance state transition. Transitions for one
// instance are serialized through a per-instance lock and persisted with an
// optimistic concurrency check, so a conflicting write from another node
// surfaces as a conflict instead of a lost update.
type WorkflowEngine struct {
	storage    *persistence.Storage
	defCache   *cache.DefinitionCache
	runtime    *Runtime
	metrics    *metrics.Metrics
	locks      keyedLocks
	retryLimit int
	delayHook  func(instanceId string, resumeAt time.Time)
}

// SetDelayHook registers a callback fired whenever an instance parks on a
// delay step, so the scheduler can arm an in-process timer instead of
// waiting for the next poll.
func (e *WorkflowEngine) SetDelayHook(hook func(instanceId string, resumeAt time.Time)) {
	e.delayHook = hook
}

func NewWorkflowEngine(storage *persistence.Storage, defCache *cache.DefinitionCache, runtime *Runtime, m *metrics.Metrics, retryLimit int) *WorkflowEngine {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &WorkflowEngine{
		storage:    storage,
		defCache:   defCache,
		runtime:    runtime,
		metrics:    m,
		retryLimit: retryLimit,
	}
}

// StartWorkflow creates an instance against the current version of the
// definition and advances it until it halts or completes. The instance keeps
// running that version even if the definition is edited later.
func (e *WorkflowEngine) StartWorkflow(tenantId string, initiator string, req model.StartWorkflowRequest) (*model.WorkflowInstance, error) {
	def, err := e.storage.Metadata.GetDefinition(tenantId, req.DefinitionId)
	if err != nil {
		return nil, model.NewNotFoundError("workflow definition", req.DefinitionId)
	}
	if !def.Active {
		return nil, model.NewInvalidStateError(fmt.Sprintf("workflow definition %s is not active", def.Id))
	}
	first := def.FirstStep()
	context := make(map[string]any, len(req.Context))
	for k, v := range req.Context {
		context[k] = v
	}
	instance := &model.WorkflowInstance{
		Id:                uuid.New().String(),
		TenantId:          tenantId,
		DefinitionId:      def.Id,
		DefinitionVersion: def.Version,
		Status:            model.INSTANCE_RUNNING,
		CurrentStepId:     first.Id,
		Context:           context,
		StartedAt:         time.Now().UTC(),
		Initiator:         initiator,
	}
	if err := e.storage.Instances.CreateInstance(instance); err != nil {
		return nil, model.NewTransientError("error creating instance", err)
	}
	unlock := e.locks.Lock(instance.Id)
	defer unlock()
	e.appendLog(instance, "", model.EVENT_WORKFLOW_STARTED,
		fmt.Sprintf("workflow %s started", def.Name),
		map[string]any{"definitionId": def.Id, "definitionVersion": def.Version}, initiator)
	if e.metrics != nil {
		e.metrics.InstancesStarted.Inc()
	}
	logger.Info("workflow started",
		zap.String("instance", instance.Id),
		zap.String("definition", def.Id),
		zap.Int("version", def.Version))
	if err := e.advance(instance, def); err != nil {
		return instance, err
	}
	return instance, nil
}

// AdvanceStep pushes a Running instance forward after merging the caller's
// step data into the context. Parked and terminal instances reject it.
func (e *WorkflowEngine) AdvanceStep(tenantId string, instanceId string, stepData map[string]any) (*model.WorkflowInstance, error) {
	unlock := e.locks.Lock(instanceId)
	defer unlock()
	instance, err := e.getOwnedInstance(tenantId, instanceId)
	if err != nil {
		return nil, err
	}
	if instance.Status != model.INSTANCE_RUNNING {
		return nil, model.NewInvalidStateError(fmt.Sprintf("instance %s is %s, only Running instances can be advanced", instanceId, instance.Status))
	}
	instance.MergeContext(stepData)
	def, err := e.definitionSnapshot(instance)
	if err != nil {
		return nil, err
	}
	if err := e.advance(instance, def); err != nil {
		return instance, err
	}
	return instance, nil
}

// ResumeAfterDecision applies a task decision to its WaitingForApproval
// instance. The task is re-read and validated under the instance lock, and
// it is marked Completed only after the instance save consuming the decision
// succeeded. A conflicting write therefore leaves the task Pending and the
// whole operation retryable. An approval continues past the approval step; a
// rejection completes the workflow with a Rejected outcome.
func (e *WorkflowEngine) ResumeAfterDecision(tenantId string, taskId string, req model.CompleteTaskRequest, actor string) (*model.WorkflowTask, error) {
	pending, err := e.storage.Tasks.GetTask(taskId)
	if err != nil || pending.TenantId != tenantId {
		return nil, model.NewNotFoundError("task", taskId)
	}
	unlock := e.locks.Lock(pending.InstanceId)
	defer unlock()
	task, err := e.storage.Tasks.GetTask(taskId)
	if err != nil {
		return nil, model.NewNotFoundError("task", taskId)
	}
	if task.Status != model.TASK_PENDING {
		return nil, model.NewInvalidStateError(fmt.Sprintf("task %s is %s and can not be completed", task.Id, task.Status))
	}
	instance, err := e.getOwnedInstance(tenantId, task.InstanceId)
	if err != nil {
		return nil, err
	}
	if instance.Status != model.INSTANCE_WAITING_FOR_APPROVAL {
		return nil, model.NewInvalidStateError(fmt.Sprintf("instance %s is %s, not waiting for approval", instance.Id, instance.Status))
	}
	def, err := e.definitionSnapshot(instance)
	if err != nil {
		return nil, err
	}
	instance.MergeContext(req.Output)
	instance.Context["action"] = string(req.Decision)
	e.appendLog(instance, instance.CurrentStepId, model.EVENT_WORKFLOW_RESUMED,
		fmt.Sprintf("workflow resumed after %s decision", req.Decision),
		map[string]any{"decision": string(req.Decision)}, actor)
	if req.Decision == model.DECISION_REJECT {
		instance.Context["outcome"] = "Rejected"
		e.complete(instance, "workflow completed after rejection")
		if err := e.save(instance); err != nil {
			return nil, err
		}
		return e.finishTask(instance, task, req, actor), nil
	}
	instance.Status = model.INSTANCE_RUNNING
	instance.CurrentStepId = nextOf(def, instance.CurrentStepId)
	if len(instance.CurrentStepId) == 0 {
		e.complete(instance, "workflow completed")
		if err := e.save(instance); err != nil {
			return nil, err
		}
		return e.finishTask(instance, task, req, actor), nil
	}
	if err := e.save(instance); err != nil {
		return nil, err
	}
	completed := e.finishTask(instance, task, req, actor)
	if err := e.advance(instance, def); err != nil {
		return completed, err
	}
	return completed, nil
}

// ResumeDelayed wakes a Delayed instance whose resume time has passed. A
// stale or already claimed instance is skipped without error so scheduler
// polling and timer firing can race safely.
func (e *WorkflowEngine) ResumeDelayed(instanceId string) error {
	unlock := e.locks.Lock(instanceId)
	defer unlock()
	instance, err := e.storage.Instances.GetInstance(instanceId)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return model.NewTransientError("error loading delayed instance", err)
	}
	if instance.Status != model.INSTANCE_DELAYED {
		return nil
	}
	if instance.ResumeAt != nil && instance.ResumeAt.After(time.Now().UTC()) {
		return nil
	}
	def, err := e.definitionSnapshot(instance)
	if err != nil {
		return err
	}
	instance.Status = model.INSTANCE_RUNNING
	instance.ResumeAt = nil
	e.appendLog(instance, instance.CurrentStepId, model.EVENT_WORKFLOW_RESUMED, "workflow resumed after delay", nil, "scheduler")
	if e.metrics != nil {
		e.metrics.SchedulerResumes.Inc()
	}
	instance.CurrentStepId = nextOf(def, instance.CurrentStepId)
	if len(instance.CurrentStepId) == 0 {
		e.complete(instance, "workflow completed")
		return e.save(instance)
	}
	return e.advance(instance, def)
}

// CancelWorkflow cancels a non-terminal instance and every pending task of
// it in the same transition. Cancelling an already cancelled instance is a
// no-op.
func (e *WorkflowEngine) CancelWorkflow(tenantId string, instanceId string, reason string, actor string) (*model.WorkflowInstance, error) {
	unlock := e.locks.Lock(instanceId)
	defer unlock()
	instance, err := e.getOwnedInstance(tenantId, instanceId)
	if err != nil {
		return nil, err
	}
	if instance.Status == model.INSTANCE_CANCELLED {
		return instance, nil
	}
	if instance.Status.Terminal() {
		return nil, model.NewInvalidStateError(fmt.Sprintf("instance %s is %s and can not be cancelled", instanceId, instance.Status))
	}
	tasks, err := e.storage.Tasks.TasksByInstance(instanceId)
	if err != nil {
		return nil, model.NewTransientError("error loading instance tasks", err)
	}
	now := time.Now().UTC()
	for i := range tasks {
		if tasks[i].Status != model.TASK_PENDING {
			continue
		}
		tasks[i].Status = model.TASK_CANCELLED
		tasks[i].CompletedAt = &now
		if err := e.storage.Tasks.SaveTask(&tasks[i]); err != nil {
			return nil, model.NewTransientError("error cancelling task", err)
		}
		e.appendLog(instance, tasks[i].StepId, model.EVENT_TASK_CANCELLED,
			fmt.Sprintf("task %s cancelled with workflow", tasks[i].Id),
			map[string]any{"taskId": tasks[i].Id}, actor)
	}
	instance.Status = model.INSTANCE_CANCELLED
	instance.CurrentStepId = ""
	instance.ResumeAt = nil
	instance.CompletedAt = &now
	e.appendLog(instance, "", model.EVENT_WORKFLOW_CANCELLED, "workflow cancelled", map[string]any{"reason": reason}, actor)
	if e.metrics != nil {
		e.metrics.InstancesCancelled.Inc()
	}
	logger.Info("workflow cancelled", zap.String("instance", instance.Id), zap.String("reason", reason))
	if err := e.save(instance); err != nil {
		return instance, err
	}
	return instance, nil
}

// RetryWorkflow puts a Failed instance back into Running and re-dispatches
// the step it failed on.
func (e *WorkflowEngine) RetryWorkflow(tenantId string, instanceId string, actor string) (*model.WorkflowInstance, error) {
	unlock := e.locks.Lock(instanceId)
	defer unlock()
	instance, err := e.getOwnedInstance(tenantId, instanceId)
	if err != nil {
		return nil, err
	}
	if instance.Status != model.INSTANCE_FAILED {
		return nil, model.NewInvalidStateError(fmt.Sprintf("instance %s is %s, only Failed instances can be retried", instanceId, instance.Status))
	}
	def, err := e.definitionSnapshot(instance)
	if err != nil {
		return nil, err
	}
	instance.Status = model.INSTANCE_RUNNING
	instance.RetryCount = 0
	instance.ErrorMessage = ""
	e.appendLog(instance, instance.CurrentStepId, model.EVENT_WORKFLOW_RETRIED, "workflow retried", nil, actor)
	if err := e.advance(instance, def); err != nil {
		return instance, err
	}
	return instance, nil
}

func (e *WorkflowEngine) GetInstance(tenantId string, instanceId string) (*model.WorkflowInstance, error) {
	return e.getOwnedInstance(tenantId, instanceId)
}

func (e *WorkflowEngine) ListActiveInstances(tenantId string) ([]model.WorkflowInstance, error) {
	instances, err := e.storage.Instances.ListActive(tenantId)
	if err != nil {
		return nil, model.NewTransientError("error listing instances", err)
	}
	return instances, nil
}

// GetHistory returns the execution log of the instance ordered by
// (Timestamp, Seq).
func (e *WorkflowEngine) GetHistory(tenantId string, instanceId string) ([]model.ExecutionLogEntry, error) {
	if _, err := e.getOwnedInstance(tenantId, instanceId); err != nil {
		return nil, err
	}
	entries, err := e.storage.Logs.ListByInstance(instanceId)
	if err != nil {
		return nil, model.NewTransientError("error loading execution log", err)
	}
	return entries, nil
}

// ExecutionReport projects one instance into its status, duration and task
// counts.
func (e *WorkflowEngine) ExecutionReport(tenantId string, instanceId string) (*model.ExecutionReport, error) {
	instance, err := e.getOwnedInstance(tenantId, instanceId)
	if err != nil {
		return nil, err
	}
	def, err := e.definitionSnapshot(instance)
	if err != nil {
		return nil, err
	}
	tasks, err := e.storage.Tasks.TasksByInstance(instanceId)
	if err != nil {
		return nil, model.NewTransientError("error loading instance tasks", err)
	}
	report := &model.ExecutionReport{
		InstanceId:   instance.Id,
		WorkflowName: def.Name,
		Status:       instance.Status,
		StartedAt:    instance.StartedAt,
		CompletedAt:  instance.CompletedAt,
		TotalTasks:   len(tasks),
	}
	end := time.Now().UTC()
	if instance.CompletedAt != nil {
		end = *instance.CompletedAt
	}
	report.DurationMillis = end.Sub(instance.StartedAt).Milliseconds()
	for _, task := range tasks {
		switch task.Status {
		case model.TASK_COMPLETED:
			report.CompletedTasks++
		case model.TASK_PENDING:
			report.PendingTasks++
		case model.TASK_CANCELLED:
			report.CancelledTasks++
		}
	}
	return report, nil
}

// advance runs steps in a loop until the instance halts, completes or fails.
// An approval or delay step halting ends the loop with the instance parked
// on that step; every hop is persisted before the next one runs.
func (e *WorkflowEngine) advance(instance *model.WorkflowInstance, def *model.WorkflowDefinition) error {
	steps, err := BuildSteps(def, e.runtime)
	if err != nil {
		return err
	}
	for instance.Status == model.INSTANCE_RUNNING {
		step, ok := steps[instance.CurrentStepId]
		if !ok {
			return e.fail(instance, fmt.Sprintf("step %s does not exist in definition version %d", instance.CurrentStepId, def.Version), true)
		}
		e.appendLog(instance, step.GetId(), model.EVENT_STEP_STARTED,
			fmt.Sprintf("step %s started", step.GetName()),
			map[string]any{"stepType": string(step.GetType())}, "system")
		started := time.Now()
		result, err := step.Execute(instance)
		if e.metrics != nil {
			e.metrics.DispatchDuration.Observe(time.Since(started).Seconds())
			e.metrics.StepsDispatched.WithLabelValues(string(step.GetType())).Inc()
		}
		if err != nil {
			return e.stepFailed(instance, step, err)
		}
		instance.RetryCount = 0
		for _, event := range result.Events {
			e.appendLog(instance, step.GetId(), event.EventType, event.Message, event.Payload, "system")
		}
		if result.Halt {
			instance.Status = result.HaltStatus
			instance.ResumeAt = result.ResumeAt
			if result.Task != nil {
				if err := e.createTask(instance, result.Task); err != nil {
					return err
				}
			}
			if err := e.save(instance); err != nil {
				return err
			}
			if instance.Status == model.INSTANCE_DELAYED && instance.ResumeAt != nil && e.delayHook != nil {
				e.delayHook(instance.Id, *instance.ResumeAt)
			}
			return nil
		}
		e.appendLog(instance, step.GetId(), model.EVENT_STEP_COMPLETED,
			fmt.Sprintf("step %s completed", step.GetName()), nil, "system")
		if len(result.NextStepId) == 0 {
			e.complete(instance, "workflow completed")
			return e.save(instance)
		}
		instance.CurrentStepId = result.NextStepId
		if err := e.save(instance); err != nil {
			return err
		}
	}
	return nil
}

func (e *WorkflowEngine) stepFailed(instance *model.WorkflowInstance, step Step, cause error) error {
	instance.RetryCount++
	instance.ErrorMessage = cause.Error()
	e.appendLog(instance, step.GetId(), model.EVENT_STEP_FAILED,
		fmt.Sprintf("step %s failed: %s", step.GetName(), cause.Error()),
		map[string]any{"attempt": instance.RetryCount}, "system")
	if e.metrics != nil {
		e.metrics.StepFailures.WithLabelValues(string(step.GetType())).Inc()
	}
	logger.Error("step execution failed",
		zap.String("instance", instance.Id),
		zap.String("step", step.GetId()),
		zap.Int("attempt", instance.RetryCount),
		zap.Error(cause))
	if instance.RetryCount >= e.retryLimit {
		return e.fail(instance, cause.Error(), false)
	}
	if err := e.save(instance); err != nil {
		return err
	}
	return model.NewTransientError(fmt.Sprintf("step %s failed", step.GetId()), cause)
}

// fail marks the instance Failed. The failed step id is kept so a retry can
// resume there; clearStep is set only when the step itself is unresolvable.
func (e *WorkflowEngine) fail(instance *model.WorkflowInstance, message string, clearStep bool) error {
	now := time.Now().UTC()
	instance.Status = model.INSTANCE_FAILED
	instance.ErrorMessage = message
	instance.CompletedAt = &now
	if clearStep {
		instance.CurrentStepId = ""
	}
	e.appendLog(instance, instance.CurrentStepId, model.EVENT_WORKFLOW_FAILED, message, nil, "system")
	if e.metrics != nil {
		e.metrics.InstancesFailed.Inc()
	}
	if err := e.save(instance); err != nil {
		return err
	}
	return model.NewInternalError(message, nil)
}

func (e *WorkflowEngine) complete(instance *model.WorkflowInstance, message string) {
	now := time.Now().UTC()
	instance.Status = model.INSTANCE_COMPLETED
	instance.CurrentStepId = ""
	instance.ResumeAt = nil
	instance.CompletedAt = &now
	e.appendLog(instance, "", model.EVENT_WORKFLOW_COMPLETED, message, nil, "system")
	if e.metrics != nil {
		e.metrics.InstancesCompleted.Inc()
	}
	logger.Info("workflow completed", zap.String("instance", instance.Id))
}

// createTask persists the pending task a halting step produced. A pending
// task already recorded for the same step is kept as is, so a dispatch
// retried after a failed park save does not assign the step twice.
func (e *WorkflowEngine) createTask(instance *model.WorkflowInstance, task *model.WorkflowTask) error {
	if existing, err := e.storage.Tasks.PendingTaskForStep(instance.Id, task.StepId); err == nil && existing != nil {
		logger.Info("reusing pending task for step",
			zap.String("instance", instance.Id),
			zap.String("step", task.StepId),
			zap.String("task", existing.Id))
		return nil
	}
	now := time.Now().UTC()
	task.Id = uuid.New().String()
	task.CreatedAt = now
	task.AssignedAt = &now
	if err := e.storage.Tasks.SaveTask(task); err != nil {
		return model.NewTransientError("error creating task", err)
	}
	if e.metrics != nil {
		e.metrics.TasksCreated.Inc()
	}
	return nil
}

// finishTask records the decided task as Completed. It runs only after the
// instance transition consuming the decision was saved; a failing task save
// here is logged and left Pending, the workflow has already moved on.
func (e *WorkflowEngine) finishTask(instance *model.WorkflowInstance, task *model.WorkflowTask, req model.CompleteTaskRequest, actor string) *model.WorkflowTask {
	now := time.Now().UTC()
	task.Status = model.TASK_COMPLETED
	task.Output = req.Output
	task.Comments = req.Comments
	task.CompletedAt = &now
	task.CompletedBy = actor
	if err := e.storage.Tasks.SaveTask(task); err != nil {
		logger.Error("error saving completed task", zap.String("task", task.Id), zap.Error(err))
	}
	e.appendLog(instance, task.StepId, model.EVENT_TASK_COMPLETED,
		fmt.Sprintf("task %s completed with decision %s", task.Id, req.Decision),
		map[string]any{"taskId": task.Id, "decision": string(req.Decision)}, actor)
	if e.metrics != nil {
		e.metrics.TasksCompleted.Inc()
	}
	return task
}

func (e *WorkflowEngine) save(instance *model.WorkflowInstance) error {
	err := e.storage.Instances.SaveInstance(instance)
	if err == nil {
		return nil
	}
	var conflict persistence.ConflictError
	if errors.As(err, &conflict) {
		return model.NewConflictError(fmt.Sprintf("instance %s was modified concurrently", instance.Id))
	}
	return model.NewTransientError("error saving instance", err)
}

func (e *WorkflowEngine) getOwnedInstance(tenantId string, instanceId string) (*model.WorkflowInstance, error) {
	instance, err := e.storage.Instances.GetInstance(instanceId)
	if err != nil || instance.TenantId != tenantId {
		return nil, model.NewNotFoundError("workflow instance", instanceId)
	}
	return instance, nil
}

// definitionSnapshot reads the definition version the instance was started
// with, through the cache. Versions are immutable so the cache never serves
// stale steps.
func (e *WorkflowEngine) definitionSnapshot(instance *model.WorkflowInstance) (*model.WorkflowDefinition, error) {
	if def, ok := e.defCache.Get(instance.TenantId, instance.DefinitionId, instance.DefinitionVersion); ok {
		return def, nil
	}
	def, err := e.storage.Metadata.GetDefinitionVersion(instance.TenantId, instance.DefinitionId, instance.DefinitionVersion)
	if err != nil {
		return nil, model.NewNotFoundError("workflow definition", instance.DefinitionId)
	}
	e.defCache.Save(def)
	return def, nil
}

func (e *WorkflowEngine) appendLog(instance *model.WorkflowInstance, stepId string, eventType model.EventType, message string, payload map[string]any, actor string) {
	entry := &model.ExecutionLogEntry{
		Id:         uuid.New().String(),
		InstanceId: instance.Id,
		StepId:     stepId,
		EventType:  eventType,
		Message:    message,
		Payload:    payload,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
	}
	if err := e.storage.Logs.Append(entry); err != nil {
		logger.Error("error appending execution log", zap.String("instance", instance.Id), zap.Error(err))
	}
}

func nextOf(def *model.WorkflowDefinition, stepId string) string {
	step := def.Step(stepId)
	if step == nil || len(step.NextSteps) == 0 {
		return ""
	}
	return step.NextSteps[0]
}
