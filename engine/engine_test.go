package engine_test

import (
	"testing"
	"time"

	"github.com/flowops/cadenza/cache"
	"github.com/flowops/cadenza/engine"
	"github.com/flowops/cadenza/metadata"
	"github.com/flowops/cadenza/metrics"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/notify"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/persistence/memory"
	"github.com/flowops/cadenza/rules"
	"github.com/flowops/cadenza/task"
	"github.com/stretchr/testify/require"
)

const testTenant = "acme"

type fixture struct {
	storage     *persistence.Storage
	definitions *metadata.DefinitionService
	engine      *engine.WorkflowEngine
	tasks       *task.Service
}

func newFixture() *fixture {
	storage := memory.NewStorage()
	defCache := cache.NewDefinitionCache(time.Minute)
	notifier := notify.NewLogNotifier()
	m := metrics.New()
	runtime := &engine.Runtime{
		Evaluator: rules.NewEvaluator(),
		Executor:  rules.NewExecutor(),
		Notifier:  notifier,
	}
	eng := engine.NewWorkflowEngine(storage, defCache, runtime, m, 3)
	return &fixture{
		storage:     storage,
		definitions: metadata.NewDefinitionService(storage.Metadata, defCache),
		engine:      eng,
		tasks:       task.NewService(storage.Tasks, storage.Logs, eng, notifier),
	}
}

// flakyInstanceStore injects write conflicts and read errors the way a
// concurrent node or a flaky backend would.
type flakyInstanceStore struct {
	persistence.InstanceStorage
	failSaves int
	failGets  int
}

func (s *flakyInstanceStore) SaveInstance(instance *model.WorkflowInstance) error {
	if s.failSaves > 0 {
		s.failSaves--
		return persistence.ConflictError{InstanceId: instance.Id}
	}
	return s.InstanceStorage.SaveInstance(instance)
}

func (s *flakyInstanceStore) GetInstance(instanceId string) (*model.WorkflowInstance, error) {
	if s.failGets > 0 {
		s.failGets--
		return nil, persistence.StorageLayerError{Message: "connection reset"}
	}
	return s.InstanceStorage.GetInstance(instanceId)
}

func (f *fixture) flakyInstances() *flakyInstanceStore {
	flaky := &flakyInstanceStore{InstanceStorage: f.storage.Instances}
	f.storage.Instances = flaky
	return flaky
}

// leaveDefinition branches on requested days: short leaves are auto
// approved, longer ones wait on a manager decision. Both paths notify.
func leaveDefinition() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		Name:     "leave approval",
		Category: "Leave",
		Steps: []model.StepDefinition{
			{
				Id:   "check-days",
				Name: "Check requested days",
				Type: model.STEP_TYPE_CONDITION,
				Configuration: map[string]any{
					"condition": map[string]any{"field": "Days", "operator": "greaterthan", "value": 3},
					"trueStep":  "manager-approval",
					"falseStep": "auto-approve",
				},
			},
			{
				Id:   "manager-approval",
				Name: "Manager approval",
				Type: model.STEP_TYPE_APPROVAL,
				Configuration: map[string]any{
					"assignee":    "manager",
					"description": "Approve {Days} days of leave for {EmployeeName}",
					"dueInDays":   2,
				},
				NextSteps: []string{"notify-employee"},
			},
			{
				Id:   "auto-approve",
				Name: "Auto approve",
				Type: model.STEP_TYPE_AUTOMATION,
				Configuration: map[string]any{
					"actions": []any{
						map[string]any{
							"type":          "UpdateField",
							"configuration": map[string]any{"field": "Status", "value": "AutoApproved"},
						},
					},
				},
				NextSteps: []string{"notify-employee"},
			},
			{
				Id:   "notify-employee",
				Name: "Notify employee",
				Type: model.STEP_TYPE_NOTIFICATION,
				Configuration: map[string]any{
					"recipients": []any{"{EmployeeName}"},
					"message":    "Your leave request was processed",
				},
			},
		},
	}
}

// signoffDefinition parks on its first step, so the park save is the first
// instance write after start.
func signoffDefinition() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		Name:     "expense signoff",
		Category: "Finance",
		Steps: []model.StepDefinition{
			{
				Id:   "finance-signoff",
				Name: "Finance signoff",
				Type: model.STEP_TYPE_APPROVAL,
				Configuration: map[string]any{
					"assignee":    "finance",
					"description": "Sign off the expense",
				},
				NextSteps: []string{"notify-submitter"},
			},
			{
				Id:   "notify-submitter",
				Name: "Notify submitter",
				Type: model.STEP_TYPE_NOTIFICATION,
				Configuration: map[string]any{
					"recipients": []any{"submitter"},
					"message":    "Your expense was processed",
				},
			},
		},
	}
}

func delayDefinition() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		Name:     "reminder",
		Category: "Attendance",
		Steps: []model.StepDefinition{
			{
				Id:            "wait",
				Name:          "Wait",
				Type:          model.STEP_TYPE_DELAY,
				Configuration: map[string]any{"delayMinutes": 5},
				NextSteps:     []string{"remind"},
			},
			{
				Id:   "remind",
				Name: "Send reminder",
				Type: model.STEP_TYPE_NOTIFICATION,
				Configuration: map[string]any{
					"recipients": []any{"employee"},
					"message":    "Reminder",
				},
			},
		},
	}
}

func (f *fixture) mustCreate(t *testing.T, def model.WorkflowDefinition) *model.WorkflowDefinition {
	created, err := f.definitions.CreateDefinition(testTenant, "hr-admin", def)
	require.NoError(t, err)
	return created
}

func (f *fixture) start(t *testing.T, definitionId string, context map[string]any) *model.WorkflowInstance {
	instance, err := f.engine.StartWorkflow(testTenant, "employee-7", model.StartWorkflowRequest{
		DefinitionId: definitionId,
		Context:      context,
	})
	require.NoError(t, err)
	return instance
}

func (f *fixture) pendingTask(t *testing.T, instanceId string) *model.WorkflowTask {
	tasks, err := f.storage.Tasks.TasksByInstance(instanceId)
	require.NoError(t, err)
	for i := range tasks {
		if tasks[i].Status == model.TASK_PENDING {
			return &tasks[i]
		}
	}
	t.Fatalf("no pending task for instance %s", instanceId)
	return nil
}

func TestWorkflowEngine(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, f *fixture){
		"test auto approval path":              testAutoApprovalPath,
		"test approval and resume":             testApprovalAndResume,
		"test rejection completes":             testRejectionCompletes,
		"test delay and resume":                testDelayAndResume,
		"test cancellation":                    testCancellation,
		"test invalid transitions":             testInvalidTransitions,
		"test failure and retry":               testFailureAndRetry,
		"test execution log ordering":          testExecutionLogOrdering,
		"test definition version pin":          testDefinitionVersionPin,
		"test execution report":                testExecutionReport,
		"test at most one pending task":        testAtMostOnePendingTask,
		"test conflicted park reuses task":     testConflictedParkReusesTask,
		"test conflicted resume keeps pending": testConflictedResumeKeepsPending,
		"test delayed resume on storage error": testDelayedResumeOnStorageError,
		"test automation type shorthand":       testAutomationTypeShorthand,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newFixture())
		})
	}
}

func testAutoApprovalPath(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 2})

	require.Equal(t, model.INSTANCE_COMPLETED, instance.Status)
	require.Empty(t, instance.CurrentStepId)
	require.NotNil(t, instance.CompletedAt)
	require.Equal(t, "AutoApproved", instance.Context["Status"])

	tasks, err := f.storage.Tasks.TasksByInstance(instance.Id)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func testApprovalAndResume(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 5})

	require.Equal(t, model.INSTANCE_WAITING_FOR_APPROVAL, instance.Status)
	require.Equal(t, "manager-approval", instance.CurrentStepId)

	pending := f.pendingTask(t, instance.Id)
	require.Equal(t, "manager", pending.Assignee)
	require.Equal(t, "Approve 5 days of leave for Jordan", pending.Description)
	require.NotNil(t, pending.DueDate)

	completed, err := f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{
		Decision: model.DECISION_APPROVE,
		Comments: "enjoy",
	})
	require.NoError(t, err)
	require.Equal(t, model.TASK_COMPLETED, completed.Status)
	require.Equal(t, "manager", completed.CompletedBy)

	resumed, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, resumed.Status)
	require.Equal(t, "Approve", resumed.Context["action"])
}

func testRejectionCompletes(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 5})
	pending := f.pendingTask(t, instance.Id)

	_, err := f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{
		Decision: model.DECISION_REJECT,
		Comments: "blackout period",
	})
	require.NoError(t, err)

	rejected, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, rejected.Status)
	require.Equal(t, "Rejected", rejected.Context["outcome"])
	require.Equal(t, "Reject", rejected.Context["action"])
	require.Empty(t, rejected.CurrentStepId)

	// the notification past the approval step must not have run
	history, err := f.engine.GetHistory(testTenant, instance.Id)
	require.NoError(t, err)
	for _, entry := range history {
		require.NotEqual(t, model.EVENT_NOTIFICATION_SENT, entry.EventType)
	}
}

func testDelayAndResume(t *testing.T, f *fixture) {
	def := f.mustCreate(t, delayDefinition())
	instance := f.start(t, def.Id, nil)

	require.Equal(t, model.INSTANCE_DELAYED, instance.Status)
	require.NotNil(t, instance.ResumeAt)
	require.Equal(t, "wait", instance.CurrentStepId)

	// not due yet: resume is a no-op
	require.NoError(t, f.engine.ResumeDelayed(instance.Id))
	unchanged, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_DELAYED, unchanged.Status)

	// bring the resume time into the past
	past := time.Now().UTC().Add(-time.Minute)
	unchanged.ResumeAt = &past
	require.NoError(t, f.storage.Instances.SaveInstance(unchanged))

	due, err := f.storage.Instances.ListDelayedDue(time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, f.engine.ResumeDelayed(instance.Id))
	resumed, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, resumed.Status)
	require.Nil(t, resumed.ResumeAt)
}

func testCancellation(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 5})
	pending := f.pendingTask(t, instance.Id)

	cancelled, err := f.engine.CancelWorkflow(testTenant, instance.Id, "employee resigned", "hr-admin")
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_CANCELLED, cancelled.Status)
	require.Empty(t, cancelled.CurrentStepId)

	cancelledTask, err := f.storage.Tasks.GetTask(pending.Id)
	require.NoError(t, err)
	require.Equal(t, model.TASK_CANCELLED, cancelledTask.Status)

	// cancelling again is a no-op
	again, err := f.engine.CancelWorkflow(testTenant, instance.Id, "duplicate", "hr-admin")
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_CANCELLED, again.Status)

	// the cancelled task can no longer be completed
	_, err = f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))
}

func testInvalidTransitions(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())

	_, err := f.engine.StartWorkflow(testTenant, "employee-7", model.StartWorkflowRequest{DefinitionId: "missing"})
	require.True(t, model.IsCode(err, model.CODE_NOT_FOUND))

	_, err = f.definitions.SetActive(testTenant, def.Id, false)
	require.NoError(t, err)
	_, err = f.engine.StartWorkflow(testTenant, "employee-7", model.StartWorkflowRequest{DefinitionId: def.Id})
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))
	_, err = f.definitions.SetActive(testTenant, def.Id, true)
	require.NoError(t, err)

	instance := f.start(t, def.Id, map[string]any{"Days": 2})
	require.Equal(t, model.INSTANCE_COMPLETED, instance.Status)

	_, err = f.engine.AdvanceStep(testTenant, instance.Id, nil)
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))

	_, err = f.engine.RetryWorkflow(testTenant, instance.Id, "hr-admin")
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))

	_, err = f.engine.CancelWorkflow(testTenant, instance.Id, "too late", "hr-admin")
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))

	// a parked instance rejects manual advancement
	waiting := f.start(t, def.Id, map[string]any{"Days": 5})
	_, err = f.engine.AdvanceStep(testTenant, waiting.Id, nil)
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))

	// task completed twice resumes the workflow only once
	pending := f.pendingTask(t, waiting.Id)
	_, err = f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.NoError(t, err)
	_, err = f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))

	// foreign tenant sees nothing
	_, err = f.engine.GetInstance("other-tenant", waiting.Id)
	require.True(t, model.IsCode(err, model.CODE_NOT_FOUND))
}

func testFailureAndRetry(t *testing.T, f *fixture) {
	broken := model.WorkflowDefinition{
		Name:     "broken notification",
		Category: "Test",
		Steps: []model.StepDefinition{
			{
				Id:            "notify",
				Name:          "Notify nobody",
				Type:          model.STEP_TYPE_NOTIFICATION,
				Configuration: map[string]any{"message": "hello"},
			},
		},
	}
	def := f.mustCreate(t, broken)

	_, err := f.engine.StartWorkflow(testTenant, "employee-7", model.StartWorkflowRequest{DefinitionId: def.Id})
	require.Error(t, err)

	instances, err := f.engine.ListActiveInstances(testTenant)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	instanceId := instances[0].Id
	require.Equal(t, 1, instances[0].RetryCount)

	// two more failed dispatches exhaust the retry limit
	_, err = f.engine.AdvanceStep(testTenant, instanceId, nil)
	require.Error(t, err)
	_, err = f.engine.AdvanceStep(testTenant, instanceId, nil)
	require.Error(t, err)

	failed, err := f.engine.GetInstance(testTenant, instanceId)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_FAILED, failed.Status)
	require.NotEmpty(t, failed.ErrorMessage)
	require.Equal(t, "notify", failed.CurrentStepId)

	// retry resets the counter and re-dispatches the failed step
	_, err = f.engine.RetryWorkflow(testTenant, instanceId, "hr-admin")
	require.Error(t, err)
	retried, err := f.engine.GetInstance(testTenant, instanceId)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_RUNNING, retried.Status)
	require.Equal(t, 1, retried.RetryCount)
}

func testExecutionLogOrdering(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 2})

	history, err := f.engine.GetHistory(testTenant, instance.Id)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	require.Equal(t, model.EVENT_WORKFLOW_STARTED, history[0].EventType)
	require.Equal(t, model.EVENT_WORKFLOW_COMPLETED, history[len(history)-1].EventType)

	var lastSeq int64
	started := make(map[string]bool)
	for _, entry := range history {
		require.Greater(t, entry.Seq, lastSeq)
		lastSeq = entry.Seq
		switch entry.EventType {
		case model.EVENT_STEP_STARTED:
			started[entry.StepId] = true
		case model.EVENT_STEP_COMPLETED:
			require.True(t, started[entry.StepId], "step %s completed before it started", entry.StepId)
		}
	}
}

// Editing a definition must not change the steps of an instance already
// running against the previous version.
func testDefinitionVersionPin(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 5})
	require.Equal(t, 1, instance.DefinitionVersion)

	update := delayDefinition()
	updated, err := f.definitions.UpdateDefinition(testTenant, def.Id, update)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)

	pending := f.pendingTask(t, instance.Id)
	_, err = f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.NoError(t, err)

	resumed, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, resumed.Status)
	require.Equal(t, 1, resumed.DefinitionVersion)
}

func testExecutionReport(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 5})

	report, err := f.engine.ExecutionReport(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, "leave approval", report.WorkflowName)
	require.Equal(t, model.INSTANCE_WAITING_FOR_APPROVAL, report.Status)
	require.Equal(t, 1, report.TotalTasks)
	require.Equal(t, 1, report.PendingTasks)

	pending := f.pendingTask(t, instance.Id)
	_, err = f.tasks.CompleteTask(testTenant, pending.Id, "manager", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.NoError(t, err)

	report, err = f.engine.ExecutionReport(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, report.Status)
	require.Equal(t, 1, report.CompletedTasks)
	require.Zero(t, report.PendingTasks)
	require.GreaterOrEqual(t, report.DurationMillis, int64(0))
}

func testAtMostOnePendingTask(t *testing.T, f *fixture) {
	def := f.mustCreate(t, leaveDefinition())
	instance := f.start(t, def.Id, map[string]any{"EmployeeName": "Jordan", "Days": 5})

	tasks, err := f.storage.Tasks.TasksByInstance(instance.Id)
	require.NoError(t, err)
	pendingCount := 0
	for _, it := range tasks {
		if it.Status == model.TASK_PENDING {
			pendingCount++
		}
	}
	require.Equal(t, 1, pendingCount)

	pending := f.pendingTask(t, instance.Id)
	byUser, err := f.tasks.PendingTasksForUser(testTenant, "manager")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, pending.Id, byUser[0].Id)

	// reassignment keeps the single pending task, under the new assignee
	_, err = f.tasks.ReassignTask(testTenant, pending.Id, "hr-admin", model.ReassignTaskRequest{
		FromAssignee: "manager",
		ToAssignee:   "director",
	})
	require.NoError(t, err)
	byUser, err = f.tasks.PendingTasksForUser(testTenant, "manager")
	require.NoError(t, err)
	require.Empty(t, byUser)
	byUser, err = f.tasks.PendingTasksForUser(testTenant, "director")
	require.NoError(t, err)
	require.Len(t, byUser, 1)

	// reassigning with a stale source assignee is rejected
	_, err = f.tasks.ReassignTask(testTenant, pending.Id, "hr-admin", model.ReassignTaskRequest{
		FromAssignee: "manager",
		ToAssignee:   "someone-else",
	})
	require.True(t, model.IsCode(err, model.CODE_INVALID_STATE))
}

// A park save losing the optimistic concurrency race leaves the pending task
// behind; the retried dispatch must reuse it instead of assigning the step a
// second time.
func testConflictedParkReusesTask(t *testing.T, f *fixture) {
	def := f.mustCreate(t, signoffDefinition())
	flaky := f.flakyInstances()
	flaky.failSaves = 1

	instance, err := f.engine.StartWorkflow(testTenant, "employee-7", model.StartWorkflowRequest{DefinitionId: def.Id})
	require.True(t, model.IsCode(err, model.CODE_CONFLICT))

	retried, err := f.engine.AdvanceStep(testTenant, instance.Id, nil)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_WAITING_FOR_APPROVAL, retried.Status)

	tasks, err := f.storage.Tasks.TasksByInstance(instance.Id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, model.TASK_PENDING, tasks[0].Status)

	_, err = f.tasks.CompleteTask(testTenant, tasks[0].Id, "finance", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.NoError(t, err)
	done, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, done.Status)
}

// A completion whose instance save conflicts must leave the task Pending so
// the caller can retry; the task turns Completed only once the resume is
// durable.
func testConflictedResumeKeepsPending(t *testing.T, f *fixture) {
	def := f.mustCreate(t, signoffDefinition())
	instance := f.start(t, def.Id, nil)
	pending := f.pendingTask(t, instance.Id)

	flaky := f.flakyInstances()
	flaky.failSaves = 1
	_, err := f.tasks.CompleteTask(testTenant, pending.Id, "finance", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.True(t, model.IsCode(err, model.CODE_CONFLICT))

	stale, err := f.storage.Tasks.GetTask(pending.Id)
	require.NoError(t, err)
	require.Equal(t, model.TASK_PENDING, stale.Status)
	parked, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_WAITING_FOR_APPROVAL, parked.Status)

	// the same completion retried now goes through
	completed, err := f.tasks.CompleteTask(testTenant, pending.Id, "finance", model.CompleteTaskRequest{Decision: model.DECISION_APPROVE})
	require.NoError(t, err)
	require.Equal(t, model.TASK_COMPLETED, completed.Status)
	require.Equal(t, "finance", completed.CompletedBy)
	resumed, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, resumed.Status)
}

func testDelayedResumeOnStorageError(t *testing.T, f *fixture) {
	// a vanished instance is skipped without error
	require.NoError(t, f.engine.ResumeDelayed("missing-instance"))

	def := f.mustCreate(t, delayDefinition())
	instance := f.start(t, def.Id, nil)
	stored, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Minute)
	stored.ResumeAt = &past
	require.NoError(t, f.storage.Instances.SaveInstance(stored))

	// a read failure surfaces so the scheduler keeps the instance in play
	flaky := f.flakyInstances()
	flaky.failGets = 1
	err = f.engine.ResumeDelayed(instance.Id)
	require.True(t, model.IsCode(err, model.CODE_TRANSIENT_FAILURE))

	require.NoError(t, f.engine.ResumeDelayed(instance.Id))
	resumed, err := f.engine.GetInstance(testTenant, instance.Id)
	require.NoError(t, err)
	require.Equal(t, model.INSTANCE_COMPLETED, resumed.Status)
}

// The step designer emits automationType with the action parameters inlined
// in the step configuration instead of an actions list.
func testAutomationTypeShorthand(t *testing.T, f *fixture) {
	def := f.mustCreate(t, model.WorkflowDefinition{
		Name:     "record sync",
		Category: "Attendance",
		Steps: []model.StepDefinition{
			{
				Id:   "mark-synced",
				Name: "Mark synced",
				Type: model.STEP_TYPE_AUTOMATION,
				Configuration: map[string]any{
					"automationType": "updaterecord",
					"field":          "Status",
					"value":          "Synced",
				},
			},
		},
	})
	instance := f.start(t, def.Id, map[string]any{"Status": "Dirty"})

	require.Equal(t, model.INSTANCE_COMPLETED, instance.Status)
	require.Equal(t, "Synced", instance.Context["Status"])

	history, err := f.engine.GetHistory(testTenant, instance.Id)
	require.NoError(t, err)
	var automationRan bool
	for _, entry := range history {
		if entry.EventType == model.EVENT_AUTOMATION_EXECUTED {
			automationRan = true
		}
	}
	require.True(t, automationRan)
}
