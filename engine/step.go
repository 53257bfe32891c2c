package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/notify"
	"github.com/flowops/cadenza/rules"
	"github.com/flowops/cadenza/util"
)

// StepResult tells the advance loop what to do after a step ran. A halting
// result moves the instance out of Running; a non-halting one carries the id
// of the step to run next, empty meaning the path is exhausted.
type StepResult struct {
	NextStepId string
	Halt       bool
	HaltStatus model.InstanceStatus
	ResumeAt   *time.Time
	Task       *model.WorkflowTask
	Events     []model.ExecutionLogEntry
}

type Step interface {
	GetId() string
	GetName() string
	GetType() model.StepType
	Execute(instance *model.WorkflowInstance) (*StepResult, error)
}

var _ Step = new(baseStep)

type baseStep struct {
	def      model.StepDefinition
	runtime  *Runtime
	nextStep string
}

// Runtime bundles the collaborators step variants reach for while running.
type Runtime struct {
	Evaluator *rules.Evaluator
	Executor  *rules.Executor
	Notifier  notify.Notifier
}

func newBaseStep(def model.StepDefinition, runtime *Runtime) *baseStep {
	next := ""
	if len(def.NextSteps) > 0 {
		next = def.NextSteps[0]
	}
	return &baseStep{def: def, runtime: runtime, nextStep: next}
}

func (bs *baseStep) GetId() string {
	return bs.def.Id
}
func (bs *baseStep) GetName() string {
	return bs.def.Name
}
func (bs *baseStep) GetType() model.StepType {
	return bs.def.Type
}

func (bs *baseStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	return nil, fmt.Errorf("can not execute")
}

// BuildSteps converts a stored definition into executable steps keyed by step
// id. The definition is assumed to have passed Validate on save.
func BuildSteps(wd *model.WorkflowDefinition, runtime *Runtime) (map[string]Step, error) {
	steps := make(map[string]Step)
	for _, stepDef := range wd.Steps {
		base := newBaseStep(stepDef, runtime)
		var step Step
		switch stepDef.Type {
		case model.STEP_TYPE_APPROVAL:
			step = &approvalStep{baseStep: *base}
		case model.STEP_TYPE_NOTIFICATION:
			step = &notificationStep{baseStep: *base}
		case model.STEP_TYPE_AUTOMATION:
			actions, err := actionsFromConfig(stepDef.Configuration)
			if err != nil {
				return nil, err
			}
			step = &automationStep{baseStep: *base, actions: actions}
		case model.STEP_TYPE_CONDITION:
			conditions, err := conditionsFromConfig(stepDef.Configuration)
			if err != nil {
				return nil, err
			}
			step = &conditionStep{
				baseStep:   *base,
				conditions: conditions,
				trueStep:   model.ConfigString(stepDef.Configuration, "trueStep", ""),
				falseStep:  model.ConfigString(stepDef.Configuration, "falseStep", ""),
			}
		case model.STEP_TYPE_DELAY:
			step = &delayStep{
				baseStep: *base,
				delay:    time.Duration(model.ConfigInt(stepDef.Configuration, "delayMinutes", 0)) * time.Minute,
			}
		case model.STEP_TYPE_CUSTOM:
			step = &customStep{baseStep: *base}
		default:
			return nil, model.NewValidationError(fmt.Sprintf("unknown step type %s", stepDef.Type))
		}
		steps[stepDef.Id] = step
	}
	return steps, nil
}

// approvalStep parks the instance until a decision comes in through the
// pending task it creates.
type approvalStep struct {
	baseStep
}

func (s *approvalStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	assignee := model.ConfigString(s.def.Configuration, "assignee", "")
	if len(assignee) == 0 {
		assignee = model.ConfigString(s.def.Configuration, "approver", "")
	}
	if len(assignee) == 0 {
		return nil, model.NewValidationError(fmt.Sprintf("stepId=%s, approval step has no assignee", s.def.Id))
	}
	task := &model.WorkflowTask{
		TenantId:   instance.TenantId,
		InstanceId: instance.Id,
		StepId:     s.def.Id,
		Name:       s.def.Name,
		Description: util.ResolveTemplate(
			model.ConfigString(s.def.Configuration, "description", "Approval required for step "+s.def.Name),
			instance.Context),
		Status:     model.TASK_PENDING,
		Assignee:   util.ResolveTemplate(assignee, instance.Context),
		AssignedBy: instance.Initiator,
		Input:      instance.Context,
	}
	if dueDays := model.ConfigInt(s.def.Configuration, "dueInDays", 0); dueDays > 0 {
		due := time.Now().UTC().Add(time.Duration(dueDays) * 24 * time.Hour)
		task.DueDate = &due
	}
	if s.runtime.Notifier != nil {
		s.runtime.Notifier.Send(task.Assignee, "Approval Required", task.Description, nil)
	}
	return &StepResult{
		NextStepId: s.nextStep,
		Halt:       true,
		HaltStatus: model.INSTANCE_WAITING_FOR_APPROVAL,
		Task:       task,
		Events: []model.ExecutionLogEntry{{
			EventType: model.EVENT_TASK_ASSIGNED,
			Message:   fmt.Sprintf("approval task assigned to %s", task.Assignee),
			Payload:   map[string]any{"assignee": task.Assignee},
		}},
	}, nil
}

type notificationStep struct {
	baseStep
}

func (s *notificationStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	recipients := model.ConfigStrings(s.def.Configuration, "recipients")
	if len(recipients) == 0 {
		return nil, model.NewValidationError(fmt.Sprintf("stepId=%s, notification step has no recipients", s.def.Id))
	}
	title := util.ResolveTemplate(model.ConfigString(s.def.Configuration, "title", "Workflow Notification"), instance.Context)
	message := util.ResolveTemplate(model.ConfigString(s.def.Configuration, "message", ""), instance.Context)
	channels := model.ConfigStrings(s.def.Configuration, "channels")
	events := make([]model.ExecutionLogEntry, 0, len(recipients))
	for _, recipient := range recipients {
		resolved := util.ResolveTemplate(recipient, instance.Context)
		s.runtime.Notifier.Send(resolved, title, message, channels)
		events = append(events, model.ExecutionLogEntry{
			EventType: model.EVENT_NOTIFICATION_SENT,
			Message:   fmt.Sprintf("notification sent to %s", resolved),
			Payload:   map[string]any{"recipient": resolved, "title": title},
		})
	}
	return &StepResult{NextStepId: s.nextStep, Events: events}, nil
}

// automationStep runs the configured actions against the instance context.
// Individual action failures are recorded and do not stop the workflow; the
// step fails only when every action failed.
type automationStep struct {
	baseStep
	actions []model.RuleAction
}

func (s *automationStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	executed, failed := s.runtime.Executor.ExecuteBatch(s.actions, instance.Context)
	for _, record := range executed {
		dispatchEffects(s.runtime.Notifier, record)
	}
	if len(executed) == 0 && len(failed) > 0 {
		return nil, model.NewTransientError(fmt.Sprintf("stepId=%s, all automation actions failed", s.def.Id), nil)
	}
	payload := map[string]any{"executed": len(executed), "failed": len(failed)}
	return &StepResult{
		NextStepId: s.nextStep,
		Events: []model.ExecutionLogEntry{{
			EventType: model.EVENT_AUTOMATION_EXECUTED,
			Message:   fmt.Sprintf("automation executed %d actions, %d failed", len(executed), len(failed)),
			Payload:   payload,
		}},
	}, nil
}

type conditionStep struct {
	baseStep
	conditions []model.Condition
	trueStep   string
	falseStep  string
}

func (s *conditionStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	outcome := s.runtime.Evaluator.Evaluate(s.conditions, instance.Context)
	next := s.falseStep
	if outcome {
		next = s.trueStep
	}
	return &StepResult{
		NextStepId: next,
		Events: []model.ExecutionLogEntry{{
			EventType: model.EVENT_CONDITION_EVALUATED,
			Message:   fmt.Sprintf("condition evaluated to %t", outcome),
			Payload:   map[string]any{"result": outcome, "nextStep": next},
		}},
	}, nil
}

type delayStep struct {
	baseStep
	delay time.Duration
}

func (s *delayStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	resumeAt := time.Now().UTC().Add(s.delay)
	return &StepResult{
		NextStepId: s.nextStep,
		Halt:       true,
		HaltStatus: model.INSTANCE_DELAYED,
		ResumeAt:   &resumeAt,
		Events: []model.ExecutionLogEntry{{
			EventType: model.EVENT_WORKFLOW_DELAYED,
			Message:   fmt.Sprintf("workflow delayed until %s", resumeAt.Format(time.RFC3339)),
			Payload:   map[string]any{"resumeAt": resumeAt.Format(time.RFC3339)},
		}},
	}, nil
}

// customStep resolves its configuration against the context and records it.
// Organizations plug real behavior in through automation actions; custom
// steps exist for markers and integrations handled out of band.
type customStep struct {
	baseStep
}

func (s *customStep) Execute(instance *model.WorkflowInstance) (*StepResult, error) {
	resolved := util.ResolveParams(instance.Context, s.def.Configuration)
	return &StepResult{
		NextStepId: s.nextStep,
		Events: []model.ExecutionLogEntry{{
			EventType: model.EVENT_STEP_COMPLETED,
			Message:   fmt.Sprintf("custom step %s executed", s.def.Name),
			Payload:   resolved,
		}},
	}, nil
}

func dispatchEffects(notifier notify.Notifier, record model.ExecutedAction) {
	if notifier == nil {
		return
	}
	for _, effect := range record.Effects {
		switch effect.Kind {
		case rules.EFFECT_NOTIFY:
			notifier.Send(
				model.ConfigString(effect.Payload, "recipient", ""),
				model.ConfigString(effect.Payload, "title", ""),
				model.ConfigString(effect.Payload, "message", ""),
				model.ConfigStrings(effect.Payload, "channels"))
		case rules.EFFECT_APPROVAL_REQUEST:
			for _, approver := range model.ConfigStrings(effect.Payload, "approvers") {
				notifier.Send(approver, "Approval Required", model.ConfigString(effect.Payload, "message", ""), nil)
			}
		}
	}
}

func conditionsFromConfig(configuration map[string]any) ([]model.Condition, error) {
	raw, ok := configuration["condition"]
	if !ok {
		return nil, model.NewValidationError("condition step should have condition")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, model.NewValidationError("condition configuration is not valid")
	}
	var single model.Condition
	if err := json.Unmarshal(data, &single); err == nil && len(single.Field) > 0 {
		return []model.Condition{single}, nil
	}
	var many []model.Condition
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, model.NewValidationError("condition configuration is not valid")
	}
	return many, nil
}

// actionsFromConfig accepts either an explicit actions list or the
// automationType shorthand, where the step configuration itself carries the
// single action's parameters.
func actionsFromConfig(configuration map[string]any) ([]model.RuleAction, error) {
	if raw, ok := configuration["actions"]; ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, model.NewValidationError("automation actions configuration is not valid")
		}
		var actions []model.RuleAction
		if err := json.Unmarshal(data, &actions); err != nil {
			return nil, model.NewValidationError("automation actions configuration is not valid")
		}
		return actions, nil
	}
	if kind := model.ConfigString(configuration, "automationType", ""); len(kind) > 0 {
		actionType, err := actionTypeFor(kind)
		if err != nil {
			return nil, err
		}
		return []model.RuleAction{{Type: actionType, Configuration: configuration}}, nil
	}
	return nil, model.NewValidationError("automation step should have actions or automationType")
}

func actionTypeFor(kind string) (model.ActionType, error) {
	switch strings.ToLower(kind) {
	case "updaterecord", "updatefield":
		return model.ACTION_UPDATE_FIELD, nil
	case "sendnotification":
		return model.ACTION_SEND_NOTIFICATION, nil
	case "createtask":
		return model.ACTION_CREATE_TASK, nil
	case "logaudit":
		return model.ACTION_LOG_AUDIT, nil
	default:
		return "", model.NewValidationError(fmt.Sprintf("unknown automationType %s", kind))
	}
}
