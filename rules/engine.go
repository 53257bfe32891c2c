package rules

import (
	"time"

	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/metrics"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/notify"
	"github.com/flowops/cadenza/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine stores business rules and evaluates them on demand. Rules in one
// category form a pipeline: a later rule sees context mutations made by an
// earlier rule's UpdateField action.
type Engine struct {
	storage   persistence.RuleStorage
	evaluator *Evaluator
	executor  *Executor
	notifier  notify.Notifier
	metrics   *metrics.Metrics
}

func NewEngine(storage persistence.RuleStorage, notifier notify.Notifier, m *metrics.Metrics) *Engine {
	return &Engine{
		storage:   storage,
		evaluator: NewEvaluator(),
		executor:  NewExecutor(),
		notifier:  notifier,
		metrics:   m,
	}
}

func (e *Engine) CreateRule(rule model.BusinessRule) (*model.BusinessRule, error) {
	if len(rule.Name) == 0 {
		return nil, model.NewValidationError("rule name can not be empty")
	}
	if len(rule.TenantId) == 0 {
		return nil, model.NewValidationError("rule tenant can not be empty")
	}
	for _, action := range rule.Actions {
		switch action.Type {
		case model.ACTION_SEND_NOTIFICATION, model.ACTION_REQUIRE_APPROVAL,
			model.ACTION_UPDATE_FIELD, model.ACTION_CREATE_TASK, model.ACTION_LOG_AUDIT:
		default:
			return nil, model.NewValidationError("unknown action type " + string(action.Type))
		}
	}
	rule.Id = uuid.New().String()
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt
	saved, err := e.storage.SaveRule(rule)
	if err != nil {
		return nil, model.NewTransientError("error saving rule", err)
	}
	logger.Info("business rule created", zap.String("rule", saved.Id), zap.String("tenant", saved.TenantId))
	return saved, nil
}

func (e *Engine) UpdateRule(tenantId string, ruleId string, update model.BusinessRule) (*model.BusinessRule, error) {
	existing, err := e.storage.GetRule(tenantId, ruleId)
	if err != nil {
		return nil, model.NewNotFoundError("rule", ruleId)
	}
	if len(update.Name) > 0 {
		existing.Name = update.Name
	}
	if len(update.Category) > 0 {
		existing.Category = update.Category
	}
	if update.Conditions != nil {
		existing.Conditions = update.Conditions
	}
	if update.Actions != nil {
		existing.Actions = update.Actions
	}
	if update.Priority != 0 {
		existing.Priority = update.Priority
	}
	existing.Active = update.Active
	existing.UpdatedAt = time.Now().UTC()
	saved, err := e.storage.SaveRule(*existing)
	if err != nil {
		return nil, model.NewTransientError("error saving rule", err)
	}
	return saved, nil
}

func (e *Engine) DeleteRule(tenantId string, ruleId string) error {
	if _, err := e.storage.GetRule(tenantId, ruleId); err != nil {
		return model.NewNotFoundError("rule", ruleId)
	}
	if err := e.storage.DeleteRule(tenantId, ruleId); err != nil {
		return model.NewTransientError("error deleting rule", err)
	}
	return nil
}

func (e *Engine) GetRule(tenantId string, ruleId string) (*model.BusinessRule, error) {
	rule, err := e.storage.GetRule(tenantId, ruleId)
	if err != nil {
		return nil, model.NewNotFoundError("rule", ruleId)
	}
	return rule, nil
}

func (e *Engine) ListRules(tenantId string, category string) ([]model.BusinessRule, error) {
	rules, err := e.storage.ListRules(tenantId, category)
	if err != nil {
		return nil, model.NewTransientError("error listing rules", err)
	}
	return rules, nil
}

// EvaluateRule runs one rule against the context. Actions execute only when
// the conditions hold; each executed action dispatches its side effects and
// failures are collected without aborting the batch.
func (e *Engine) EvaluateRule(tenantId string, ruleId string, context map[string]any) (*model.RuleEvaluation, error) {
	rule, err := e.storage.GetRule(tenantId, ruleId)
	if err != nil {
		return nil, model.NewNotFoundError("rule", ruleId)
	}
	return e.evaluate(rule, context), nil
}

// EvaluateRules runs every active rule of the category in ascending priority
// order against a shared context.
func (e *Engine) EvaluateRules(tenantId string, category string, context map[string]any) ([]model.RuleEvaluation, error) {
	rules, err := e.storage.ListRules(tenantId, category)
	if err != nil {
		return nil, model.NewTransientError("error listing rules", err)
	}
	results := make([]model.RuleEvaluation, 0, len(rules))
	for i := range rules {
		if !rules[i].Active {
			continue
		}
		results = append(results, *e.evaluate(&rules[i], context))
	}
	return results, nil
}

func (e *Engine) evaluate(rule *model.BusinessRule, context map[string]any) *model.RuleEvaluation {
	result := &model.RuleEvaluation{
		RuleId:          rule.Id,
		RuleName:        rule.Name,
		ActionsExecuted: []string{},
		EvaluatedAt:     time.Now().UTC(),
	}
	result.ConditionsMet = e.evaluator.Evaluate(rule.Conditions, context)
	outcome := "not_met"
	if result.ConditionsMet {
		outcome = "met"
		executed, failed := e.executor.ExecuteBatch(rule.Actions, context)
		for _, record := range executed {
			e.dispatchEffects(record)
			result.ActionsExecuted = append(result.ActionsExecuted, string(record.Type))
		}
		result.FailedActions = failed
	}
	if e.metrics != nil {
		e.metrics.RuleEvaluations.WithLabelValues(outcome).Inc()
	}
	logger.Debug("rule evaluated",
		zap.String("rule", rule.Id),
		zap.Bool("conditionsMet", result.ConditionsMet),
		zap.Strings("actions", result.ActionsExecuted))
	return result
}

func (e *Engine) dispatchEffects(record model.ExecutedAction) {
	for _, effect := range record.Effects {
		switch effect.Kind {
		case EFFECT_NOTIFY:
			e.notifier.Send(
				model.ConfigString(effect.Payload, "recipient", ""),
				model.ConfigString(effect.Payload, "title", ""),
				model.ConfigString(effect.Payload, "message", ""),
				model.ConfigStrings(effect.Payload, "channels"))
		case EFFECT_APPROVAL_REQUEST:
			for _, approver := range model.ConfigStrings(effect.Payload, "approvers") {
				e.notifier.Send(approver, "Approval Required", model.ConfigString(effect.Payload, "message", ""), nil)
			}
		default:
			// update_field already mutated the shared context; create_task
			// and audit effects outside a workflow instance are log-only.
			logger.Info("rule side effect", zap.String("kind", effect.Kind), zap.Any("payload", effect.Payload))
		}
	}
}

// Templates is the built-in rule catalog carried over from the product's
// standard attendance and leave policies.
func (e *Engine) Templates() []model.RuleTemplate {
	return []model.RuleTemplate{
		{
			Id:       "attendance-late-arrival",
			Name:     "Late Arrival Alert",
			Desc:     "Send alert when employee arrives late",
			Category: "Attendance",
			Conditions: []model.Condition{
				{Field: "CheckInTime", Operator: model.OP_GREATER, Value: "09:00", DataType: "Time"},
			},
			Actions: []model.RuleAction{
				{Type: model.ACTION_SEND_NOTIFICATION, Configuration: map[string]any{
					"recipients": []any{"manager", "hr"},
					"message":    "Employee {EmployeeName} arrived late at {CheckInTime}",
				}},
			},
		},
		{
			Id:       "overtime-approval",
			Name:     "Overtime Approval Required",
			Desc:     "Require approval for overtime work",
			Category: "Attendance",
			Conditions: []model.Condition{
				{Field: "WorkHours", Operator: model.OP_GREATER, Value: "8", DataType: "Number"},
			},
			Actions: []model.RuleAction{
				{Type: model.ACTION_REQUIRE_APPROVAL, Configuration: map[string]any{
					"approvers": []any{"manager"},
					"message":   "Overtime approval required for {EmployeeName}",
				}},
			},
		},
		{
			Id:       "leave-balance-warning",
			Name:     "Low Leave Balance Warning",
			Desc:     "Warn when leave balance is low",
			Category: "Leave",
			Conditions: []model.Condition{
				{Field: "LeaveBalance", Operator: model.OP_LESS, Value: "5", DataType: "Number"},
			},
			Actions: []model.RuleAction{
				{Type: model.ACTION_SEND_NOTIFICATION, Configuration: map[string]any{
					"recipients": []any{"employee", "hr"},
					"message":    "Leave balance is low: {LeaveBalance} days remaining",
				}},
			},
		},
	}
}
