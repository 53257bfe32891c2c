package rules

import (
	"fmt"

	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/util"
	"go.uber.org/zap"
)

const (
	EFFECT_NOTIFY           = "notify"
	EFFECT_APPROVAL_REQUEST = "approval_request"
	EFFECT_UPDATE_FIELD     = "update_field"
	EFFECT_CREATE_TASK      = "create_task"
	EFFECT_AUDIT            = "audit"
)

// Executor turns one action into side-effect requests. It never performs the
// write itself; the caller owns delivery. Templated configuration strings
// resolve {key} tokens from the context, missing keys to the empty string.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Execute resolves one action against the context. A failing action is
// reported in the returned record, never as an error, so a batch can carry
// on past it.
func (ex *Executor) Execute(action model.RuleAction, context map[string]any) (record model.ExecutedAction) {
	record = model.ExecutedAction{Type: action.Type}
	defer func() {
		if r := recover(); r != nil {
			record.Success = false
			record.Error = fmt.Sprintf("action panicked: %v", r)
			logger.Error("action execution panicked", zap.String("type", string(action.Type)), zap.Any("panic", r))
		}
	}()
	resolved := util.ResolveParams(context, action.Configuration)
	switch action.Type {
	case model.ACTION_SEND_NOTIFICATION:
		recipients := model.ConfigStrings(resolved, "recipients")
		if len(recipients) == 0 {
			record.Error = "no recipients configured"
			return record
		}
		title := model.ConfigString(resolved, "title", "Workflow Notification")
		message := model.ConfigString(resolved, "message", "")
		channels := model.ConfigStrings(resolved, "channels")
		for _, recipient := range recipients {
			record.Effects = append(record.Effects, model.SideEffect{
				Kind: EFFECT_NOTIFY,
				Payload: map[string]any{
					"recipient": recipient,
					"title":     title,
					"message":   message,
					"channels":  channels,
				},
			})
		}
	case model.ACTION_REQUIRE_APPROVAL:
		approvers := model.ConfigStrings(resolved, "approvers")
		if len(approvers) == 0 {
			record.Error = "no approvers configured"
			return record
		}
		record.Effects = append(record.Effects, model.SideEffect{
			Kind: EFFECT_APPROVAL_REQUEST,
			Payload: map[string]any{
				"approvers": approvers,
				"message":   model.ConfigString(resolved, "message", "Approval required"),
			},
		})
	case model.ACTION_UPDATE_FIELD:
		field := model.ConfigString(resolved, "field", "")
		if len(field) == 0 {
			record.Error = "no field configured"
			return record
		}
		value := resolved["value"]
		context[field] = value
		record.Effects = append(record.Effects, model.SideEffect{
			Kind:    EFFECT_UPDATE_FIELD,
			Payload: map[string]any{"field": field, "value": value},
		})
	case model.ACTION_CREATE_TASK:
		record.Effects = append(record.Effects, model.SideEffect{
			Kind: EFFECT_CREATE_TASK,
			Payload: map[string]any{
				"name":        model.ConfigString(resolved, "name", "Follow up"),
				"assignee":    model.ConfigString(resolved, "assignee", ""),
				"description": model.ConfigString(resolved, "description", ""),
			},
		})
	case model.ACTION_LOG_AUDIT:
		record.Effects = append(record.Effects, model.SideEffect{
			Kind:    EFFECT_AUDIT,
			Payload: map[string]any{"message": model.ConfigString(resolved, "message", "")},
		})
	default:
		record.Error = fmt.Sprintf("unknown action type %s", action.Type)
		return record
	}
	record.Success = true
	return record
}

// ExecuteBatch runs every action in declared order. One action failing does
// not prevent the rest; successes and failures are collected separately.
func (ex *Executor) ExecuteBatch(actions []model.RuleAction, context map[string]any) (executed []model.ExecutedAction, failed []model.ExecutedAction) {
	for _, action := range actions {
		record := ex.Execute(action, context)
		if record.Success {
			executed = append(executed, record)
		} else {
			logger.Warn("action failed in batch", zap.String("type", string(action.Type)), zap.String("error", record.Error))
			failed = append(failed, record)
		}
	}
	return executed, failed
}
