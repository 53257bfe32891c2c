package model

import (
	"strings"
	"time"
)

type Operator string

const (
	OP_EQUALS      Operator = "equals"
	OP_NOT_EQUALS  Operator = "notequals"
	OP_GREATER     Operator = "greaterthan"
	OP_LESS        Operator = "lessthan"
	OP_CONTAINS    Operator = "contains"
	OP_STARTS_WITH Operator = "startswith"
	OP_ENDS_WITH   Operator = "endswith"
)

type LogicalOperator string

const (
	LOGICAL_AND LogicalOperator = "AND"
	LOGICAL_OR  LogicalOperator = "OR"
)

// Condition links to the next condition in the list through LogicalOperator;
// an empty value means AND.
type Condition struct {
	Field           string          `json:"field"`
	Operator        Operator        `json:"operator"`
	Value           any             `json:"value"`
	DataType        string          `json:"dataType,omitempty"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty"`
}

func (c Condition) NormalizedOperator() Operator {
	return Operator(strings.ToLower(string(c.Operator)))
}

func (c Condition) Link() LogicalOperator {
	if strings.EqualFold(string(c.LogicalOperator), string(LOGICAL_OR)) {
		return LOGICAL_OR
	}
	return LOGICAL_AND
}

type ActionType string

const (
	ACTION_SEND_NOTIFICATION ActionType = "SendNotification"
	ACTION_REQUIRE_APPROVAL  ActionType = "RequireApproval"
	ACTION_UPDATE_FIELD      ActionType = "UpdateField"
	ACTION_CREATE_TASK       ActionType = "CreateTask"
	ACTION_LOG_AUDIT         ActionType = "LogAudit"
)

type RuleAction struct {
	Type          ActionType     `json:"type"`
	Configuration map[string]any `json:"configuration"`
}

// BusinessRule is a standalone condition+action bundle with its own
// lifecycle, evaluated on demand against an arbitrary context.
type BusinessRule struct {
	Id         string       `json:"id"`
	TenantId   string       `json:"tenantId"`
	Name       string       `json:"name"`
	Category   string       `json:"category"`
	Conditions []Condition  `json:"conditions"`
	Actions    []RuleAction `json:"actions"`
	Priority   int          `json:"priority"`
	Active     bool         `json:"active"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	// Seq breaks priority ties by creation order.
	Seq int64 `json:"seq"`
}

type RuleEvaluation struct {
	RuleId          string           `json:"ruleId"`
	RuleName        string           `json:"ruleName"`
	ConditionsMet   bool             `json:"conditionsMet"`
	ActionsExecuted []string         `json:"actionsExecuted"`
	FailedActions   []ExecutedAction `json:"failedActions,omitempty"`
	EvaluatedAt     time.Time        `json:"evaluatedAt"`
}

// ExecutedAction records the outcome of one action in a batch. Failures do
// not abort the batch; they are collected here.
type ExecutedAction struct {
	Type    ActionType   `json:"type"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Effects []SideEffect `json:"-"`
}

// SideEffect is a request the action executor hands back to its caller
// instead of performing the write itself.
type SideEffect struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

type RuleTemplate struct {
	Id         string       `json:"id"`
	Name       string       `json:"name"`
	Desc       string       `json:"description"`
	Category   string       `json:"category"`
	Conditions []Condition  `json:"conditionTemplate"`
	Actions    []RuleAction `json:"actionTemplate"`
}
