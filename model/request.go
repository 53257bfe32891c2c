package model

type StartWorkflowRequest struct {
	DefinitionId string         `json:"definitionId"`
	Context      map[string]any `json:"context"`
}

type AdvanceStepRequest struct {
	StepData map[string]any `json:"stepData"`
}

type CompleteTaskRequest struct {
	Decision Decision       `json:"decision"`
	Comments string         `json:"comments,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
}

type AssignTaskRequest struct {
	Assignee string `json:"assignee"`
}

type ReassignTaskRequest struct {
	FromAssignee string `json:"fromAssignee"`
	ToAssignee   string `json:"toAssignee"`
}

type CancelWorkflowRequest struct {
	Reason string `json:"reason"`
}

type EvaluateRulesRequest struct {
	Category string         `json:"category"`
	Context  map[string]any `json:"context"`
}
