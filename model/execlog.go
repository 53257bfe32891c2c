package model

import "time"

type EventType string

const (
	EVENT_WORKFLOW_STARTED    EventType = "WorkflowStarted"
	EVENT_WORKFLOW_COMPLETED  EventType = "WorkflowCompleted"
	EVENT_WORKFLOW_CANCELLED  EventType = "WorkflowCancelled"
	EVENT_WORKFLOW_DELAYED    EventType = "WorkflowDelayed"
	EVENT_WORKFLOW_RESUMED    EventType = "WorkflowResumed"
	EVENT_WORKFLOW_FAILED     EventType = "WorkflowFailed"
	EVENT_WORKFLOW_RETRIED    EventType = "WorkflowRetried"
	EVENT_STEP_STARTED        EventType = "StepStarted"
	EVENT_STEP_COMPLETED      EventType = "StepCompleted"
	EVENT_STEP_FAILED         EventType = "StepFailed"
	EVENT_TASK_ASSIGNED       EventType = "TaskAssigned"
	EVENT_TASK_REASSIGNED     EventType = "TaskReassigned"
	EVENT_TASK_COMPLETED      EventType = "TaskCompleted"
	EVENT_TASK_CANCELLED      EventType = "TaskCancelled"
	EVENT_CONDITION_EVALUATED EventType = "ConditionEvaluated"
	EVENT_NOTIFICATION_SENT   EventType = "NotificationSent"
	EVENT_AUTOMATION_EXECUTED EventType = "AutomationExecuted"
)

// ExecutionLogEntry is append-only. Entries for one instance are totally
// ordered by (Timestamp, Seq); Seq is assigned by the storage layer in
// insertion order and breaks timestamp ties.
type ExecutionLogEntry struct {
	Id         string         `json:"id"`
	InstanceId string         `json:"instanceId"`
	StepId     string         `json:"stepId,omitempty"`
	EventType  EventType      `json:"eventType"`
	Message    string         `json:"message"`
	Payload    map[string]any `json:"payload,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Seq        int64          `json:"seq"`
}
