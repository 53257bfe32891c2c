package model

import "time"

type InstanceStatus string

const (
	INSTANCE_RUNNING              InstanceStatus = "Running"
	INSTANCE_WAITING_FOR_APPROVAL InstanceStatus = "WaitingForApproval"
	INSTANCE_DELAYED              InstanceStatus = "Delayed"
	INSTANCE_COMPLETED            InstanceStatus = "Completed"
	INSTANCE_CANCELLED            InstanceStatus = "Cancelled"
	INSTANCE_FAILED               InstanceStatus = "Failed"
)

func (s InstanceStatus) Terminal() bool {
	return s == INSTANCE_COMPLETED || s == INSTANCE_CANCELLED || s == INSTANCE_FAILED
}

// WorkflowInstance is one execution of a definition version. CurrentStepId is
// cleared when the instance completes or is cancelled; a Failed instance keeps
// the step it failed on so a retry can resume there. Mutated only by the
// workflow engine.
type WorkflowInstance struct {
	Id                string         `json:"id"`
	TenantId          string         `json:"tenantId"`
	DefinitionId      string         `json:"definitionId"`
	DefinitionVersion int            `json:"definitionVersion"`
	Status            InstanceStatus `json:"status"`
	CurrentStepId     string         `json:"currentStepId"`
	Context           map[string]any `json:"context"`
	StartedAt         time.Time      `json:"startedAt"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
	ResumeAt          *time.Time     `json:"resumeAt,omitempty"`
	Initiator         string         `json:"initiator"`
	ErrorMessage      string         `json:"errorMessage,omitempty"`
	RetryCount        int            `json:"retryCount"`
	// Version is the optimistic concurrency token maintained by the
	// storage layer; every successful save increments it.
	Version int64 `json:"version"`
}

// MergeContext applies external input last-write-wins per key.
func (wi *WorkflowInstance) MergeContext(input map[string]any) {
	if wi.Context == nil {
		wi.Context = make(map[string]any)
	}
	for k, v := range input {
		wi.Context[k] = v
	}
}

// ExecutionReport is the per-instance projection of status, duration and
// task counts.
type ExecutionReport struct {
	InstanceId     string         `json:"instanceId"`
	WorkflowName   string         `json:"workflowName"`
	Status         InstanceStatus `json:"status"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	DurationMillis int64          `json:"durationMillis"`
	TotalTasks     int            `json:"totalTasks"`
	CompletedTasks int            `json:"completedTasks"`
	PendingTasks   int            `json:"pendingTasks"`
	CancelledTasks int            `json:"cancelledTasks"`
}
