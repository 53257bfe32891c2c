package model

import (
	"sort"
	"time"
)

type TaskStatus string

const (
	TASK_PENDING   TaskStatus = "Pending"
	TASK_COMPLETED TaskStatus = "Completed"
	TASK_CANCELLED TaskStatus = "Cancelled"
)

type Decision string

const (
	DECISION_APPROVE Decision = "Approve"
	DECISION_REJECT  Decision = "Reject"
)

// WorkflowTask is the human-actionable unit created by an approval step.
// At most one Pending task exists per (instance, step) pair.
type WorkflowTask struct {
	Id          string         `json:"id"`
	TenantId    string         `json:"tenantId"`
	InstanceId  string         `json:"instanceId"`
	StepId      string         `json:"stepId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      TaskStatus     `json:"status"`
	Assignee    string         `json:"assignee"`
	AssignedBy  string         `json:"assignedBy,omitempty"`
	AssignedAt  *time.Time     `json:"assignedAt,omitempty"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	CompletedBy string         `json:"completedBy,omitempty"`
	Comments    string         `json:"comments,omitempty"`
}

// SortTasksForWorklist orders a user's task list: earliest due date first,
// tasks without a due date after dated ones, creation time breaking ties.
func SortTasksForWorklist(tasks []WorkflowTask) {
	sort.Slice(tasks, func(i, j int) bool {
		di, dj := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
