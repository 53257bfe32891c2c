package persistence

import (
	"fmt"
	"time"

	"github.com/flowops/cadenza/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// ConflictError is returned by InstanceStorage.Save when the optimistic
// concurrency check fails: another writer saved the instance first.
type ConflictError struct {
	InstanceId string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflicting write on instance %s", e.InstanceId)
}

// NotFoundError is the storage-level miss; services translate it into the
// domain NotFound failure.
type NotFoundError struct {
	Entity string
	Id     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Id)
}

// MetadataStorage keeps workflow definitions. Every version of a definition
// is retained so a running instance can read its start-time snapshot after
// the definition was edited.
type MetadataStorage interface {
	SaveDefinition(def model.WorkflowDefinition) error
	GetDefinition(tenantId string, id string) (*model.WorkflowDefinition, error)
	GetDefinitionVersion(tenantId string, id string, version int) (*model.WorkflowDefinition, error)
	ListDefinitions(tenantId string) ([]model.WorkflowDefinition, error)
	DeleteDefinition(tenantId string, id string) error
}

// RuleStorage keeps business rules. Save assigns Seq on first write; List
// orders by ascending priority with Seq breaking ties.
type RuleStorage interface {
	SaveRule(rule model.BusinessRule) (*model.BusinessRule, error)
	GetRule(tenantId string, id string) (*model.BusinessRule, error)
	ListRules(tenantId string, category string) ([]model.BusinessRule, error)
	DeleteRule(tenantId string, id string) error
}

// InstanceStorage keeps workflow instances. Save performs an optimistic
// concurrency check on WorkflowInstance.Version and increments it on
// success; a stale write returns ConflictError.
type InstanceStorage interface {
	CreateInstance(instance *model.WorkflowInstance) error
	GetInstance(id string) (*model.WorkflowInstance, error)
	SaveInstance(instance *model.WorkflowInstance) error
	ListActive(tenantId string) ([]model.WorkflowInstance, error)
	ListDelayedDue(now time.Time, limit int) ([]model.WorkflowInstance, error)
}

type TaskStorage interface {
	SaveTask(task *model.WorkflowTask) error
	GetTask(id string) (*model.WorkflowTask, error)
	PendingTaskForStep(instanceId string, stepId string) (*model.WorkflowTask, error)
	TasksByInstance(instanceId string) ([]model.WorkflowTask, error)
	PendingTasksForUser(tenantId string, userId string) ([]model.WorkflowTask, error)
}

// LogStorage is append-only. Append assigns the per-instance Seq in
// insertion order; ListByInstance returns entries ordered by
// (Timestamp, Seq).
type LogStorage interface {
	Append(entry *model.ExecutionLogEntry) error
	ListByInstance(instanceId string) ([]model.ExecutionLogEntry, error)
}

// Storage bundles the per-entity stores of one backend.
type Storage struct {
	Metadata  MetadataStorage
	Rules     RuleStorage
	Instances InstanceStorage
	Tasks     TaskStorage
	Logs      LogStorage
}
