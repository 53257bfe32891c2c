package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/google/uuid"
)

// Storage is the in-memory backend, used for tests and single node setups
// that can afford to lose state on restart. Every read hands out a copy so
// callers never share mutable state with the store.
type Storage struct {
	mu          sync.RWMutex
	definitions map[string]map[int]model.WorkflowDefinition
	rules       map[string]model.BusinessRule
	ruleSeq     int64
	instances   map[string]model.WorkflowInstance
	tasks       map[string]model.WorkflowTask
	logs        map[string][]model.ExecutionLogEntry
	logSeq      map[string]int64
}

func NewStorage() *persistence.Storage {
	s := &Storage{
		definitions: make(map[string]map[int]model.WorkflowDefinition),
		rules:       make(map[string]model.BusinessRule),
		instances:   make(map[string]model.WorkflowInstance),
		tasks:       make(map[string]model.WorkflowTask),
		logs:        make(map[string][]model.ExecutionLogEntry),
		logSeq:      make(map[string]int64),
	}
	return &persistence.Storage{
		Metadata:  s,
		Rules:     s,
		Instances: s,
		Tasks:     s,
		Logs:      s,
	}
}

func defKey(tenantId string, id string) string {
	return tenantId + ":" + id
}

func (s *Storage) SaveDefinition(def model.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := defKey(def.TenantId, def.Id)
	versions, ok := s.definitions[key]
	if !ok {
		versions = make(map[int]model.WorkflowDefinition)
		s.definitions[key] = versions
	}
	versions[def.Version] = def
	return nil
}

func (s *Storage) GetDefinition(tenantId string, id string) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.definitions[defKey(tenantId, id)]
	if !ok || len(versions) == 0 {
		return nil, persistence.NotFoundError{Entity: "definition", Id: id}
	}
	latest := 0
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	def := versions[latest]
	return &def, nil
}

func (s *Storage) GetDefinitionVersion(tenantId string, id string, version int) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.definitions[defKey(tenantId, id)]
	if !ok {
		return nil, persistence.NotFoundError{Entity: "definition", Id: id}
	}
	def, ok := versions[version]
	if !ok {
		return nil, persistence.NotFoundError{Entity: "definition", Id: fmt.Sprintf("%s@%d", id, version)}
	}
	return &def, nil
}

func (s *Storage) ListDefinitions(tenantId string) ([]model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowDefinition, 0)
	for _, versions := range s.definitions {
		latest := 0
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		def := versions[latest]
		if def.TenantId == tenantId {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) DeleteDefinition(tenantId string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := defKey(tenantId, id)
	if _, ok := s.definitions[key]; !ok {
		return persistence.NotFoundError{Entity: "definition", Id: id}
	}
	delete(s.definitions, key)
	return nil
}

func (s *Storage) SaveRule(rule model.BusinessRule) (*model.BusinessRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rules[rule.Id]; ok {
		rule.Seq = existing.Seq
	} else {
		s.ruleSeq++
		rule.Seq = s.ruleSeq
	}
	s.rules[rule.Id] = rule
	saved := rule
	return &saved, nil
}

func (s *Storage) GetRule(tenantId string, id string) (*model.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok || rule.TenantId != tenantId {
		return nil, persistence.NotFoundError{Entity: "rule", Id: id}
	}
	return &rule, nil
}

func (s *Storage) ListRules(tenantId string, category string) ([]model.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BusinessRule, 0)
	for _, rule := range s.rules {
		if rule.TenantId != tenantId {
			continue
		}
		if len(category) > 0 && rule.Category != category {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Storage) DeleteRule(tenantId string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.TenantId != tenantId {
		return persistence.NotFoundError{Entity: "rule", Id: id}
	}
	delete(s.rules, id)
	return nil
}

func (s *Storage) CreateInstance(instance *model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instance.Id]; ok {
		return persistence.StorageLayerError{Message: fmt.Sprintf("instance %s already exists", instance.Id)}
	}
	instance.Version = 1
	s.instances[instance.Id] = copyInstance(instance)
	return nil
}

func (s *Storage) GetInstance(id string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.instances[id]
	if !ok {
		return nil, persistence.NotFoundError{Entity: "instance", Id: id}
	}
	out := copyInstance(&stored)
	return &out, nil
}

// SaveInstance succeeds only when the caller holds the version currently
// stored, then bumps it.
func (s *Storage) SaveInstance(instance *model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.instances[instance.Id]
	if !ok {
		return persistence.NotFoundError{Entity: "instance", Id: instance.Id}
	}
	if stored.Version != instance.Version {
		return persistence.ConflictError{InstanceId: instance.Id}
	}
	instance.Version++
	s.instances[instance.Id] = copyInstance(instance)
	return nil
}

func (s *Storage) ListActive(tenantId string) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowInstance, 0)
	for _, instance := range s.instances {
		if instance.TenantId != tenantId || instance.Status.Terminal() {
			continue
		}
		out = append(out, copyInstance(&instance))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *Storage) ListDelayedDue(now time.Time, limit int) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowInstance, 0)
	for _, instance := range s.instances {
		if instance.Status != model.INSTANCE_DELAYED {
			continue
		}
		if instance.ResumeAt == nil || instance.ResumeAt.After(now) {
			continue
		}
		out = append(out, copyInstance(&instance))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResumeAt.Before(*out[j].ResumeAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) SaveTask(task *model.WorkflowTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.Id] = *task
	return nil
}

func (s *Storage) GetTask(id string) (*model.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, persistence.NotFoundError{Entity: "task", Id: id}
	}
	return &task, nil
}

func (s *Storage) PendingTaskForStep(instanceId string, stepId string) (*model.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, task := range s.tasks {
		if task.InstanceId == instanceId && task.StepId == stepId && task.Status == model.TASK_PENDING {
			t := task
			return &t, nil
		}
	}
	return nil, persistence.NotFoundError{Entity: "task", Id: instanceId + ":" + stepId}
}

func (s *Storage) TasksByInstance(instanceId string) ([]model.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowTask, 0)
	for _, task := range s.tasks {
		if task.InstanceId == instanceId {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) PendingTasksForUser(tenantId string, userId string) ([]model.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowTask, 0)
	for _, task := range s.tasks {
		if task.TenantId == tenantId && task.Assignee == userId && task.Status == model.TASK_PENDING {
			out = append(out, task)
		}
	}
	model.SortTasksForWorklist(out)
	return out, nil
}

func (s *Storage) Append(entry *model.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entry.Id) == 0 {
		entry.Id = uuid.New().String()
	}
	s.logSeq[entry.InstanceId]++
	entry.Seq = s.logSeq[entry.InstanceId]
	s.logs[entry.InstanceId] = append(s.logs[entry.InstanceId], *entry)
	return nil
}

func (s *Storage) ListByInstance(instanceId string) ([]model.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.logs[instanceId]
	out := make([]model.ExecutionLogEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func copyInstance(instance *model.WorkflowInstance) model.WorkflowInstance {
	out := *instance
	if instance.Context != nil {
		out.Context = make(map[string]any, len(instance.Context))
		for k, v := range instance.Context {
			out.Context[k] = v
		}
	}
	return out
}
