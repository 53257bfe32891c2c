package metadata

import (
	"time"

	"github.com/flowops/cadenza/cache"
	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefinitionService manages workflow definitions. Updates write a new
// version and leave older versions in place, so instances started before an
// edit keep executing the steps they started with.
type DefinitionService struct {
	storage  persistence.MetadataStorage
	defCache *cache.DefinitionCache
}

func NewDefinitionService(storage persistence.MetadataStorage, defCache *cache.DefinitionCache) *DefinitionService {
	return &DefinitionService{storage: storage, defCache: defCache}
}

func (s *DefinitionService) CreateDefinition(tenantId string, createdBy string, def model.WorkflowDefinition) (*model.WorkflowDefinition, error) {
	def.TenantId = tenantId
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.Id = uuid.New().String()
	def.Version = 1
	def.Active = true
	def.CreatedBy = createdBy
	def.CreatedAt = time.Now().UTC()
	def.UpdatedAt = def.CreatedAt
	if err := s.storage.SaveDefinition(def); err != nil {
		return nil, model.NewTransientError("error saving definition", err)
	}
	logger.Info("workflow definition created", zap.String("definition", def.Id), zap.String("name", def.Name))
	return &def, nil
}

func (s *DefinitionService) UpdateDefinition(tenantId string, id string, update model.WorkflowDefinition) (*model.WorkflowDefinition, error) {
	existing, err := s.storage.GetDefinition(tenantId, id)
	if err != nil {
		return nil, model.NewNotFoundError("workflow definition", id)
	}
	update.Id = existing.Id
	update.TenantId = tenantId
	if len(update.Name) == 0 {
		update.Name = existing.Name
	}
	if len(update.Category) == 0 {
		update.Category = existing.Category
	}
	if update.Steps == nil {
		update.Steps = existing.Steps
	}
	if update.Variables == nil {
		update.Variables = existing.Variables
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	update.Version = existing.Version + 1
	update.CreatedBy = existing.CreatedBy
	update.CreatedAt = existing.CreatedAt
	update.UpdatedAt = time.Now().UTC()
	if err := s.storage.SaveDefinition(update); err != nil {
		return nil, model.NewTransientError("error saving definition", err)
	}
	logger.Info("workflow definition updated",
		zap.String("definition", update.Id),
		zap.Int("version", update.Version))
	return &update, nil
}

// SetActive flips whether new instances may be started from the definition.
// Running instances are not touched.
func (s *DefinitionService) SetActive(tenantId string, id string, active bool) (*model.WorkflowDefinition, error) {
	existing, err := s.storage.GetDefinition(tenantId, id)
	if err != nil {
		return nil, model.NewNotFoundError("workflow definition", id)
	}
	if existing.Active == active {
		return existing, nil
	}
	existing.Active = active
	existing.UpdatedAt = time.Now().UTC()
	if err := s.storage.SaveDefinition(*existing); err != nil {
		return nil, model.NewTransientError("error saving definition", err)
	}
	s.defCache.Invalidate(tenantId, id, existing.Version)
	return existing, nil
}

func (s *DefinitionService) GetDefinition(tenantId string, id string) (*model.WorkflowDefinition, error) {
	def, err := s.storage.GetDefinition(tenantId, id)
	if err != nil {
		return nil, model.NewNotFoundError("workflow definition", id)
	}
	return def, nil
}

func (s *DefinitionService) ListDefinitions(tenantId string) ([]model.WorkflowDefinition, error) {
	defs, err := s.storage.ListDefinitions(tenantId)
	if err != nil {
		return nil, model.NewTransientError("error listing definitions", err)
	}
	return defs, nil
}

// DeleteDefinition removes the definition and all its versions. Instances
// already running against a deleted definition fail on their next transition
// when the snapshot can no longer be read.
func (s *DefinitionService) DeleteDefinition(tenantId string, id string) error {
	existing, err := s.storage.GetDefinition(tenantId, id)
	if err != nil {
		return model.NewNotFoundError("workflow definition", id)
	}
	if err := s.storage.DeleteDefinition(tenantId, id); err != nil {
		return model.NewTransientError("error deleting definition", err)
	}
	for v := 1; v <= existing.Version; v++ {
		s.defCache.Invalidate(tenantId, id, v)
	}
	return nil
}
