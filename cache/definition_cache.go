package cache

import (
	"fmt"
	"time"

	"github.com/flowops/cadenza/model"
	c "github.com/patrickmn/go-cache"
)

// DefinitionCache keeps definition version snapshots in memory. Versions are
// immutable once written so entries never go stale, the TTL only bounds
// memory.
type DefinitionCache struct {
	cache *c.Cache
}

func NewDefinitionCache(ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{
		cache: c.New(ttl, 10*time.Minute),
	}
}

func key(tenantId string, id string, version int) string {
	return fmt.Sprintf("%s:%s:%d", tenantId, id, version)
}

func (ch *DefinitionCache) Save(def *model.WorkflowDefinition) {
	ch.cache.SetDefault(key(def.TenantId, def.Id, def.Version), def)
}

func (ch *DefinitionCache) Get(tenantId string, id string, version int) (*model.WorkflowDefinition, bool) {
	v, found := ch.cache.Get(key(tenantId, id, version))
	if !found {
		return nil, false
	}
	def, ok := v.(*model.WorkflowDefinition)
	return def, ok
}

func (ch *DefinitionCache) Invalidate(tenantId string, id string, version int) {
	ch.cache.Delete(key(tenantId, id, version))
}
