package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const DEFINITION_KEY string = "DEFINITION"
const DEFINITION_INDEX_KEY string = "DEFINITIONS"

var _ persistence.MetadataStorage = new(redisMetadataStorage)

// Definitions live in one hash per (tenant, id), keyed by version, with a
// tenant level set of ids backing ListDefinitions.
type redisMetadataStorage struct {
	baseDao *baseDao
}

func (rs *redisMetadataStorage) encDec() util.EncoderDecoder[model.WorkflowDefinition] {
	return util.NewJsonEncoderDecoder[model.WorkflowDefinition]()
}

func (rs *redisMetadataStorage) SaveDefinition(def model.WorkflowDefinition) error {
	key := rs.baseDao.getNamespaceKey(DEFINITION_KEY, def.TenantId, def.Id)
	indexKey := rs.baseDao.getNamespaceKey(DEFINITION_INDEX_KEY, def.TenantId)
	ctx := context.Background()
	data, err := rs.encDec().Encode(def)
	if err != nil {
		return err
	}
	_, err = rs.baseDao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, key, []string{strconv.Itoa(def.Version), string(data)})
		pipe.SAdd(ctx, indexKey, def.Id)
		return nil
	})
	if err != nil {
		logger.Error("error in saving definition", zap.String("definition", def.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisMetadataStorage) GetDefinition(tenantId string, id string) (*model.WorkflowDefinition, error) {
	key := rs.baseDao.getNamespaceKey(DEFINITION_KEY, tenantId, id)
	ctx := context.Background()
	fields, err := rs.baseDao.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(fields) == 0 {
		return nil, persistence.NotFoundError{Entity: "definition", Id: id}
	}
	latest := 0
	for field := range fields {
		if v, err := strconv.Atoi(field); err == nil && v > latest {
			latest = v
		}
	}
	return rs.encDec().Decode([]byte(fields[strconv.Itoa(latest)]))
}

func (rs *redisMetadataStorage) GetDefinitionVersion(tenantId string, id string, version int) (*model.WorkflowDefinition, error) {
	key := rs.baseDao.getNamespaceKey(DEFINITION_KEY, tenantId, id)
	ctx := context.Background()
	val, err := rs.baseDao.redisClient.HGet(ctx, key, strconv.Itoa(version)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Entity: "definition", Id: fmt.Sprintf("%s@%d", id, version)}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encDec().Decode([]byte(val))
}

func (rs *redisMetadataStorage) ListDefinitions(tenantId string) ([]model.WorkflowDefinition, error) {
	indexKey := rs.baseDao.getNamespaceKey(DEFINITION_INDEX_KEY, tenantId)
	ctx := context.Background()
	ids, err := rs.baseDao.redisClient.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := rs.GetDefinition(tenantId, id)
		if err != nil {
			continue
		}
		out = append(out, *def)
	}
	return out, nil
}

func (rs *redisMetadataStorage) DeleteDefinition(tenantId string, id string) error {
	key := rs.baseDao.getNamespaceKey(DEFINITION_KEY, tenantId, id)
	indexKey := rs.baseDao.getNamespaceKey(DEFINITION_INDEX_KEY, tenantId)
	ctx := context.Background()
	_, err := rs.baseDao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, indexKey, id)
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
