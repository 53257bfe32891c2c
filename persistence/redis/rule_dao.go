package redis

import (
	"context"
	"errors"
	"sort"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
	rd "github.com/go-redis/redis/v9"
)

const RULE_KEY string = "RULE"
const RULE_SEQ_KEY string = "RULE_SEQ"

var _ persistence.RuleStorage = new(redisRuleStorage)

type redisRuleStorage struct {
	baseDao        *baseDao
	encoderDecoder util.EncoderDecoder[model.BusinessRule]
}

func newRedisRuleStorage(base *baseDao) *redisRuleStorage {
	return &redisRuleStorage{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.BusinessRule](),
	}
}

func (rs *redisRuleStorage) SaveRule(rule model.BusinessRule) (*model.BusinessRule, error) {
	key := rs.baseDao.getNamespaceKey(RULE_KEY, rule.TenantId)
	ctx := context.Background()
	if rule.Seq == 0 {
		seq, err := rs.baseDao.redisClient.Incr(ctx, rs.baseDao.getNamespaceKey(RULE_SEQ_KEY)).Result()
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		rule.Seq = seq
	}
	data, err := rs.encoderDecoder.Encode(rule)
	if err != nil {
		return nil, err
	}
	if err := rs.baseDao.redisClient.HSet(ctx, key, []string{rule.Id, string(data)}).Err(); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &rule, nil
}

func (rs *redisRuleStorage) GetRule(tenantId string, id string) (*model.BusinessRule, error) {
	key := rs.baseDao.getNamespaceKey(RULE_KEY, tenantId)
	ctx := context.Background()
	val, err := rs.baseDao.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Entity: "rule", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encoderDecoder.Decode([]byte(val))
}

func (rs *redisRuleStorage) ListRules(tenantId string, category string) ([]model.BusinessRule, error) {
	key := rs.baseDao.getNamespaceKey(RULE_KEY, tenantId)
	ctx := context.Background()
	fields, err := rs.baseDao.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.BusinessRule, 0, len(fields))
	for _, val := range fields {
		rule, err := rs.encoderDecoder.Decode([]byte(val))
		if err != nil {
			continue
		}
		if len(category) > 0 && rule.Category != category {
			continue
		}
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (rs *redisRuleStorage) DeleteRule(tenantId string, id string) error {
	key := rs.baseDao.getNamespaceKey(RULE_KEY, tenantId)
	ctx := context.Background()
	removed, err := rs.baseDao.redisClient.HDel(ctx, key, id).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if removed == 0 {
		return persistence.NotFoundError{Entity: "rule", Id: id}
	}
	return nil
}
