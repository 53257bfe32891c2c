package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const INSTANCE_KEY string = "INSTANCE"
const ACTIVE_INDEX_KEY string = "ACTIVE"
const DELAYED_INDEX_KEY string = "DELAYED"

var _ persistence.InstanceStorage = new(redisInstanceStorage)

// Instances live under one key each. The optimistic concurrency check rides
// on WATCH: the version read inside the transaction must still match the
// caller's copy when the pipeline commits. A tenant scoped active set and a
// resume-time ZSET back the two list operations.
type redisInstanceStorage struct {
	baseDao        *baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowInstance]
}

func newRedisInstanceStorage(base *baseDao) *redisInstanceStorage {
	return &redisInstanceStorage{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WorkflowInstance](),
	}
}

func (rs *redisInstanceStorage) instanceKey(id string) string {
	return rs.baseDao.getNamespaceKey(INSTANCE_KEY, id)
}

func (rs *redisInstanceStorage) CreateInstance(instance *model.WorkflowInstance) error {
	instance.Version = 1
	key := rs.instanceKey(instance.Id)
	ctx := context.Background()
	data, err := rs.encoderDecoder.Encode(*instance)
	if err != nil {
		return err
	}
	created, err := rs.baseDao.redisClient.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return persistence.StorageLayerError{Message: "instance " + instance.Id + " already exists"}
	}
	if err := rs.updateIndexes(ctx, nil, instance); err != nil {
		return err
	}
	return nil
}

func (rs *redisInstanceStorage) GetInstance(id string) (*model.WorkflowInstance, error) {
	ctx := context.Background()
	val, err := rs.baseDao.redisClient.Get(ctx, rs.instanceKey(id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Entity: "instance", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encoderDecoder.Decode([]byte(val))
}

func (rs *redisInstanceStorage) SaveInstance(instance *model.WorkflowInstance) error {
	key := rs.instanceKey(instance.Id)
	ctx := context.Background()
	err := rs.baseDao.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return persistence.NotFoundError{Entity: "instance", Id: instance.Id}
			}
			return err
		}
		stored, err := rs.encoderDecoder.Decode([]byte(val))
		if err != nil {
			return err
		}
		if stored.Version != instance.Version {
			return persistence.ConflictError{InstanceId: instance.Id}
		}
		next := *instance
		next.Version = instance.Version + 1
		data, err := rs.encoderDecoder.Encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, rd.TxFailedErr) {
			return persistence.ConflictError{InstanceId: instance.Id}
		}
		var conflict persistence.ConflictError
		var notFound persistence.NotFoundError
		if errors.As(err, &conflict) || errors.As(err, &notFound) {
			return err
		}
		logger.Error("error in saving instance", zap.String("instance", instance.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	previous := *instance
	instance.Version++
	if err := rs.updateIndexes(ctx, &previous, instance); err != nil {
		return err
	}
	return nil
}

func (rs *redisInstanceStorage) updateIndexes(ctx context.Context, previous *model.WorkflowInstance, instance *model.WorkflowInstance) error {
	activeKey := rs.baseDao.getNamespaceKey(ACTIVE_INDEX_KEY, instance.TenantId)
	delayedKey := rs.baseDao.getNamespaceKey(DELAYED_INDEX_KEY)
	_, err := rs.baseDao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		if instance.Status.Terminal() {
			pipe.SRem(ctx, activeKey, instance.Id)
		} else {
			pipe.SAdd(ctx, activeKey, instance.Id)
		}
		if instance.Status == model.INSTANCE_DELAYED && instance.ResumeAt != nil {
			pipe.ZAdd(ctx, delayedKey, rd.Z{Score: float64(instance.ResumeAt.Unix()), Member: instance.Id})
		} else {
			pipe.ZRem(ctx, delayedKey, instance.Id)
		}
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisInstanceStorage) ListActive(tenantId string) ([]model.WorkflowInstance, error) {
	ctx := context.Background()
	ids, err := rs.baseDao.redisClient.SMembers(ctx, rs.baseDao.getNamespaceKey(ACTIVE_INDEX_KEY, tenantId)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.WorkflowInstance, 0, len(ids))
	for _, id := range ids {
		instance, err := rs.GetInstance(id)
		if err != nil {
			continue
		}
		out = append(out, *instance)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (rs *redisInstanceStorage) ListDelayedDue(now time.Time, limit int) ([]model.WorkflowInstance, error) {
	ctx := context.Background()
	ids, err := rs.baseDao.redisClient.ZRangeByScore(ctx, rs.baseDao.getNamespaceKey(DELAYED_INDEX_KEY), &rd.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.WorkflowInstance, 0, len(ids))
	for _, id := range ids {
		instance, err := rs.GetInstance(id)
		if err != nil {
			continue
		}
		out = append(out, *instance)
	}
	return out, nil
}
