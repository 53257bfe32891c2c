package redis

import (
	"context"
	"sort"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
	"github.com/google/uuid"
)

const LOG_KEY string = "LOG"
const LOG_SEQ_KEY string = "LOG_SEQ"

var _ persistence.LogStorage = new(redisLogStorage)

// The execution log is one redis list per instance, append only. Seq comes
// from a per-instance counter so concurrent appenders in the same
// millisecond still get a total order.
type redisLogStorage struct {
	baseDao        *baseDao
	encoderDecoder util.EncoderDecoder[model.ExecutionLogEntry]
}

func newRedisLogStorage(base *baseDao) *redisLogStorage {
	return &redisLogStorage{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.ExecutionLogEntry](),
	}
}

func (rs *redisLogStorage) Append(entry *model.ExecutionLogEntry) error {
	ctx := context.Background()
	if len(entry.Id) == 0 {
		entry.Id = uuid.New().String()
	}
	seq, err := rs.baseDao.redisClient.Incr(ctx, rs.baseDao.getNamespaceKey(LOG_SEQ_KEY, entry.InstanceId)).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	entry.Seq = seq
	data, err := rs.encoderDecoder.Encode(*entry)
	if err != nil {
		return err
	}
	key := rs.baseDao.getNamespaceKey(LOG_KEY, entry.InstanceId)
	if err := rs.baseDao.redisClient.RPush(ctx, key, data).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisLogStorage) ListByInstance(instanceId string) ([]model.ExecutionLogEntry, error) {
	ctx := context.Background()
	key := rs.baseDao.getNamespaceKey(LOG_KEY, instanceId)
	vals, err := rs.baseDao.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.ExecutionLogEntry, 0, len(vals))
	for _, val := range vals {
		entry, err := rs.encoderDecoder.Decode([]byte(val))
		if err != nil {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
