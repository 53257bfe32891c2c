package redis

import (
	"github.com/flowops/cadenza/persistence"
)

// NewStorage builds the redis backend. All daos share one client.
func NewStorage(conf Config) *persistence.Storage {
	base := newBaseDao(conf)
	return &persistence.Storage{
		Metadata:  &redisMetadataStorage{baseDao: base},
		Rules:     newRedisRuleStorage(base),
		Instances: newRedisInstanceStorage(base),
		Tasks:     newRedisTaskStorage(base),
		Logs:      newRedisLogStorage(base),
	}
}
