package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_POSTGRES StorageType = "postgres"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig           RedisStorageConfig
	PostgresConfig        PostgresStorageConfig
	HttpPort              int
	StorageType           StorageType
	SchedulerPollInterval time.Duration
	SchedulerBatchSize    int
	DispatchRetryLimit    int
	DefinitionCacheTTL    time.Duration
	MaxTimerDelaySeconds  int64
	NotificationLogFile   string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

type PostgresStorageConfig struct {
	DSN string
}
