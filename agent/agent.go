package agent

import (
	"fmt"
	"sync"

	"github.com/flowops/cadenza/cache"
	"github.com/flowops/cadenza/config"
	"github.com/flowops/cadenza/engine"
	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/metadata"
	"github.com/flowops/cadenza/metrics"
	"github.com/flowops/cadenza/notify"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/persistence/memory"
	"github.com/flowops/cadenza/persistence/postgres"
	"github.com/flowops/cadenza/persistence/redis"
	"github.com/flowops/cadenza/rest"
	"github.com/flowops/cadenza/rules"
	"github.com/flowops/cadenza/scheduler"
	"github.com/flowops/cadenza/task"
)

// Agent wires the storage backend, engine, scheduler and http server
// together and owns their lifecycle.
type Agent struct {
	Config config.Config

	storage        *persistence.Storage
	defCache       *cache.DefinitionCache
	metrics        *metrics.Metrics
	notifier       notify.Notifier
	asyncNotifier  *notify.AsyncNotifier
	definitions    *metadata.DefinitionService
	workflowEngine *engine.WorkflowEngine
	taskService    *task.Service
	ruleEngine     *rules.Engine
	scheduler      *scheduler.Scheduler
	httpServer     *rest.Server

	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config:    conf,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupStorage,
		a.setupServices,
		a.setupScheduler,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		a.storage = redis.NewStorage(redis.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		})
	case config.STORAGE_TYPE_POSTGRES:
		storage, err := postgres.NewStorage(postgres.Config{DSN: a.Config.PostgresConfig.DSN})
		if err != nil {
			return err
		}
		a.storage = storage
	case config.STORAGE_TYPE_INMEM:
		a.storage = memory.NewStorage()
	default:
		return fmt.Errorf("unknown storage type %s", a.Config.StorageType)
	}
	return nil
}

func (a *Agent) setupServices() error {
	a.defCache = cache.NewDefinitionCache(a.Config.DefinitionCacheTTL)
	a.metrics = metrics.New()
	var sink notify.Notifier = notify.NewLogNotifier()
	if len(a.Config.NotificationLogFile) > 0 {
		fileSink, err := notify.NewFileNotifier(a.Config.NotificationLogFile)
		if err != nil {
			return err
		}
		sink = fileSink
	}
	a.asyncNotifier = notify.NewAsyncNotifier(sink, &a.wg, 256)
	a.notifier = a.asyncNotifier
	a.definitions = metadata.NewDefinitionService(a.storage.Metadata, a.defCache)
	a.ruleEngine = rules.NewEngine(a.storage.Rules, a.notifier, a.metrics)
	runtime := &engine.Runtime{
		Evaluator: rules.NewEvaluator(),
		Executor:  rules.NewExecutor(),
		Notifier:  a.notifier,
	}
	a.workflowEngine = engine.NewWorkflowEngine(a.storage, a.defCache, runtime, a.metrics, a.Config.DispatchRetryLimit)
	a.taskService = task.NewService(a.storage.Tasks, a.storage.Logs, a.workflowEngine, a.notifier)
	return nil
}

func (a *Agent) setupScheduler() error {
	a.scheduler = scheduler.New(a.storage.Instances, a.workflowEngine,
		a.Config.MaxTimerDelaySeconds, a.Config.SchedulerPollInterval,
		a.Config.SchedulerBatchSize, &a.wg)
	a.scheduler.Start()
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.definitions,
		a.workflowEngine, a.taskService, a.ruleEngine, a.metrics)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			a.scheduler.Stop()
			return nil
		},
		func() error {
			a.asyncNotifier.Stop()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
