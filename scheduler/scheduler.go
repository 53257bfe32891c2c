package scheduler

import (
	"sync"
	"time"

	"github.com/flowops/cadenza/engine"
	"github.com/flowops/cadenza/logger"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/timers"
	"github.com/flowops/cadenza/util"
	"go.uber.org/zap"
)

// Scheduler resumes Delayed instances. A timing wheel fires promptly for
// delays armed on this node; the poller is the backstop that also catches
// delays armed before a restart. ResumeDelayed claims the instance, so the
// two paths racing is harmless.
type Scheduler struct {
	instances persistence.InstanceStorage
	engine    *engine.WorkflowEngine
	timers    *timers.TimerManager
	poller    *util.TickWorker
	batchSize int
}

func New(instances persistence.InstanceStorage, eng *engine.WorkflowEngine, maxTimerDelaySeconds int64, pollInterval time.Duration, batchSize int, wg *sync.WaitGroup) *Scheduler {
	if batchSize <= 0 {
		batchSize = 100
	}
	s := &Scheduler{
		instances: instances,
		engine:    eng,
		timers:    timers.NewTimerManager(maxTimerDelaySeconds),
		batchSize: batchSize,
	}
	s.poller = util.NewTickWorker("delayed-workflow-poller", pollInterval, s.poll, wg)
	eng.SetDelayHook(s.Schedule)
	return s
}

func (s *Scheduler) Start() {
	s.timers.Init()
	s.poller.Start()
}

func (s *Scheduler) Stop() {
	s.poller.Stop()
	s.timers.Stop()
}

// Schedule arms an in-process timer for one delayed instance.
func (s *Scheduler) Schedule(instanceId string, resumeAt time.Time) {
	delay := time.Until(resumeAt)
	s.timers.AddTask(delay, func() {
		s.resume(instanceId)
	})
}

func (s *Scheduler) poll() {
	due, err := s.instances.ListDelayedDue(time.Now().UTC(), s.batchSize)
	if err != nil {
		logger.Error("error polling delayed instances", zap.Error(err))
		return
	}
	for _, instance := range due {
		s.resume(instance.Id)
	}
}

func (s *Scheduler) resume(instanceId string) {
	if err := s.engine.ResumeDelayed(instanceId); err != nil {
		logger.Error("error resuming delayed instance", zap.String("instance", instanceId), zap.Error(err))
	}
}
