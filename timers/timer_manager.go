package timers

import (
	"time"

	"github.com/RussellLuo/timingwheel"
)

// TimerManager wraps the hierarchical timing wheel used for in-process delay
// resumption. Delays beyond maxDelaySeconds still resume through the poller.
type TimerManager struct {
	wheel           *timingwheel.TimingWheel
	maxDelaySeconds int64
}

func NewTimerManager(maxDelaySeconds int64) *TimerManager {
	return &TimerManager{
		wheel:           timingwheel.NewTimingWheel(time.Second, maxDelaySeconds),
		maxDelaySeconds: maxDelaySeconds,
	}
}

// AddTask schedules fn after the delay. Delays the wheel can not hold are
// ignored; the poller picks those up when they come due.
func (m *TimerManager) AddTask(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	if int64(delay/time.Second) > m.maxDelaySeconds {
		return
	}
	m.wheel.AfterFunc(delay, fn)
}

func (m *TimerManager) Init() {
	m.wheel.Start()
}

func (m *TimerManager) Stop() {
	m.wheel.Stop()
}
