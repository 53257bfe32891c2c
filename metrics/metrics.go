package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the injected instrumentation component. It owns its registry so
// two instances never fight over process-global collectors.
type Metrics struct {
	registry *prometheus.Registry

	InstancesStarted   prometheus.Counter
	InstancesCompleted prometheus.Counter
	InstancesCancelled prometheus.Counter
	InstancesFailed    prometheus.Counter
	StepsDispatched    *prometheus.CounterVec
	StepFailures       *prometheus.CounterVec
	TasksCreated       prometheus.Counter
	TasksCompleted     prometheus.Counter
	RuleEvaluations    *prometheus.CounterVec
	SchedulerResumes   prometheus.Counter
	DispatchDuration   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.InstancesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_instances_started_total",
		Help: "Workflow instances started.",
	})
	m.InstancesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_instances_completed_total",
		Help: "Workflow instances completed.",
	})
	m.InstancesCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_instances_cancelled_total",
		Help: "Workflow instances cancelled.",
	})
	m.InstancesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_instances_failed_total",
		Help: "Workflow instances marked failed.",
	})
	m.StepsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cadenza_steps_dispatched_total",
		Help: "Steps dispatched by step type.",
	}, []string{"type"})
	m.StepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cadenza_step_failures_total",
		Help: "Step dispatch failures by step type.",
	}, []string{"type"})
	m.TasksCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_tasks_created_total",
		Help: "Approval tasks created.",
	})
	m.TasksCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_tasks_completed_total",
		Help: "Approval tasks completed.",
	})
	m.RuleEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cadenza_rule_evaluations_total",
		Help: "Business rule evaluations by outcome.",
	}, []string{"outcome"})
	m.SchedulerResumes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_scheduler_resumes_total",
		Help: "Delayed instances resumed by the scheduler.",
	})
	m.DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadenza_dispatch_duration_seconds",
		Help:    "Step dispatch duration.",
		Buckets: prometheus.DefBuckets,
	})
	m.registry.MustRegister(
		m.InstancesStarted, m.InstancesCompleted, m.InstancesCancelled,
		m.InstancesFailed, m.StepsDispatched, m.StepFailures,
		m.TasksCreated, m.TasksCompleted, m.RuleEvaluations,
		m.SchedulerResumes, m.DispatchDuration,
	)
	return m
}

// Handler exposes the registry for the REST server's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
