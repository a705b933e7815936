package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hrflow"

// Collector owns a private registry so tests and multiple servers in one
// process never collide on metric names.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	workflowTransitions *prometheus.CounterVec
	timesheetApprovals  *prometheus.CounterVec
	settlementRuns      *prometheus.CounterVec
	settlementDuration  prometheus.Histogram
	sweepResults        *prometheus.CounterVec
	jobRuns             *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		workflowTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Workflow actions by category, action and outcome",
			},
			[]string{"category", "action", "outcome"},
		),
		timesheetApprovals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timesheet_approvals_total",
				Help:      "Timesheet approval decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		settlementRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_runs_total",
				Help:      "Settlement job executions by outcome",
			},
			[]string{"outcome"},
		),
		settlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_duration_seconds",
				Help:      "Time spent settling one finalization",
				Buckets:   prometheus.DefBuckets,
			},
		),
		sweepResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_sweep_instances_total",
				Help:      "Overdue instances visited by the sweeper, by result",
			},
			[]string{"result"},
		),
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Background job runs by type and status",
			},
			[]string{"job_type", "status"},
		),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) WorkflowTransition(category, action, outcome string) {
	if category == "" {
		category = "unknown"
	}
	c.workflowTransitions.WithLabelValues(category, action, outcome).Inc()
}

func (c *Collector) TimesheetApproval(action, outcome string) {
	c.timesheetApprovals.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) SettlementRun(outcome string, elapsed time.Duration) {
	c.settlementRuns.WithLabelValues(outcome).Inc()
	c.settlementDuration.Observe(elapsed.Seconds())
}

func (c *Collector) SweepResult(result string) {
	c.sweepResults.WithLabelValues(result).Inc()
}

func (c *Collector) JobRun(jobType, status string) {
	c.jobRuns.WithLabelValues(jobType, status).Inc()
}
