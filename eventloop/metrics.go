package eventloop

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the per-Loop Prometheus collectors. A nil *Metrics (the
// default unless WithMetrics is passed) makes every method a no-op, so
// instrumentation never sits on the hot path of a Loop that didn't ask
// for it.
type Metrics struct {
	ticks        prometheus.Counter
	tasksRun     *prometheus.CounterVec
	pendingTasks prometheus.Gauge
	timersFired  prometheus.Counter
	loopState    prometheus.Gauge
	taskLatency  *taskLatencyCollector
}

// taskLatencyCollector reports a streaming P50/P99 estimate of task
// execution duration without retaining per-task samples, via two
// pSquareQuantile estimators guarded by a mutex (Collect runs on an
// arbitrary scrape goroutine, concurrently with the loop goroutine's
// calls to observe).
type taskLatencyCollector struct {
	mu   sync.Mutex
	p50  *pSquareQuantile
	p99  *pSquareQuantile
	desc *prometheus.Desc
}

func newTaskLatencyCollector() *taskLatencyCollector {
	return &taskLatencyCollector{
		p50: newPSquareQuantile(0.5),
		p99: newPSquareQuantile(0.99),
		desc: prometheus.NewDesc(
			"nettle_eventloop_task_duration_seconds",
			"Streaming P-Square quantile estimate of per-task execution duration.",
			[]string{"quantile"}, nil,
		),
	}
}

func (c *taskLatencyCollector) observe(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := d.Seconds()
	c.p50.Update(s)
	c.p99.Update(s)
}

func (c *taskLatencyCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *taskLatencyCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	p50, p99 := c.p50.Quantile(), c.p99.Quantile()
	c.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, p50, "0.5")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, p99, "0.99")
}

func newMetrics(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	return &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nettle",
			Subsystem: "eventloop",
			Name:      "ticks_total",
			Help:      "Total number of event loop iterations processed.",
		}),
		tasksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nettle",
			Subsystem: "eventloop",
			Name:      "tasks_run_total",
			Help:      "Total number of tasks executed, by queue category.",
		}, []string{"category"}),
		pendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nettle",
			Subsystem: "eventloop",
			Name:      "pending_tasks",
			Help:      "Number of tasks currently queued on the external queue.",
		}),
		timersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nettle",
			Subsystem: "eventloop",
			Name:      "timers_fired_total",
			Help:      "Total number of scheduled timers that have fired.",
		}),
		loopState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nettle",
			Subsystem: "eventloop",
			Name:      "state",
			Help:      "Current LoopState as its numeric ordinal.",
		}),
		taskLatency: newTaskLatencyCollector(),
	}
}

// Register adds every collector to reg. Call once per Loop, with a
// registry scoped to that loop if running more than one in a process (a
// single default-registry loop can pass prometheus.DefaultRegisterer).
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	collectors := []prometheus.Collector{m.ticks, m.tasksRun, m.pendingTasks, m.timersFired, m.loopState, m.taskLatency}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Tick records one event loop iteration.
func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) taskRun(category string) {
	if m == nil {
		return
	}
	m.tasksRun.WithLabelValues(category).Inc()
}

// observeTaskDuration folds one task's wall-clock execution time into the
// P50/P99 estimate.
func (m *Metrics) observeTaskDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.taskLatency.observe(d)
}

func (m *Metrics) timerFired() {
	if m == nil {
		return
	}
	m.timersFired.Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingTasks.Set(float64(n))
}

func (m *Metrics) setState(s LoopState) {
	if m == nil {
		return
	}
	m.loopState.Set(float64(s))
}
