package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wan_mon"

// Исходы запуска задачи
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Результаты записи точек в хранилище
const (
	SinkWritten = "written"
	SinkDropped = "dropped"
	SinkInvalid = "invalid"
)

// Metrics собственные метрики монитора
type Metrics struct {
	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskDeferred *prometheus.CounterVec
	tasksRunning prometheus.Gauge
	sinkPoints   *prometheus.CounterVec
	sinkRetries  prometheus.Counter
}

// New создает метрики и регистрирует их в reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		taskRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Completed task runs by measurement kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall-clock duration of task runs",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		taskDeferred: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_deferred_total",
				Help:      "Ticks on which a due task was still running and was not dispatched",
			},
			[]string{"kind"},
		),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Tasks currently executing",
		}),
		sinkPoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_points_total",
				Help:      "Data points handed to the metrics store by result",
			},
			[]string{"result"},
		),
		sinkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_retries_total",
			Help:      "Write attempts retried after a failure",
		}),
	}

	reg.MustRegister(
		m.taskRuns,
		m.taskDuration,
		m.taskDeferred,
		m.tasksRunning,
		m.sinkPoints,
		m.sinkRetries,
	)
	return m
}

// TaskStarted отмечает запуск задачи
func (m *Metrics) TaskStarted() {
	m.tasksRunning.Inc()
}

// TaskFinished отмечает завершение задачи
func (m *Metrics) TaskFinished(kind, outcome string, took time.Duration) {
	m.tasksRunning.Dec()
	m.taskRuns.WithLabelValues(kind, outcome).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// TaskDeferred отмечает пропуск запуска из-за еще работающей задачи
func (m *Metrics) TaskDeferred(kind string) {
	m.taskDeferred.WithLabelValues(kind).Inc()
}

// SinkPoints учитывает n точек с результатом result
func (m *Metrics) SinkPoints(result string, n int) {
	m.sinkPoints.WithLabelValues(result).Add(float64(n))
}

// SinkRetry учитывает повторную попытку записи
func (m *Metrics) SinkRetry() {
	m.sinkRetries.Inc()
}
