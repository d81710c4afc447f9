// Package metrics provides Prometheus metrics for the projection batch and
// validation runs. Batch jobs have no scrape endpoint; the registry is
// written to a node-exporter textfile at the end of a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the projector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Projection metrics
	projectionsComputed *prometheus.CounterVec
	projectionsFailed   *prometheus.CounterVec
	composeLatency      prometheus.Histogram
	gateDecisions       *prometheus.CounterVec
	jobsDuplicate       prometheus.Counter

	// Snapshot metrics
	snapshotLoadDuration prometheus.Histogram
	snapshotRows         prometheus.Gauge

	// Write metrics
	upsertBatches  prometheus.Counter
	upsertRows     prometheus.Counter
	upsertErrors   prometheus.Counter
	upsertDuration prometheus.Histogram

	// Batch metrics
	batchDuration prometheus.Histogram
	batchLastUnix prometheus.Gauge

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerActiveCount prometheus.Gauge

	// Validation metrics
	backtestCorrelation prometheus.Gauge
	backtestMAE         prometheus.Gauge
	backtestBrier       prometheus.Gauge
	xgLogLoss           prometheus.Gauge
	xgAUC               prometheus.Gauge
	findings            *prometheus.CounterVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "projector",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.projectionsComputed = m.counterVec("projections_computed_total", "Projections computed by player kind", "kind")
	m.projectionsFailed = m.counterVec("projections_failed_total", "Units that produced no projection by reason", "reason")
	m.composeLatency = m.histogram("compose_latency_milliseconds", "Time to compose one projection")
	m.gateDecisions = m.counterVec("gate_decisions_total", "Outlier gate decisions by tier", "status")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Duplicate (player, game) jobs dropped before fan-out")

	m.snapshotLoadDuration = m.histogram("snapshot_load_duration_milliseconds", "Time to bulk load the read-only snapshot")
	m.snapshotRows = m.gauge("snapshot_rows", "Rows indexed in the last snapshot")

	m.upsertBatches = m.counter("upsert_batches_total", "Committed upsert batches")
	m.upsertRows = m.counter("upsert_rows_total", "Projection rows upserted")
	m.upsertErrors = m.counter("upsert_errors_total", "Failed upsert batches")
	m.upsertDuration = m.histogram("upsert_duration_milliseconds", "Time to commit one upsert batch")

	m.batchDuration = m.histogram("batch_duration_milliseconds", "End-to-end batch run duration")
	m.batchLastUnix = m.gauge("batch_last_completed_unix", "Unix time of the last completed batch")

	m.queueSize = m.gauge("queue_size", "Current size of the job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the job queue")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerActiveCount = m.gauge("worker_active_count", "Workers in the projection pool")

	m.backtestCorrelation = m.gauge("backtest_vopa_correlation", "Pearson correlation of VOPA and realized points in the last backtest")
	m.backtestMAE = m.gauge("backtest_mae_points", "Mean absolute error of projected points in the last backtest")
	m.backtestBrier = m.gauge("backtest_goalie_brier", "Brier score of goaltender win probabilities in the last backtest")
	m.xgLogLoss = m.gauge("xg_log_loss", "Log loss of the upstream xG model in the last validation")
	m.xgAUC = m.gauge("xg_auc", "AUC of the upstream xG model in the last validation")
	m.findings = m.counterVec("validation_findings_total", "Diagnostic findings by check and severity", "check", "severity")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")
}

// RecordProjectionComputed counts a successful projection of kind skater or goalie.
func RecordProjectionComputed(kind string) {
	globalManager.projectionsComputed.WithLabelValues(kind).Inc()
}

// RecordProjectionFailed counts a unit that produced no projection.
func RecordProjectionFailed(reason string) {
	globalManager.projectionsFailed.WithLabelValues(reason).Inc()
}

// RecordComposeLatency records composition latency in milliseconds.
func RecordComposeLatency(latencyMs float64) {
	globalManager.composeLatency.Observe(latencyMs)
}

// RecordGateDecision counts one gate decision.
func RecordGateDecision(status string) {
	globalManager.gateDecisions.WithLabelValues(status).Inc()
}

// RecordJobDuplicate counts a dropped duplicate job.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// RecordSnapshotLoad records a snapshot load and its size.
func RecordSnapshotLoad(latencyMs float64, rows int) {
	globalManager.snapshotLoadDuration.Observe(latencyMs)
	globalManager.snapshotRows.Set(float64(rows))
}

// RecordUpsertBatch records one committed batch.
func RecordUpsertBatch(rows int, latencyMs float64) {
	globalManager.upsertBatches.Inc()
	globalManager.upsertRows.Add(float64(rows))
	globalManager.upsertDuration.Observe(latencyMs)
}

// RecordUpsertError counts a failed batch.
func RecordUpsertError() {
	globalManager.upsertErrors.Inc()
}

// RecordBatchCompleted records the duration of a finished batch run.
func RecordBatchCompleted(latencyMs float64, finishedUnix int64) {
	globalManager.batchDuration.Observe(latencyMs)
	globalManager.batchLastUnix.Set(float64(finishedUnix))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a consumed job.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of pool workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateBacktestResults publishes the headline numbers of a backtest.
func UpdateBacktestResults(correlation, mae, brier float64) {
	globalManager.backtestCorrelation.Set(correlation)
	globalManager.backtestMAE.Set(mae)
	globalManager.backtestBrier.Set(brier)
}

// UpdateXGValidation publishes the headline numbers of an xG validation.
func UpdateXGValidation(logLoss, auc float64) {
	globalManager.xgLogLoss.Set(logLoss)
	globalManager.xgAUC.Set(auc)
}

// RecordFinding counts a diagnostic finding.
func RecordFinding(check, severity string) {
	globalManager.findings.WithLabelValues(check, severity).Inc()
}

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}
