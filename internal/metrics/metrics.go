// Package metrics exposes Prometheus counters for transfers, remote runs,
// workflow tasks and storage events. Metrics are registered on the default
// registry the first time Init is called; recording before Init is a no-op.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

var (
	objectsTransferred *prometheus.CounterVec
	bytesTransferred   *prometheus.CounterVec
	remoteRuns         *prometheus.CounterVec
	remoteRunPolls     prometheus.Counter
	remoteRunDuration  prometheus.Histogram
	taskRuns           *prometheus.CounterVec
	storageEvents      *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// Init registers all metrics. Safe to call repeatedly.
func Init() {
	metricsOnce.Do(func() {
		objectsTransferred = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfops_objects_transferred_total",
				Help: "Objects copied to or from the object store",
			},
			[]string{"direction"},
		)
		bytesTransferred = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfops_bytes_transferred_total",
				Help: "Bytes copied to or from the object store",
			},
			[]string{"direction"},
		)
		remoteRuns = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfops_remote_runs_total",
				Help: "Remote Dataform runs by terminal status",
			},
			[]string{"status"},
		)
		remoteRunPolls = promauto.NewCounter(prometheus.CounterOpts{
			Name: "dfops_remote_run_polls_total",
			Help: "Status requests issued while waiting on remote runs",
		})
		remoteRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dfops_remote_run_duration_seconds",
			Help:    "Wall time from trigger to terminal status",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		})
		taskRuns = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfops_task_runs_total",
				Help: "Workflow task executions by final state",
			},
			[]string{"dag", "task", "state"},
		)
		storageEvents = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfops_storage_events_total",
				Help: "Object-finalized notifications by outcome",
			},
			[]string{"outcome"},
		)
		metricsRegistered = true
	})
}

// RecordTransfer counts one object of n bytes.
func RecordTransfer(direction string, n int64) {
	if !metricsRegistered {
		return
	}
	objectsTransferred.WithLabelValues(direction).Inc()
	bytesTransferred.WithLabelValues(direction).Add(float64(n))
}

// RecordPoll counts one status request.
func RecordPoll() {
	if !metricsRegistered {
		return
	}
	remoteRunPolls.Inc()
}

// RecordRemoteRun counts a finished remote run.
func RecordRemoteRun(status string, elapsed time.Duration) {
	if !metricsRegistered {
		return
	}
	remoteRuns.WithLabelValues(status).Inc()
	remoteRunDuration.Observe(elapsed.Seconds())
}

// RecordTask counts a task reaching a final state.
func RecordTask(dag, task, state string) {
	if !metricsRegistered {
		return
	}
	taskRuns.WithLabelValues(dag, task, state).Inc()
}

// RecordStorageEvent counts an object notification.
func RecordStorageEvent(outcome string) {
	if !metricsRegistered {
		return
	}
	storageEvents.WithLabelValues(outcome).Inc()
}

// GetObjectsTransferred returns the counter for testing.
func GetObjectsTransferred() *prometheus.CounterVec { return objectsTransferred }

// GetBytesTransferred returns the counter for testing.
func GetBytesTransferred() *prometheus.CounterVec { return bytesTransferred }

// GetRemoteRuns returns the counter for testing.
func GetRemoteRuns() *prometheus.CounterVec { return remoteRuns }

// GetRemoteRunPolls returns the counter for testing.
func GetRemoteRunPolls() prometheus.Counter { return remoteRunPolls }

// GetTaskRuns returns the counter for testing.
func GetTaskRuns() *prometheus.CounterVec { return taskRuns }

// GetStorageEvents returns the counter for testing.
func GetStorageEvents() *prometheus.CounterVec { return storageEvents }
