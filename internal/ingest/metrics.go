package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	enqueuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "ingest",
		Name:      "jobs_enqueued_total",
		Help:      "Number of webhook notifications recorded as pending jobs, labeled by kind.",
	}, []string{"kind"})

	dispatchedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "ingest",
		Name:      "jobs_dispatched_total",
		Help:      "Number of jobs successfully delivered to Kafka.",
	})

	dispatchFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "ingest",
		Name:      "dispatch_failures_total",
		Help:      "Number of jobs whose Kafka delivery failed.",
	})

	dispatchBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trainload",
		Subsystem: "ingest",
		Name:      "dispatch_batch_duration_seconds",
		Help:      "Time spent claiming, delivering, and marking one dispatch batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Number of jobs completed successfully, labeled by kind.",
	}, []string{"kind"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "worker",
		Name:      "job_retries_total",
		Help:      "Number of job attempt retries, labeled by kind.",
	}, []string{"kind"})

	parkedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "worker",
		Name:      "jobs_parked_total",
		Help:      "Number of jobs parked after exhausting retries, labeled by kind.",
	}, []string{"kind"})

	decodeErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "worker",
		Name:      "decode_errors_total",
		Help:      "Number of envelopes that could not be decoded.",
	})

	prunedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "janitor",
		Name:      "jobs_pruned_total",
		Help:      "Number of ledger rows pruned, labeled by terminal status.",
	}, []string{"status"})

	releasedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "janitor",
		Name:      "stuck_claims_released_total",
		Help:      "Number of stale dispatch claims returned to pending.",
	})
)

func init() {
	prometheus.MustRegister(
		enqueuedCounter,
		dispatchedCounter,
		dispatchFailedCounter,
		dispatchBatchDuration,
		processedCounter,
		retryCounter,
		parkedCounter,
		decodeErrorCounter,
		prunedCounter,
		releasedCounter,
	)
}
