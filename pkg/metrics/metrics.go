package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage engine metrics
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_storage_operations_total",
			Help: "Total number of storage engine operations by operation",
		},
		[]string{"operation"},
	)

	StorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_storage_errors_total",
			Help: "Total number of failed storage engine operations by operation",
		},
		[]string{"operation"},
	)

	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verseguy_storage_operation_duration_seconds",
			Help:    "Storage engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Repository metrics
	VersionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_repository_version_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts by entity type",
		},
		[]string{"entity_type"},
	)

	SkippedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_repository_skipped_records_total",
			Help: "Total number of undecodable records skipped while listing",
		},
		[]string{"entity_type"},
	)

	// Transaction metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_storage_transactions_total",
			Help: "Total number of transactions by result (committed, rolled_back, failed, abandoned)",
		},
		[]string{"result"},
	)

	// Migration metrics
	MigrationsAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verseguy_storage_migrations_applied_total",
			Help: "Total number of migrations applied",
		},
	)

	// Backup metrics
	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_storage_backups_total",
			Help: "Total number of backups by result",
		},
		[]string{"result"},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_cache_hits_total",
			Help: "Total number of cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_cache_misses_total",
			Help: "Total number of cache misses by cache name",
		},
		[]string{"cache"},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseguy_cache_evictions_total",
			Help: "Total number of cache evictions by cache name and reason (lru, expired)",
		},
		[]string{"cache", "reason"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(StorageOperationsTotal)
	prometheus.MustRegister(StorageErrorsTotal)
	prometheus.MustRegister(StorageOperationDuration)
	prometheus.MustRegister(VersionConflictsTotal)
	prometheus.MustRegister(SkippedRecordsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(MigrationsAppliedTotal)
	prometheus.MustRegister(BackupsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
