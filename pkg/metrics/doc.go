/*
Package metrics provides Prometheus metrics and health reporting for the VerseGuy
storage subsystem.

All collectors are package-level variables registered with the default Prometheus
registry in init(). Storage code writes to them; nothing in the subsystem reads
them back. Handler exposes them for scraping.

# Metrics Catalog

Storage engine:

  - verseguy_storage_operations_total{operation}: get, put, delete, scan, count,
    update, flush, batch
  - verseguy_storage_errors_total{operation}: failed operations
  - verseguy_storage_operation_duration_seconds{operation}: latency histogram

Repository:

  - verseguy_repository_version_conflicts_total{entity_type}
  - verseguy_repository_skipped_records_total{entity_type}

Transactions, migrations and backups:

  - verseguy_storage_transactions_total{result}
  - verseguy_storage_migrations_applied_total
  - verseguy_storage_backups_total{result}

Cache:

  - verseguy_cache_hits_total{cache}
  - verseguy_cache_misses_total{cache}
  - verseguy_cache_evictions_total{cache,reason}

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StorageOperationDuration, "get")

# Health

Components register their state with RegisterComponent. GetReadiness requires every
name in CriticalComponents ("storage", "keystore") to be registered and healthy.
GetHealth is unhealthy when a critical component fails and degraded when only
another one does, such as "backup" after a failed snapshot.
HealthHandler, ReadyHandler and LivenessHandler serve the JSON views over HTTP.

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())
*/
package metrics
