package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	ScansTotal           prometheus.Counter
	ScanDuration         prometheus.Histogram
	InconsistenciesFound *prometheus.CounterVec
	RepairsTotal         *prometheus.CounterVec
	PurgesTotal          *prometheus.CounterVec
	DuplicateGroupsFound *prometheus.CounterVec
	MergesTotal          *prometheus.CounterVec
	DependentsReassigned *prometheus.CounterVec
	WipesTotal           prometheus.Counter
	AuditPublishFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "steward_scans_total",
			Help: "Total number of cross-store scans run",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "steward_scan_duration_seconds",
			Help:    "Wall time of cross-store scans",
			Buckets: prometheus.DefBuckets,
		}),
		InconsistenciesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_inconsistencies_found_total",
			Help: "Inconsistencies found per kind across all scans",
		}, []string{"kind"}),
		RepairsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_repairs_total",
			Help: "Repairs applied per kind and result",
		}, []string{"kind", "result"}),
		PurgesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_purges_total",
			Help: "Emergency purges per result",
		}, []string{"result"}),
		DuplicateGroupsFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_duplicate_groups_found_total",
			Help: "Duplicate groups found per type across all detections",
		}, []string{"type"}),
		MergesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_merges_total",
			Help: "Duplicate merges per result",
		}, []string{"result"}),
		DependentsReassigned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_dependents_reassigned_total",
			Help: "Dependent rows re-pointed to a merge keeper, per table",
		}, []string{"table"}),
		WipesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "steward_wipes_total",
			Help: "Completed bulk deletes",
		}),
		AuditPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "steward_audit_publish_failures_total",
			Help: "Audit entries that could not be mirrored to Kafka",
		}),
	}
}
