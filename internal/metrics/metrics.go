package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradeconnect"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo exposes application version information as labels (value is always 1)
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// CapacityLockAttempts counts seat lock acquisitions by outcome
var CapacityLockAttempts = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capacity_lock_attempts_total",
		Help:      "Total number of capacity lock acquisition attempts",
	},
	[]string{"result"}, // result: acquired|replayed|capacity_exceeded|error
)

// CapacityLocksExpired counts locks reclaimed by the expiry sweep
var CapacityLocksExpired = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capacity_locks_expired_total",
		Help:      "Total number of capacity locks expired by the sweep job",
	},
)

// WaitlistPromotions counts waitlist entries promoted to seat locks
var WaitlistPromotions = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "waitlist_promotions_total",
		Help:      "Total number of waitlist entries promoted",
	},
)

// CheckIns counts attendance check-ins
var CheckIns = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_check_ins_total",
		Help:      "Total number of attendance check-ins",
	},
)

// InvoicesVoided counts FEL invoices voided
var InvoicesVoided = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fel_invoices_voided_total",
		Help:      "Total number of FEL invoices voided",
	},
)

// WebhookDeliveries counts webhook delivery attempts by outcome
var WebhookDeliveries = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Total number of webhook delivery attempts",
	},
	[]string{"result"}, // result: delivered|failed
)

// CertificateSubmissions counts blockchain certificate submissions by outcome
var CertificateSubmissions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "certificate_submissions_total",
		Help:      "Total number of blockchain certificate submissions",
	},
	[]string{"result"}, // result: confirmed|failed
)

// Init registers runtime collectors and stamps the version info gauge.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
