package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChecksPerformed counts supervisor scan ticks, mirroring the
	// registry's checks_performed stat counter.
	ChecksPerformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volguard_checks_total",
			Help: "Total number of supervisor scan ticks performed",
		},
	)

	// ExtensionsTotal counts remediation attempts by outcome.
	ExtensionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volguard_extensions_total",
			Help: "Total number of logical volume extension attempts by result",
		},
		[]string{"result"}, // "succeeded" or "failed"
	)

	// ShrinksTotal counts donor LV shrink operations actually executed.
	ShrinksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volguard_shrinks_total",
			Help: "Total number of donor logical volume shrinks performed",
		},
	)

	// FallbackPVsTotal counts fallback physical volumes annexed into a VG.
	FallbackPVsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volguard_fallback_pvs_total",
			Help: "Total number of fallback physical volumes added to a volume group",
		},
	)

	// VolumeUsePercent tracks the most recent usage percentage observed
	// for each monitored device.
	VolumeUsePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "volguard_volume_use_percent",
			Help: "Most recently observed usage percentage for a monitored device",
		},
		[]string{"device"},
	)

	// PlannerDuration times a single HandleDevice remediation attempt.
	PlannerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volguard_planner_duration_seconds",
			Help:    "Duration of a single remediation attempt",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ChecksPerformed)
	prometheus.MustRegister(ExtensionsTotal)
	prometheus.MustRegister(ShrinksTotal)
	prometheus.MustRegister(FallbackPVsTotal)
	prometheus.MustRegister(VolumeUsePercent)
	prometheus.MustRegister(PlannerDuration)
}

// Handler returns the Prometheus scrape handler, served over plain
// net/http on --metrics-addr, independent of the status endpoint's raw
// line protocol.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and observing the elapsed
// duration into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
