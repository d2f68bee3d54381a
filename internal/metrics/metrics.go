// Package metrics exposes Prometheus metrics for the camera monitor.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitemon"

// Capture modes.
const (
	ModeSense  = "sense"
	ModeRecord = "record"
)

var (
	motionScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "score",
		Help:      "Normalized difference of the last sensing cycle",
	})

	motionThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "threshold",
		Help:      "Active motion threshold",
	})

	motionEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "events_total",
		Help:      "Sensing cycles that detected motion",
	})

	captureCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "cycles_total",
		Help:      "Completed capture cycles by mode",
	}, []string{"mode"})

	captureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a capture cycle including format switches",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"mode"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Capture failures by error kind",
	}, []string{"kind"})

	evidenceFiles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evidence",
		Name:      "files_written_total",
		Help:      "Evidence files written",
	})

	evidenceBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "evidence",
		Name:      "directory_bytes",
		Help:      "Total size of the evidence directory",
	})

	evidencePruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evidence",
		Name:      "pruned_total",
		Help:      "Evidence files removed by retention",
	})

	alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alert attempts by channel and result",
	}, []string{"channel", "result"})

	alertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "suppressed_total",
		Help:      "Alerts dropped by the minimum interval",
	})

	monitorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "state",
		Help:      "1 for the current monitor state, 0 otherwise",
	}, []string{"state"})

	recoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "recoveries_total",
		Help:      "Successful device re-initializations",
	})

	stateMu   sync.Mutex
	lastState string
)

// SetMotionScore records the score of the latest sensing cycle.
func SetMotionScore(score uint64) {
	motionScore.Set(float64(score))
}

// SetMotionThreshold records the active threshold.
func SetMotionThreshold(threshold uint64) {
	motionThreshold.Set(float64(threshold))
}

// IncMotionEvents counts a detection.
func IncMotionEvents() {
	motionEvents.Inc()
}

// ObserveCycle counts a successful cycle of mode and its duration.
func ObserveCycle(mode string, d time.Duration) {
	captureCycles.WithLabelValues(mode).Inc()
	captureDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// IncCaptureError counts a failure of the given kind.
func IncCaptureError(kind string) {
	captureErrors.WithLabelValues(kind).Inc()
}

// AddEvidenceFiles counts n files written.
func AddEvidenceFiles(n int) {
	evidenceFiles.Add(float64(n))
}

// SetEvidenceBytes records the evidence directory size.
func SetEvidenceBytes(n int64) {
	evidenceBytes.Set(float64(n))
}

// AddEvidencePruned counts n files removed by retention.
func AddEvidencePruned(n int) {
	evidencePruned.Add(float64(n))
}

// IncAlert counts one alert attempt on channel.
func IncAlert(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	alerts.WithLabelValues(channel, result).Inc()
}

// IncAlertSuppressed counts an alert dropped by rate limiting.
func IncAlertSuppressed() {
	alertsSuppressed.Inc()
}

// SetState marks state as current and clears the previous one.
func SetState(state string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	if lastState != "" {
		monitorState.WithLabelValues(lastState).Set(0)
	}
	monitorState.WithLabelValues(state).Set(1)
	lastState = state
}

// IncRecoveries counts a successful device recovery.
func IncRecoveries() {
	recoveries.Inc()
}

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
