// Package metrics exposes Prometheus instruments for the billing batch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcclellann/fredBilling/pkg/models"
)

const namespace = "fredbilling"

// Recorder counts reminder outcomes. A nil *Recorder records nothing.
type Recorder struct {
	sent     *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewRecorder creates the instruments and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders delivered to the messaging gateway.",
		}, []string{"urgency"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_skipped_total",
			Help:      "Reminders not sent, by reason.",
		}, []string{"reason"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_failed_total",
			Help:      "Reminders the messaging gateway rejected.",
		}, []string{"urgency"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one billing batch.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(r.sent, r.skipped, r.failed, r.duration)
	return r
}

func (r *Recorder) Sent(u models.Urgency) {
	if r == nil {
		return
	}
	r.sent.WithLabelValues(string(u)).Inc()
}

// Skipped records a reminder dropped for reason, e.g. "duplicate" or "inactive".
func (r *Recorder) Skipped(reason string) {
	if r == nil {
		return
	}
	r.skipped.WithLabelValues(reason).Inc()
}

func (r *Recorder) Failed(u models.Urgency) {
	if r == nil {
		return
	}
	r.failed.WithLabelValues(string(u)).Inc()
}

func (r *Recorder) BatchDone(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.duration.Observe(elapsed.Seconds())
}
