package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks capture attempts and the scan flow around them.
type Metrics struct {
	FramesSent      prometheus.Counter
	FramesDropped   prometheus.Counter
	PhaseChanges    *prometheus.CounterVec
	CapturesTotal   *prometheus.CounterVec
	RecordRequests  *prometheus.CounterVec
	ResultDuration  prometheus.Histogram
	JournalDropped  prometheus.Counter
	ExplainDuration prometheus.Histogram
}

// New registers all handscan metrics with the default registry.
// Call it once per process.
func New() *Metrics {
	return &Metrics{
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "handscan_frames_sent_total",
			Help: "Frames written to the analyzer connection",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "handscan_frames_dropped_total",
			Help: "Samples skipped because the previous frame was still being sent",
		}),
		PhaseChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "handscan_capture_phase_changes_total",
			Help: "Capture phase transitions by target phase",
		}, []string{"phase"}),
		CapturesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "handscan_captures_total",
			Help: "Finished capture attempts by outcome",
		}, []string{"outcome"}),
		RecordRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "handscan_scan_record_requests_total",
			Help: "Scan record API calls by operation and status",
		}, []string{"operation", "status"}),
		ResultDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "handscan_result_fetch_duration_seconds",
			Help:    "Time spent fetching the classification result",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		JournalDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "handscan_journal_dropped_total",
			Help: "Capture records dropped because the journal queue was full",
		}),
		ExplainDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "handscan_explain_duration_seconds",
			Help:    "Duration of result explanations from the vision model",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) FrameSent() {
	m.FramesSent.Inc()
}

func (m *Metrics) FrameDropped() {
	m.FramesDropped.Inc()
}

func (m *Metrics) PhaseChanged(phase string) {
	m.PhaseChanges.WithLabelValues(phase).Inc()
}

func (m *Metrics) CaptureFinished(outcome string) {
	m.CapturesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRecordRequest counts one scan record API call.
func (m *Metrics) ObserveRecordRequest(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecordRequests.WithLabelValues(operation, status).Inc()
}

// ObserveResultFetch records the duration of a result fetch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResultFetch(start time.Time) {
	m.ResultDuration.Observe(time.Since(start).Seconds())
}

// ObserveExplain records the duration of an explanation call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveExplain(start time.Time) {
	m.ExplainDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementJournalDropped() {
	m.JournalDropped.Inc()
}
