package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// New registers on the default registry, so the whole package shares one instance.
func TestMetrics(t *testing.T) {
	m := New()

	m.FrameSent()
	m.FrameSent()
	m.FrameDropped()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped))

	m.PhaseChanged("countdown")
	m.PhaseChanged("countdown")
	m.PhaseChanged("succeeded")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PhaseChanges.WithLabelValues("countdown")))

	m.CaptureFinished("failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapturesTotal.WithLabelValues("failed")))

	m.ObserveRecordRequest("create", nil)
	m.ObserveRecordRequest("result", errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordRequests.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordRequests.WithLabelValues("result", "error")))

	m.IncrementJournalDropped()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JournalDropped))

	m.ObserveResultFetch(time.Now().Add(-time.Second))
	m.ObserveExplain(time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(m.ResultDuration))
}
