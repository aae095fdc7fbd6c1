package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/handscan/internal/capture"
	"github.com/bdougie/handscan/internal/session"
)

func newTestHandler() (*Handler, *session.Store) {
	store := session.New()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestStatus(t *testing.T) {
	h, store := newTestHandler()
	router := h.Router()

	t.Run("before capture", func(t *testing.T) {
		store.SetScanID("scan-3")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got Status
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "scan-3", got.Session.ScanID)
		assert.Nil(t, got.Capture)
	})

	t.Run("during capture", func(t *testing.T) {
		seconds := 2
		h.Observe(capture.Snapshot{ScanID: "scan-3", Phase: "Countdown", Seconds: &seconds,
			Instruction: "Photo will be taken in 2 seconds..."})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		var got Status
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.NotNil(t, got.Capture)
		assert.Equal(t, "Countdown", got.Capture.Phase)
		require.NotNil(t, got.Capture.Seconds)
		assert.Equal(t, 2, *got.Capture.Seconds)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestHandler()
	router := h.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
