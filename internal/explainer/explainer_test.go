package explainer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/handscan/internal/models"
)

var sample = models.ScanResult{
	ID: "r1", MinAge: 20, MaxAge: 30, ClassifiedAge: 25,
	ClassifiedGender: 1, ConfidenceAge: 0.62, ConfidenceGender: 0.9,
}

func TestPrompt(t *testing.T) {
	p := Prompt(sample, []models.NearestNeighbour{{ID: "n1", Gender: 0, Age: 24, Region: "EU"}})
	assert.Contains(t, p, "Estimated age: 25 (range 20 to 30, confidence 62%)")
	assert.Contains(t, p, "Estimated gender: male (confidence 90%)")
	assert.Contains(t, p, "- age 24, female, region EU")
	assert.True(t, strings.HasSuffix(p, "Explain this result."))
}

func TestExplainAttachesOnlyLocalImages(t *testing.T) {
	img := filepath.Join(t.TempDir(), "hand.jpg")
	require.NoError(t, os.WriteFile(img, []byte{0xFF, 0xD8}, 0o644))

	var gotPath string
	var observed bool
	e := New(func(_ context.Context, prompt, imagePath string) (string, error) {
		gotPath = imagePath
		return "  You are probably in your twenties.\n", nil
	}, nil, func(time.Time) { observed = true })

	text, err := e.Explain(context.Background(), sample, nil, img)
	require.NoError(t, err)
	assert.Equal(t, "You are probably in your twenties.", text)
	assert.Equal(t, img, gotPath)
	assert.True(t, observed)

	_, err = e.Explain(context.Background(), sample, nil, "server/side/ref.jpg")
	require.NoError(t, err)
	assert.Empty(t, gotPath)
}

func TestExplainErrors(t *testing.T) {
	boom := errors.New("model crashed")
	_, err := New(func(context.Context, string, string) (string, error) { return "", boom }, nil, nil).
		Explain(context.Background(), sample, nil, "")
	assert.ErrorIs(t, err, boom)

	_, err = New(func(context.Context, string, string) (string, error) { return "   ", nil }, nil, nil).
		Explain(context.Background(), sample, nil, "")
	assert.ErrorIs(t, err, ErrEmptyExplanation)
}

func TestCheckOllama(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer up.Close()

	base, port := splitHostPort(t, up.URL)
	assert.NoError(t, checkOllama(context.Background(), base, port))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	base, port = splitHostPort(t, down.URL)
	assert.ErrorIs(t, checkOllama(context.Background(), base, port), ErrOllamaUnavailable)
}

func splitHostPort(t *testing.T, u string) (string, int) {
	t.Helper()
	i := strings.LastIndex(u, ":")
	port, err := strconv.Atoi(u[i+1:])
	require.NoError(t, err)
	return u[:i], port
}

func TestGenderLabel(t *testing.T) {
	assert.Equal(t, "female", GenderLabel(0))
	assert.Equal(t, "male", GenderLabel(1))
	assert.Equal(t, "unknown", GenderLabel(7))
}
