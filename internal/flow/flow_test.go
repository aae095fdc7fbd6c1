package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/bdougie/handscan/internal/capture"
	"github.com/bdougie/handscan/internal/flow/mocks"
	"github.com/bdougie/handscan/internal/models"
	"github.com/bdougie/handscan/internal/nav"
	"github.com/bdougie/handscan/internal/scanrecord"
	"github.com/bdougie/handscan/internal/session"
)

// scriptedCapture returns a fixed outcome and writes the image on success,
// the way the real controller does.
type scriptedCapture struct {
	store *session.Store
	phase capture.Phase
	err   error
}

func (c *scriptedCapture) Run(context.Context) (capture.Phase, error) {
	if c.phase.Kind == capture.KindSucceeded {
		if err := c.store.SetCapturedImage(c.phase.ImageRef); err != nil {
			return capture.Failed(capture.ReasonStoreFailed), nil
		}
	}
	return c.phase, c.err
}

func (c *scriptedCapture) FramesSent() int { return 4 }

type stepRecorder struct {
	mu    sync.Mutex
	steps []nav.Step
}

func (r *stepRecorder) Navigate(_ context.Context, step nav.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
	return nil
}

var classified = scanrecord.Result{
	Classification: models.ScanResult{ID: "r1", MinAge: 20, MaxAge: 30, ClassifiedAge: 26, ClassifiedGender: 1, ConfidenceAge: 0.7, ConfidenceGender: 0.9},
	Neighbors:      []models.NearestNeighbour{{ID: "n1", Gender: 1, Age: 25, Region: "EU"}},
}

type FlowSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	records   *mocks.MockRecords
	journal   *mocks.MockJournal
	explainer *mocks.MockExplainer
	searcher  *mocks.MockSearcher
	store     *session.Store
	steps     *stepRecorder
	outcomes  []*scriptedCapture
	retakes   []string
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.records = mocks.NewMockRecords(s.ctrl)
	s.journal = mocks.NewMockJournal(s.ctrl)
	s.explainer = mocks.NewMockExplainer(s.ctrl)
	s.searcher = mocks.NewMockSearcher(s.ctrl)
	s.store = session.New()
	s.steps = &stepRecorder{}
	s.outcomes = nil
	s.retakes = nil
}

func (s *FlowSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FlowSuite) script(phases ...capture.Phase) {
	for _, p := range phases {
		s.outcomes = append(s.outcomes, &scriptedCapture{store: s.store, phase: p})
	}
}

func (s *FlowSuite) newFlow(consent bool, retake bool, withExtras bool) *Flow {
	deps := Deps{
		Store:   s.store,
		Records: s.records,
		Journal: s.journal,
		NewCapture: func() Capture {
			next := s.outcomes[0]
			s.outcomes = s.outcomes[1:]
			return next
		},
		Navigator: s.steps,
		Prompts: Prompts{
			Consent: func(context.Context) (bool, error) { return consent, nil },
			Retake: func(_ context.Context, reason string) (bool, error) {
				s.retakes = append(s.retakes, reason)
				return retake, nil
			},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if withExtras {
		deps.Explainer = s.explainer
		deps.Searcher = s.searcher
	}
	f, err := New(deps, Options{ResultPollInterval: 5 * time.Millisecond, ResultTimeout: time.Second})
	s.Require().NoError(err)
	return f
}

func (s *FlowSuite) TestNew() {
	s.Run("store is required", func() {
		_, err := New(Deps{Records: s.records, NewCapture: func() Capture { return nil }}, Options{})
		s.ErrorContains(err, "session store is required")
	})
	s.Run("records are required", func() {
		_, err := New(Deps{Store: s.store, NewCapture: func() Capture { return nil }}, Options{})
		s.ErrorContains(err, "scan records client is required")
	})
	s.Run("defaults", func() {
		f, err := New(Deps{Store: s.store, Records: s.records, NewCapture: func() Capture { return nil }}, Options{})
		s.Require().NoError(err)
		s.Equal(defaultMaxAttempts, f.opts.MaxAttempts)
		s.Equal(defaultResultTimeout, f.opts.ResultTimeout)
	})
}

func (s *FlowSuite) TestNoConsentCreatesNothing() {
	_, err := s.newFlow(false, false, false).Run(context.Background())
	s.ErrorIs(err, ErrNoConsent)
	s.Empty(s.store.ScanID())
}

func (s *FlowSuite) TestHappyPath() {
	s.script(capture.Succeeded("captures/42.jpg"))
	s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
	gomock.InOrder(
		s.records.EXPECT().GetScanResult(gomock.Any(), "42").Return(scanrecord.Result{}, scanrecord.ErrNoResult),
		s.records.EXPECT().GetScanResult(gomock.Any(), "42").Return(classified, nil),
	)
	s.explainer.EXPECT().
		Explain(gomock.Any(), classified.Classification, classified.Neighbors, "captures/42.jpg").
		Return("You are most likely in your mid twenties.", nil)
	s.searcher.EXPECT().SimilarResults(gomock.Any(), classified.Classification, similarLimit).
		Return([]models.ResultSearchHit{{ScanID: "7", Similarity: 0.98}}, nil)
	s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec models.CaptureRecord) error {
			s.Equal("42", rec.ScanID)
			s.Equal("succeeded", rec.Outcome)
			s.Equal(4, rec.FramesSent)
			s.NotEmpty(rec.AttemptID)
			s.Require().NotNil(rec.Classification)
			s.Equal(26, rec.Classification.ClassifiedAge)
			s.Equal("You are most likely in your mid twenties.", rec.Explanation)
			return nil
		})

	summary, err := s.newFlow(true, false, true).Run(context.Background())
	s.Require().NoError(err)
	s.Equal("42", summary.ScanID)
	s.Equal(1, summary.Attempts)
	s.Equal(26, summary.Result.ClassifiedAge)
	s.Len(summary.Similar, 1)

	state := s.store.Snapshot()
	s.Equal("captures/42.jpg", state.CapturedImage)
	s.Require().NotNil(state.Classification)
	s.Equal("r1", state.Classification.ID)
	s.Len(state.Neighbors, 1)

	s.Equal([]nav.Step{nav.StepConsent, nav.StepCapture, nav.StepProcessing, nav.StepExplanation, nav.StepResults}, s.steps.steps)
}

func (s *FlowSuite) TestRetakeAfterFailure() {
	s.script(capture.Failed("hand not found"), capture.Succeeded("captures/42.jpg"))
	s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
	s.records.EXPECT().GetScanResult(gomock.Any(), "42").Return(classified, nil)

	var outcomes []string
	s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, rec models.CaptureRecord) error {
			outcomes = append(outcomes, rec.Outcome)
			return nil
		})

	summary, err := s.newFlow(true, true, false).Run(context.Background())
	s.Require().NoError(err)
	s.Equal(2, summary.Attempts)
	s.Equal([]string{"hand not found"}, s.retakes)
	s.Equal([]string{"failed", "succeeded"}, outcomes)
	s.Empty(summary.Explanation)
}

func (s *FlowSuite) TestUserDeclinesRetake() {
	s.script(capture.Failed("hand not found"))
	s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
	s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)

	summary, err := s.newFlow(true, false, false).Run(context.Background())
	s.ErrorIs(err, ErrCaptureFailed)
	s.ErrorContains(err, "hand not found")
	s.Equal(1, summary.Attempts)
}

func (s *FlowSuite) TestAttemptsAreBounded() {
	s.script(capture.Failed("a"), capture.Failed("b"), capture.Failed("c"))
	s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
	s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Times(3).Return(nil)

	summary, err := s.newFlow(true, true, false).Run(context.Background())
	s.ErrorIs(err, ErrCaptureFailed)
	s.Equal(defaultMaxAttempts, summary.Attempts)
	s.Len(s.retakes, defaultMaxAttempts-1)
}

func (s *FlowSuite) TestExitStopsWithoutRetake() {
	s.outcomes = []*scriptedCapture{{store: s.store, phase: capture.Countdown(2), err: capture.ErrExited}}
	s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
	s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.newFlow(true, true, false).Run(context.Background())
	s.ErrorIs(err, capture.ErrExited)
	s.Empty(s.retakes)
}

func (s *FlowSuite) TestResultErrors() {
	s.Run("service error", func() {
		s.SetupTest()
		s.script(capture.Succeeded("img"))
		s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
		s.records.EXPECT().GetScanResult(gomock.Any(), "42").Return(scanrecord.Result{}, errors.New("boom"))
		s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.newFlow(true, false, false).Run(context.Background())
		s.ErrorContains(err, "failed to fetch scan result")
		s.Equal("img", s.store.CapturedImage())
		_, ok := s.store.Classification()
		s.False(ok)
	})

	s.Run("never ready", func() {
		s.SetupTest()
		s.script(capture.Succeeded("img"))
		s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
		s.records.EXPECT().GetScanResult(gomock.Any(), "42").Return(scanrecord.Result{}, scanrecord.ErrNoResult).AnyTimes()
		s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)

		f := s.newFlow(true, false, false)
		f.opts.ResultTimeout = 50 * time.Millisecond
		_, err := f.Run(context.Background())
		s.ErrorIs(err, ErrResultTimeout)
	})
}

func (s *FlowSuite) TestExtrasNeverFailTheScan() {
	s.script(capture.Succeeded("img"))
	s.records.EXPECT().CreateScanEntry(gomock.Any()).Return(models.ScanEntry{ID: "42"}, nil)
	s.records.EXPECT().GetScanResult(gomock.Any(), "42").Return(classified, nil)
	s.explainer.EXPECT().Explain(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("ollama down"))
	s.searcher.EXPECT().SimilarResults(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
	s.journal.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)

	summary, err := s.newFlow(true, false, true).Run(context.Background())
	s.Require().NoError(err)
	s.Empty(summary.Explanation)
	s.Empty(summary.Similar)
	s.Equal([]nav.Step{nav.StepConsent, nav.StepCapture, nav.StepProcessing, nav.StepResults}, s.steps.steps)
}
