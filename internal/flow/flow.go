// Package flow runs one guided scan from consent to results: it creates the
// scan entry, drives the capture step (with retakes), fetches the
// classification and journals every attempt.
package flow

//go:generate mockgen -source=flow.go -destination=mocks/mocks.go -package=mocks Records,Journal,Explainer,Searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/handscan/internal/capture"
	"github.com/bdougie/handscan/internal/models"
	"github.com/bdougie/handscan/internal/nav"
	"github.com/bdougie/handscan/internal/scanrecord"
	"github.com/bdougie/handscan/internal/session"
)

var (
	ErrNoConsent     = errors.New("consent was not given")
	ErrCaptureFailed = errors.New("no picture could be captured")
	ErrResultTimeout = errors.New("timed out waiting for the scan result")
)

const (
	defaultPollInterval  = time.Second
	defaultResultTimeout = 30 * time.Second
	defaultMaxAttempts   = 3
	similarLimit         = 5
)

// Records is the part of the scan-record service the flow needs
type Records interface {
	CreateScanEntry(ctx context.Context) (models.ScanEntry, error)
	GetScanResult(ctx context.Context, id string) (scanrecord.Result, error)
}

type Journal interface {
	Add(ctx context.Context, rec models.CaptureRecord) error
}

type Explainer interface {
	Explain(ctx context.Context, result models.ScanResult, neighbors []models.NearestNeighbour, imageRef string) (string, error)
}

type Searcher interface {
	SimilarResults(ctx context.Context, result models.ScanResult, limit int) ([]models.ResultSearchHit, error)
}

// Capture is one capture attempt; *capture.Controller satisfies it
type Capture interface {
	Run(ctx context.Context) (capture.Phase, error)
	FramesSent() int
}

// Prompts are the user decisions the flow asks for
type Prompts struct {
	// Consent is asked once before a scan entry is created.
	Consent func(ctx context.Context) (bool, error)
	// Retake is asked after a failed attempt; reason is user-facing.
	Retake func(ctx context.Context, reason string) (bool, error)
}

type Deps struct {
	Store     *session.Store
	Records   Records
	Journal   Journal
	Explainer Explainer // optional
	Searcher  Searcher  // optional
	// NewCapture builds a fresh capture attempt for the current scan.
	NewCapture func() Capture
	Navigator  nav.Navigator
	Prompts    Prompts
	// ObserveResultFetch is called with the start time of every result fetch.
	ObserveResultFetch func(start time.Time)
	Logger             *slog.Logger
}

type Options struct {
	MaxAttempts        int
	ResultPollInterval time.Duration
	ResultTimeout      time.Duration
}

// Summary is what the results step shows
type Summary struct {
	ScanID      string
	ImageRef    string
	Result      models.ScanResult
	Neighbors   []models.NearestNeighbour
	Explanation string
	Similar     []models.ResultSearchHit
	Attempts    int
}

type Flow struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options) (*Flow, error) {
	if deps.Store == nil {
		return nil, errors.New("session store is required")
	}
	if deps.Records == nil {
		return nil, errors.New("scan records client is required")
	}
	if deps.NewCapture == nil {
		return nil, errors.New("capture factory is required")
	}
	if deps.Journal == nil {
		deps.Journal = discardJournal{}
	}
	if deps.Navigator == nil {
		deps.Navigator = nav.NavigatorFunc(func(context.Context, nav.Step) error { return nil })
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.ResultPollInterval <= 0 {
		opts.ResultPollInterval = defaultPollInterval
	}
	if opts.ResultTimeout <= 0 {
		opts.ResultTimeout = defaultResultTimeout
	}
	return &Flow{deps: deps, opts: opts, logger: deps.Logger}, nil
}

// Run performs the whole scan
func (f *Flow) Run(ctx context.Context) (Summary, error) {
	if err := f.navigate(ctx, nav.StepConsent); err != nil {
		return Summary{}, err
	}
	if f.deps.Prompts.Consent != nil {
		ok, err := f.deps.Prompts.Consent(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to ask for consent: %w", err)
		}
		if !ok {
			return Summary{}, ErrNoConsent
		}
	}

	entry, err := f.deps.Records.CreateScanEntry(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create scan entry: %w", err)
	}
	f.deps.Store.SetScanID(entry.ID)
	logger := f.logger.With("scan_id", entry.ID)
	logger.Info("Scan entry created")

	rec, attempts, err := f.capture(ctx, logger)
	if err != nil {
		return Summary{ScanID: entry.ID, Attempts: attempts}, err
	}

	summary, err := f.process(ctx, rec, logger)
	summary.Attempts = attempts
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// capture runs attempts until one succeeds or the user stops retaking.
// Failed attempts are journaled here; the successful one is journaled after
// processing so it carries the classification.
func (f *Flow) capture(ctx context.Context, logger *slog.Logger) (models.CaptureRecord, int, error) {
	for attempt := 1; ; attempt++ {
		if err := f.navigate(ctx, nav.StepCapture); err != nil {
			return models.CaptureRecord{}, attempt - 1, err
		}

		c := f.deps.NewCapture()
		rec := models.CaptureRecord{
			AttemptID: uuid.NewString(),
			ScanID:    f.deps.Store.ScanID(),
			StartedAt: time.Now().UTC(),
		}
		phase, err := c.Run(ctx)
		rec.EndedAt = time.Now().UTC()
		rec.FramesSent = c.FramesSent()
		rec.Outcome = phase.Kind.String()
		rec.ImageRef = phase.ImageRef
		rec.Reason = phase.Reason

		if phase.Kind == capture.KindSucceeded && ctx.Err() == nil {
			if err != nil {
				logger.Warn("Page transition after capture failed", "error", err)
			}
			logger.Info("Picture captured", "attempt", attempt, "image", phase.ImageRef)
			return rec, attempt, nil
		}

		if rec.Reason == "" && err != nil {
			rec.Reason = err.Error()
		}
		f.journal(rec)

		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return rec, attempt, err
		case errors.Is(err, capture.ErrExited):
			return rec, attempt, err
		case errors.Is(err, capture.ErrMissingScanID), errors.Is(err, capture.ErrAlreadyCaptured):
			return rec, attempt, err
		}

		logger.Warn("Capture attempt failed", "attempt", attempt, "reason", rec.Reason)
		if attempt >= f.opts.MaxAttempts || f.deps.Prompts.Retake == nil {
			return rec, attempt, fmt.Errorf("%w: %s", ErrCaptureFailed, rec.Reason)
		}
		again, perr := f.deps.Prompts.Retake(ctx, rec.Reason)
		if perr != nil {
			return rec, attempt, fmt.Errorf("failed to ask for retake: %w", perr)
		}
		if !again {
			return rec, attempt, fmt.Errorf("%w: %s", ErrCaptureFailed, rec.Reason)
		}
	}
}

func (f *Flow) process(ctx context.Context, rec models.CaptureRecord, logger *slog.Logger) (Summary, error) {
	summary := Summary{ScanID: rec.ScanID, ImageRef: rec.ImageRef}
	if err := f.navigate(ctx, nav.StepProcessing); err != nil {
		return summary, err
	}

	result, err := f.awaitResult(ctx, rec.ScanID)
	if err != nil {
		f.journal(rec)
		return summary, err
	}
	f.deps.Store.SetClassification(result.Classification)
	f.deps.Store.SetNeighbors(result.Neighbors)
	summary.Result = result.Classification
	summary.Neighbors = result.Neighbors
	logger.Info("Scan classified",
		"age", result.Classification.ClassifiedAge,
		"gender", result.Classification.ClassifiedGender,
		"neighbors", len(result.Neighbors))

	// explanation and similar results are extras; their failures never fail the scan
	g, gctx := errgroup.WithContext(ctx)
	if f.deps.Explainer != nil {
		g.Go(func() error {
			text, err := f.deps.Explainer.Explain(gctx, result.Classification, result.Neighbors, rec.ImageRef)
			if err != nil {
				logger.Warn("Failed to explain result", "error", err)
				return nil
			}
			summary.Explanation = text
			return nil
		})
	}
	if f.deps.Searcher != nil {
		g.Go(func() error {
			hits, err := f.deps.Searcher.SimilarResults(gctx, result.Classification, similarLimit)
			if err != nil {
				logger.Warn("Failed to search similar results", "error", err)
				return nil
			}
			summary.Similar = hits
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	classification := result.Classification
	rec.Classification = &classification
	rec.Explanation = summary.Explanation
	f.journal(rec)

	if summary.Explanation != "" {
		if err := f.navigate(ctx, nav.StepExplanation); err != nil {
			return summary, err
		}
	}
	if err := f.navigate(ctx, nav.StepResults); err != nil {
		return summary, err
	}
	return summary, nil
}

// awaitResult polls until the service has classified the scan
func (f *Flow) awaitResult(ctx context.Context, scanID string) (scanrecord.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.ResultTimeout)
	defer cancel()

	ticker := time.NewTicker(f.opts.ResultPollInterval)
	defer ticker.Stop()
	for {
		start := time.Now()
		result, err := f.deps.Records.GetScanResult(ctx, scanID)
		if f.deps.ObserveResultFetch != nil {
			f.deps.ObserveResultFetch(start)
		}
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, scanrecord.ErrNoResult) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return scanrecord.Result{}, ErrResultTimeout
			}
			return scanrecord.Result{}, fmt.Errorf("failed to fetch scan result: %w", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return scanrecord.Result{}, ErrResultTimeout
			}
			return scanrecord.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *Flow) navigate(ctx context.Context, step nav.Step) error {
	if err := f.deps.Navigator.Navigate(ctx, step); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", step, err)
	}
	return nil
}

func (f *Flow) journal(rec models.CaptureRecord) {
	// the journal outlives a cancelled scan
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.deps.Journal.Add(ctx, rec); err != nil {
		f.logger.Warn("Failed to journal capture", "attempt_id", rec.AttemptID, "error", err)
	}
}

type discardJournal struct{}

func (discardJournal) Add(context.Context, models.CaptureRecord) error { return nil }
