package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bdougie/handscan/internal/camera"
	"github.com/bdougie/handscan/internal/capture"
	"github.com/bdougie/handscan/internal/config"
	"github.com/bdougie/handscan/internal/events"
	"github.com/bdougie/handscan/internal/explainer"
	"github.com/bdougie/handscan/internal/flow"
	"github.com/bdougie/handscan/internal/handlers"
	"github.com/bdougie/handscan/internal/metrics"
	"github.com/bdougie/handscan/internal/scanrecord"
	"github.com/bdougie/handscan/internal/session"
	"github.com/bdougie/handscan/internal/storage"
	"github.com/bdougie/handscan/internal/transport"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		yes          bool
		analyzerURL  string
		recordURL    string
		still        string
		input        string
		statusAddr   string
		phaseTimeout time.Duration
		explain      bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a guided hand scan",
		Long: `Runs one scan: consent, picture, calculation and result.

The camera is read through ffmpeg. Use --still to scan a picture file instead,
e.g. on a machine without a camera.`,
		Example: `  # Scan with the default camera
  handscan scan

  # Scan a picture against a remote analyzer
  handscan scan --still hand.jpg --analyzer-url https://scan.example.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("analyzer-url") {
				a.cfg.AnalyzerURL = analyzerURL
			}
			if flags.Changed("record-url") {
				a.cfg.RecordURL = recordURL
			}
			if flags.Changed("still") {
				a.cfg.Camera.Still = still
			}
			if flags.Changed("camera") {
				a.cfg.Camera.Input = input
			}
			if flags.Changed("status-addr") {
				a.cfg.StatusAddr = statusAddr
			}
			if flags.Changed("phase-timeout") {
				a.cfg.Capture.PhaseTimeout = phaseTimeout
			}
			if flags.Changed("explain") {
				a.cfg.Explain.Enabled = explain
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			term := newTerminal(cmd.OutOrStdout(), cmd.InOrStdin(), yes)
			summary, err := runScan(cmd.Context(), a.cfg, a.logger, term)
			if errors.Is(err, flow.ErrNoConsent) {
				fmt.Fprintln(cmd.OutOrStdout(), "No scan was made.")
				return nil
			}
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Answer yes to consent and retake questions")
	cmd.Flags().StringVar(&analyzerURL, "analyzer-url", "", "Analyzer base URL (websocket at {url}/ws/{scan id})")
	cmd.Flags().StringVar(&recordURL, "record-url", "", "Scan-record GraphQL endpoint")
	cmd.Flags().StringVar(&still, "still", "", "Use a picture file instead of the camera")
	cmd.Flags().StringVar(&input, "camera", "", "Camera input passed to ffmpeg -i")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "Status server address, empty to disable")
	cmd.Flags().DurationVar(&phaseTimeout, "phase-timeout", 0, "Fail when the analyzer is silent this long (0 waits forever)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Explain the result with a local Ollama vision model")

	return cmd
}

func runScan(ctx context.Context, cfg config.Config, logger *slog.Logger, term *terminal) (flow.Summary, error) {
	m := metrics.New()
	store := session.New()

	status := handlers.New(store, logger)
	if cfg.StatusAddr != "" {
		srv := handlers.NewServer(cfg.StatusAddr, status.Router())
		go func() {
			logger.Info("Status server listening", "addr", cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Status server shutdown failed", "err", err)
			}
		}()
	}

	relay := events.NewRelay(newPublisher(ctx, cfg, logger), 64, logger)
	defer relay.Close()

	journal, searcher, err := openJournal(ctx, cfg, logger, m.IncrementJournalDropped)
	if err != nil {
		return flow.Summary{}, err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Error("Failed to close journal", "error", err)
		}
	}()

	records := scanrecord.NewClient(cfg.RecordURL,
		scanrecord.WithLogger(logger),
		scanrecord.WithObserver(m.ObserveRecordRequest))

	device := newDevice(cfg, logger)
	connect := func(ctx context.Context, scanID string) (capture.Connection, error) {
		sess, err := transport.Dial(ctx, cfg.AnalyzerURL, scanID, transport.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
	observe := func(snap capture.Snapshot) {
		term.Observe(snap)
		status.Observe(snap)
		relay.Observe(snap)
	}

	deps := flow.Deps{
		Store:   store,
		Records: records,
		Journal: journal,
		NewCapture: func() flow.Capture {
			return capture.NewController(capture.Deps{
				Store:     store,
				Camera:    device,
				Connect:   connect,
				Navigator: term,
				Metrics:   m,
				Observer:  observe,
				Logger:    logger,
			}, capture.Options{
				SampleInterval: cfg.Capture.SampleInterval,
				MaxFrameWidth:  cfg.Capture.MaxFrameWidth,
				JPEGQuality:    cfg.Capture.JPEGQuality,
				SuccessDelay:   cfg.Capture.SuccessDelay,
				PhaseTimeout:   cfg.Capture.PhaseTimeout,
			})
		},
		Navigator:          term,
		Prompts:            flow.Prompts{Consent: term.Consent, Retake: term.Retake},
		ObserveResultFetch: m.ObserveResultFetch,
		Logger:             logger,
	}
	if searcher != nil {
		deps.Searcher = searcher
	}
	if cfg.Explain.Enabled {
		agent, err := explainer.NewAgent(ctx, explainer.AgentConfig{
			BaseURL: cfg.Explain.OllamaURL,
			Port:    cfg.Explain.Port,
			Model:   cfg.Explain.Model,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("Explanations disabled", "error", err)
		} else {
			deps.Explainer = explainer.New(explainer.AgentAsker(agent), logger, m.ObserveExplain)
		}
	}

	f, err := flow.New(deps, flow.Options{})
	if err != nil {
		return flow.Summary{}, err
	}
	return f.Run(ctx)
}

func newDevice(cfg config.Config, logger *slog.Logger) camera.Device {
	if cfg.Camera.Still != "" {
		return &camera.StillDevice{Path: cfg.Camera.Still}
	}
	return &camera.FFmpegDevice{
		Binary: cfg.Camera.FFmpeg,
		Format: cfg.Camera.Format,
		Input:  cfg.Camera.Input,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
		Logger: logger,
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) events.Publisher {
	if cfg.Redis.Addr == "" {
		return events.LogPublisher{Logger: logger}
	}
	pub, err := events.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, phase events go to the log", "addr", cfg.Redis.Addr, "error", err)
		return events.LogPublisher{Logger: logger}
	}
	return pub
}

// openJournal returns the configured journal and, for the database journal,
// the similar-result searcher
func openJournal(ctx context.Context, cfg config.Config, logger *slog.Logger, onDrop func()) (storage.Journal, *storage.PostgresJournal, error) {
	opts := storage.AsyncOptions{QueueSize: cfg.Journal.QueueSize, OnDrop: onDrop, Logger: logger}
	if cfg.Journal.DatabaseURL != "" {
		pg, err := storage.NewPostgresJournal(ctx, cfg.Journal.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewAsyncJournal(pg, opts), pg, nil
	}
	fj := storage.NewFileJournal(cfg.Journal.Path, cfg.Journal.BatchSize, logger)
	return storage.NewAsyncJournal(fj, opts), nil, nil
}

func printSummary(w io.Writer, s flow.Summary) {
	r := s.Result
	fmt.Fprintf(w, "\nScan %s\n", s.ScanID)
	fmt.Fprintf(w, "Estimated age:    %d (between %d and %d, %.0f%% confident)\n",
		r.ClassifiedAge, r.MinAge, r.MaxAge, r.ConfidenceAge*100)
	fmt.Fprintf(w, "Estimated gender: %s (%.0f%% confident)\n",
		explainer.GenderLabel(r.ClassifiedGender), r.ConfidenceGender*100)
	if len(s.Neighbors) > 0 {
		fmt.Fprintln(w, "Most similar reference hands:")
		for _, n := range s.Neighbors {
			fmt.Fprintf(w, "  %-8s age %-3d %-7s %s\n", n.ID, n.Age, explainer.GenderLabel(n.Gender), n.Region)
		}
	}
	if s.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", s.Explanation)
	}
	if len(s.Similar) > 0 {
		fmt.Fprintf(w, "\n%d earlier scans had a similar result.\n", len(s.Similar))
	}
	fmt.Fprintf(w, "\nTo correct or confirm this result: handscan confirm %s --age <age> --gender <female|male>\n", s.ScanID)
}
