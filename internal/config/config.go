// Package config loads handscan settings: built-in defaults, then an optional
// YAML file, then HANDSCAN_* environment variables. Command line flags are
// applied last by the cli package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// AnalyzerURL is the base of the websocket endpoint, {base}/ws/{scanID}.
	AnalyzerURL string  `yaml:"analyzer_url"`
	RecordURL   string  `yaml:"record_url"`
	Camera      Camera  `yaml:"camera"`
	Capture     Capture `yaml:"capture"`
	StatusAddr  string  `yaml:"status_addr"`
	Redis       Redis   `yaml:"redis"`
	Journal     Journal `yaml:"journal"`
	Explain     Explain `yaml:"explain"`
	Verbose     bool    `yaml:"verbose"`
}

type Camera struct {
	FFmpeg string `yaml:"ffmpeg"`
	Format string `yaml:"format"`
	Input  string `yaml:"input"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	// Still replaces the live camera with a single image file.
	Still string `yaml:"still"`
}

type Capture struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	MaxFrameWidth  int           `yaml:"max_frame_width"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	SuccessDelay   time.Duration `yaml:"success_delay"`
	PhaseTimeout   time.Duration `yaml:"phase_timeout"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Journal struct {
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	BatchSize   int    `yaml:"batch_size"`
	QueueSize   int    `yaml:"queue_size"`
}

type Explain struct {
	Enabled   bool   `yaml:"enabled"`
	OllamaURL string `yaml:"ollama_url"`
	Port      int    `yaml:"port"`
	Model     string `yaml:"model"`
}

func Default() Config {
	return Config{
		AnalyzerURL: "http://localhost:8000",
		RecordURL:   "http://localhost:8000/graphql",
		Camera: Camera{
			FFmpeg: "ffmpeg",
			Format: defaultCameraFormat(),
			Input:  defaultCameraInput(),
			Width:  640,
			Height: 480,
			FPS:    15,
		},
		Capture: Capture{
			SampleInterval: 333 * time.Millisecond,
			MaxFrameWidth:  640,
			JPEGQuality:    85,
			SuccessDelay:   time.Second,
		},
		StatusAddr: ":9090",
		Journal: Journal{
			Path:      "handscan-journal.json",
			BatchSize: 10,
			QueueSize: 64,
		},
		Explain: Explain{
			OllamaURL: "http://localhost",
			Port:      11434,
			Model:     "llama3.2-vision:11b",
		},
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config '%s': %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("HANDSCAN_ANALYZER_URL", &c.AnalyzerURL)
	str("HANDSCAN_RECORD_URL", &c.RecordURL)
	str("HANDSCAN_FFMPEG", &c.Camera.FFmpeg)
	str("HANDSCAN_CAMERA_FORMAT", &c.Camera.Format)
	str("HANDSCAN_CAMERA_INPUT", &c.Camera.Input)
	str("HANDSCAN_STILL_IMAGE", &c.Camera.Still)
	dur("HANDSCAN_SAMPLE_INTERVAL", &c.Capture.SampleInterval)
	dur("HANDSCAN_PHASE_TIMEOUT", &c.Capture.PhaseTimeout)
	num("HANDSCAN_MAX_FRAME_WIDTH", &c.Capture.MaxFrameWidth)
	str("HANDSCAN_STATUS_ADDR", &c.StatusAddr)
	str("HANDSCAN_REDIS_ADDR", &c.Redis.Addr)
	str("HANDSCAN_REDIS_PASSWORD", &c.Redis.Password)
	num("HANDSCAN_REDIS_DB", &c.Redis.DB)
	str("HANDSCAN_JOURNAL_PATH", &c.Journal.Path)
	str("HANDSCAN_DATABASE_URL", &c.Journal.DatabaseURL)
	flag("HANDSCAN_EXPLAIN", &c.Explain.Enabled)
	str("HANDSCAN_OLLAMA_URL", &c.Explain.OllamaURL)
	num("HANDSCAN_OLLAMA_PORT", &c.Explain.Port)
	str("HANDSCAN_OLLAMA_MODEL", &c.Explain.Model)
	flag("HANDSCAN_VERBOSE", &c.Verbose)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate checks the settings every command needs
func (c Config) Validate() error {
	if c.AnalyzerURL == "" {
		return fmt.Errorf("%w: analyzer_url is required", ErrInvalid)
	}
	if c.RecordURL == "" {
		return fmt.Errorf("%w: record_url is required", ErrInvalid)
	}
	if c.Capture.PhaseTimeout < 0 {
		return fmt.Errorf("%w: phase_timeout must not be negative", ErrInvalid)
	}
	if c.Journal.BatchSize <= 0 {
		return fmt.Errorf("%w: journal batch_size must be positive", ErrInvalid)
	}
	return nil
}
