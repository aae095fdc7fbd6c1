// Package explainer turns a classification into a short plain-language
// explanation using a local vision model.
package explainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bdougie/handscan/internal/models"
)

var ErrEmptyExplanation = errors.New("model returned an empty explanation")

// Asker sends one prompt, with an optional local image, and returns the reply
type Asker func(ctx context.Context, prompt, imagePath string) (string, error)

type Explainer struct {
	ask     Asker
	logger  *slog.Logger
	observe func(start time.Time)
}

func New(ask Asker, logger *slog.Logger, observe func(start time.Time)) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{ask: ask, logger: logger, observe: observe}
}

// Explain describes result for the scanned person. imageRef is attached when
// it names a readable local file.
func (e *Explainer) Explain(ctx context.Context, result models.ScanResult, neighbors []models.NearestNeighbour, imageRef string) (string, error) {
	start := time.Now()
	if e.observe != nil {
		defer e.observe(start)
	}

	imagePath := ""
	if imageRef != "" {
		if info, err := os.Stat(imageRef); err == nil && !info.IsDir() {
			imagePath = imageRef
		}
	}

	reply, err := e.ask(ctx, Prompt(result, neighbors), imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to explain result: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyExplanation
	}
	e.logger.Debug("Result explained", "result_id", result.ID, "duration", time.Since(start), "with_image", imagePath != "")
	return reply, nil
}

// Prompt renders the classification as model input
func Prompt(r models.ScanResult, neighbors []models.NearestNeighbour) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Estimated age: %d (range %d to %d, confidence %.0f%%).\n",
		r.ClassifiedAge, r.MinAge, r.MaxAge, r.ConfidenceAge*100)
	fmt.Fprintf(&b, "Estimated gender: %s (confidence %.0f%%).\n",
		GenderLabel(r.ClassifiedGender), r.ConfidenceGender*100)
	if len(neighbors) > 0 {
		fmt.Fprintf(&b, "The %d most similar reference hands:\n", len(neighbors))
		for _, n := range neighbors {
			fmt.Fprintf(&b, "- age %d, %s, region %s\n", n.Age, GenderLabel(n.Gender), n.Region)
		}
	}
	b.WriteString("Explain this result.")
	return b.String()
}

// GenderLabel maps the classifier's gender code to text
func GenderLabel(code int) string {
	switch code {
	case 0:
		return "female"
	case 1:
		return "male"
	default:
		return "unknown"
	}
}
