// Package session holds the in-memory state shared by every step of a scan:
// the scan id, the captured image reference, and the classification results.
//
// A Store is created once per client run and passed by reference to each step.
// Each field has a single writer: the flow sets the scan id, the capture
// controller sets the captured image, and the processing step sets the
// classification and neighbors. Everyone else only reads.
package session

import (
	"errors"
	"slices"
	"sync"

	"github.com/bdougie/handscan/internal/models"
)

var (
	// ErrAlreadySet is returned when the captured image of the current scan
	// session has already been written.
	ErrAlreadySet = errors.New("captured image already set for this scan session")
	// ErrEmptyImageRef is returned when an empty image reference is written.
	ErrEmptyImageRef = errors.New("empty image reference")
)

// State is a copy of the store contents at one point in time
type State struct {
	ScanID         string                    `json:"scan_id,omitempty"`
	CapturedImage  string                    `json:"captured_image,omitempty"`
	Classification *models.ScanResult        `json:"classification,omitempty"`
	Neighbors      []models.NearestNeighbour `json:"neighbors,omitempty"`
}

// Store is the cross-step session state container
type Store struct {
	mu    sync.RWMutex
	state State
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// SetScanID starts a new scan session. Fields derived from a previous scan
// session are cleared when the id changes.
func (s *Store) SetScanID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.ScanID == id {
		return
	}
	s.state = State{ScanID: id}
}

func (s *Store) ScanID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ScanID
}

// SetCapturedImage records the captured image of the current scan session.
// It can be written at most once; writing the same reference again is a no-op.
func (s *Store) SetCapturedImage(ref string) error {
	if ref == "" {
		return ErrEmptyImageRef
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.CapturedImage {
	case "":
		s.state.CapturedImage = ref
		return nil
	case ref:
		return nil
	default:
		return ErrAlreadySet
	}
}

func (s *Store) CapturedImage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CapturedImage
}

func (s *Store) SetClassification(result models.ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Classification = &result
}

// Classification returns the classification result and whether one is set
func (s *Store) Classification() (models.ScanResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Classification == nil {
		return models.ScanResult{}, false
	}
	return *s.state.Classification, true
}

func (s *Store) SetNeighbors(neighbors []models.NearestNeighbour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Neighbors = slices.Clone(neighbors)
}

// Neighbors returns a copy of the neighbor list, nil when unset
func (s *Store) Neighbors() []models.NearestNeighbour {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Neighbors)
}

// Snapshot returns a copy of the whole state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := State{
		ScanID:        s.state.ScanID,
		CapturedImage: s.state.CapturedImage,
		Neighbors:     slices.Clone(s.state.Neighbors),
	}
	if s.state.Classification != nil {
		c := *s.state.Classification
		out.Classification = &c
	}
	return out
}
