package models

import "time"

// ScanEntry represents one user's scan session as issued by the scan-record service
type ScanEntry struct {
	ID          string    `json:"id"`
	ImageExists bool      `json:"imageExists"`
	RealAge     *int      `json:"realAge"`
	RealGender  *int      `json:"realGender"`
	Confirmed   bool      `json:"confirmed"`
	// timestamps are kept as sent; the service emits ISO-8601 without a zone
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ScanEntryInput carries the corrective fields of UpdateScanEntry
type ScanEntryInput struct {
	RealAge    *int  `json:"realAge,omitempty"`
	RealGender *int  `json:"realGender,omitempty"`
	Confirmed  *bool `json:"confirmed,omitempty"`
}

// ScanResult is the age and gender classification of a scan
type ScanResult struct {
	ID               string  `json:"id"`
	MinAge           int     `json:"minAge"`
	MaxAge           int     `json:"maxAge"`
	ClassifiedAge    int     `json:"classifiedAge"`
	ClassifiedGender int     `json:"classifiedGender"`
	ConfidenceAge    float64 `json:"confidenceAge"`
	ConfidenceGender float64 `json:"confidenceGender"`
}

// NearestNeighbour is a reference record the classifier compared against
type NearestNeighbour struct {
	ID     string `json:"id"`
	Gender int    `json:"gender"`
	Age    int    `json:"age"`
	Region string `json:"region"`
}

// Frame is one compressed still sampled from the camera
type Frame struct {
	Data   []byte
	Seq    int
	Width  int
	Height int
}

// CaptureRecord is the journal entry written when a capture attempt ends
type CaptureRecord struct {
	AttemptID  string    `json:"attempt_id"`
	ScanID     string    `json:"scan_id"`
	Outcome    string    `json:"outcome"`
	ImageRef   string    `json:"image_ref,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	FramesSent int       `json:"frames_sent"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`

	Classification *ScanResult `json:"classification,omitempty"`
	Explanation    string      `json:"explanation,omitempty"`
}

// ResultSearchHit is a previously journaled classification similar to a query result
type ResultSearchHit struct {
	ScanID     string
	Result     ScanResult
	Similarity float64
}
