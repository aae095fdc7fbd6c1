// Package scanrecord talks to the scan-record service, the GraphQL API that
// issues scan ids and returns classification results.
package scanrecord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bdougie/handscan/internal/models"
)

var (
	ErrNotFound  = errors.New("scan entry not found")
	ErrNoResult  = errors.New("scan result not available yet")
	ErrGraphQL   = errors.New("scan-record service returned errors")
	ErrMissingID = errors.New("scan id is required")
)

const defaultTimeout = 30 * time.Second

const entryFields = `id imageExists realAge realGender confirmed createdAt updatedAt`

const (
	createMutation = `mutation CreateScanEntry { createScanEntryModel { ` + entryFields + ` } }`
	updateMutation = `mutation UpdateScanEntry($id: ID!, $input: ScanEntryInput!) {
  updateScanEntryModel(id: $id, input: $input) { ` + entryFields + ` } }`
	deleteMutation = `mutation DeleteScanEntry($id: ID!) { deleteScanEntryModel(id: $id) }`
	entryQuery     = `query GetScanEntryModel($id: ID!) { getScanEntryModel(id: $id) { ` + entryFields + ` } }`
	entriesQuery   = `query GetScanEntryModels { getScanEntryModels { ` + entryFields + ` } }`
	resultQuery    = `query GetScanResult($id: ID!) {
  getScanResult(id: $id) {
    resultClassifier { id minAge maxAge classifiedAge classifiedGender confidenceAge confidenceGender }
    nearestNeighbourInfo { id gender age region }
  }
}`
)

// Result is the classification of a scan with the reference records it was compared to
type Result struct {
	Classification models.ScanResult         `json:"resultClassifier"`
	Neighbors      []models.NearestNeighbour `json:"nearestNeighbourInfo"`
}

// Observer is told about every request; used for metrics.
type Observer func(operation string, err error)

type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	observe    Observer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// NewClient creates a client for the GraphQL endpoint, e.g. http://localhost:8000/graphql
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateScanEntry starts a new scan and returns the entry holding its id
func (c *Client) CreateScanEntry(ctx context.Context) (models.ScanEntry, error) {
	var data struct {
		Entry models.ScanEntry `json:"createScanEntryModel"`
	}
	if err := c.do(ctx, "create", createMutation, nil, &data); err != nil {
		return models.ScanEntry{}, err
	}
	if data.Entry.ID == "" {
		return models.ScanEntry{}, fmt.Errorf("%w: created entry has no id", ErrGraphQL)
	}
	return data.Entry, nil
}

// UpdateScanEntry records the user's real age, gender and confirmation
func (c *Client) UpdateScanEntry(ctx context.Context, id string, input models.ScanEntryInput) (models.ScanEntry, error) {
	if id == "" {
		return models.ScanEntry{}, ErrMissingID
	}
	var data struct {
		Entry *models.ScanEntry `json:"updateScanEntryModel"`
	}
	vars := map[string]any{"id": id, "input": input}
	if err := c.do(ctx, "update", updateMutation, vars, &data); err != nil {
		return models.ScanEntry{}, err
	}
	if data.Entry == nil {
		return models.ScanEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *data.Entry, nil
}

// DeleteScanEntry withdraws a scan. Deleting an unknown id returns ErrNotFound.
func (c *Client) DeleteScanEntry(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	var data struct {
		Deleted bool `json:"deleteScanEntryModel"`
	}
	if err := c.do(ctx, "delete", deleteMutation, map[string]any{"id": id}, &data); err != nil {
		return err
	}
	if !data.Deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (c *Client) GetScanEntry(ctx context.Context, id string) (models.ScanEntry, error) {
	if id == "" {
		return models.ScanEntry{}, ErrMissingID
	}
	var data struct {
		Entry *models.ScanEntry `json:"getScanEntryModel"`
	}
	if err := c.do(ctx, "get_entry", entryQuery, map[string]any{"id": id}, &data); err != nil {
		return models.ScanEntry{}, err
	}
	if data.Entry == nil {
		return models.ScanEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *data.Entry, nil
}

func (c *Client) ListScanEntries(ctx context.Context) ([]models.ScanEntry, error) {
	var data struct {
		Entries []models.ScanEntry `json:"getScanEntryModels"`
	}
	if err := c.do(ctx, "list_entries", entriesQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.Entries, nil
}

// GetScanResult fetches the classification for a captured scan. ErrNoResult
// means the service has not produced one.
func (c *Client) GetScanResult(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, ErrMissingID
	}
	var data struct {
		Result *Result `json:"getScanResult"`
	}
	if err := c.do(ctx, "get_result", resultQuery, map[string]any{"id": id}, &data); err != nil {
		return Result{}, err
	}
	if data.Result == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoResult, id)
	}
	return *data.Result, nil
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, operation, query string, vars map[string]any, out any) (err error) {
	if c.observe != nil {
		defer func() { c.observe(operation, err) }()
	}

	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call scan-record service: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("Scan-record request", "operation", operation, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("scan-record service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var gql response
	if err := json.NewDecoder(resp.Body).Decode(&gql); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	if len(gql.Errors) > 0 {
		msgs := make([]string, 0, len(gql.Errors))
		for _, e := range gql.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return fmt.Errorf("%w: empty %s response", ErrGraphQL, operation)
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", operation, err)
	}
	return nil
}
