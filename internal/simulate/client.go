package simulate

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
)

// APIError is a non-2xx response from the study API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the study API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health returns nil when GET /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	var out types.HealthResponse
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, &out)
}

// CreateParticipant registers a participant and returns its id.
func (c *Client) CreateParticipant(ctx context.Context) (int64, error) {
	var out types.CreateParticipantResponse
	if err := c.do(ctx, http.MethodPost, "/api/create_participant", "", nil, &out); err != nil {
		return 0, err
	}
	return out.ParticipantID, nil
}

// SaveEvents posts one task's keystrokes.
func (c *Client) SaveEvents(ctx context.Context, key string, participantID int64, task string, ks []Keystroke) (types.SaveEventsResponse, error) {
	events := make([]model.EventRecord, len(ks))
	for i, k := range ks {
		events[i] = k.Record()
	}
	req := types.SaveEventsRequest{ParticipantID: &participantID, TaskType: &task, Events: events}

	var out types.SaveEventsResponse
	err := c.do(ctx, http.MethodPost, "/api/save_events", key, req, &out)
	return out, err
}

// SaveFeatures posts one feature set.
func (c *Client) SaveFeatures(ctx context.Context, key string, participantID int64, condition string, f model.Features) (types.SaveFeaturesResponse, error) {
	rec := model.NewFeatureRecord(f)
	req := types.SaveFeaturesRequest{ParticipantID: &participantID, Condition: &condition, Features: &rec}

	var out types.SaveFeaturesResponse
	err := c.do(ctx, http.MethodPost, "/api/save_features", key, req, &out)
	return out, err
}

// ExportRows downloads the CSV export and returns its data rows.
func (c *Client) ExportRows(ctx context.Context) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/export_csv", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("export has no header")
	}
	return records[1:], nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(types.IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var env types.ErrorResponse
	if json.Unmarshal(body, &env) == nil && env.Code != "" {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	}
	return apiErr
}
