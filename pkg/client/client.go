// Package client provides a Go client for interacting with the Metridex API.
//
// It offers a type-safe way to perform all major operations, including:
//   - Discovering hosted queries and their input schemas.
//   - Running queries with offset/count pagination, for a single parameter
//     set or a batch of them.
//   - System administration tasks (index reloads, task polling, stats).
//
// The client handles HTTP communication, JSON serialization/deserialization, and
// standardized error handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yosida95/uritemplate/v3"
)

// --- Custom Errors ---

// APIError represents an error returned by the Metridex API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- Endpoint templates ---

var (
	queryJSONTemplate   = uritemplate.MustNew("/{slug}/json")
	querySchemaTemplate = uritemplate.MustNew("/{slug}/schema")
	reloadTemplate      = uritemplate.MustNew("/admin/reload/{slug}")
	taskTemplate        = uritemplate.MustNew("/admin/tasks/{id}")
)

func expand(tmpl *uritemplate.Template, name, value string) (string, error) {
	vals := uritemplate.Values{}
	vals.Set(name, uritemplate.String(value))
	endpoint, err := tmpl.Expand(vals)
	if err != nil {
		return "", fmt.Errorf("failed to expand endpoint template: %w", err)
	}
	return endpoint, nil
}

// --- JSON Response Structs ---

// Params is one set of input parameters for a query.
type Params map[string]string

// Record is one result row returned by a query.
type Record map[string]any

// QueryInfo models one entry of the query directory.
type QueryInfo struct {
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Introduction string   `json:"introduction,omitempty"`
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
	Links        struct {
		JSON   string `json:"json"`
		Schema string `json:"schema"`
	} `json:"links"`
}

// Task represents an asynchronous operation on the Metridex server.
type Task struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ProgressMessage string `json:"progress_message,omitempty"`
	Error           string `json:"error,omitempty"`

	client *Client // Reference to the client for polling.
}

// taskAccepted models the 202 response of a reload request.
type taskAccepted struct {
	TaskID string `json:"task_id"`
}

// --- Client ---

// Client is the Go client for interacting with Metridex.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a new Metridex client. The authToken may be empty when the
// server runs without admin authentication.
func New(host string, port int, authToken string) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// jsonRequest is a helper method to execute all requests to the API.
// It handles JSON serialization, HTTP calls, and error management.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}

// Refresh updates the task's status by querying the server.
func (t *Task) Refresh(ctx context.Context) error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updatedTask, err := t.client.TaskStatus(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Status = updatedTask.Status
	t.ProgressMessage = updatedTask.ProgressMessage
	t.Error = updatedTask.Error
	return nil
}

// Wait blocks until the task is completed, checking its status at regular intervals.
func (t *Task) Wait(ctx context.Context, interval, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timeout exceeded while waiting for task %s", t.ID)
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				return err
			}
			switch t.Status {
			case "completed":
				return nil
			case "failed":
				return fmt.Errorf("task %s failed with error: %s", t.ID, t.Error)
			case "running", "started":
				// Continue waiting.
			default:
				return fmt.Errorf("unknown task status: %s", t.Status)
			}
		}
	}
}

// --- Query Methods ---

// List returns the directory of all hosted queries.
func (c *Client) List(ctx context.Context) ([]QueryInfo, error) {
	respBody, err := c.jsonRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, err
	}
	var resp []QueryInfo
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON response for List: %w", err)
	}
	return resp, nil
}

// QueryOne runs a single fetch through the GET endpoint. The server applies
// its default page size; use Query for explicit pagination.
func (c *Client) QueryOne(ctx context.Context, slug string, params Params) ([]Record, error) {
	endpoint, err := expand(queryJSONTemplate, "slug", slug)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	respBody, err := c.jsonRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(respBody, &records); err != nil {
		return nil, fmt.Errorf("invalid JSON response for QueryOne: %w", err)
	}
	return records, nil
}

// Query runs a batch fetch through the POST endpoint. The same offset/count
// window applies to every parameter set and the records are concatenated in
// input order. A negative offset or count leaves the server defaults in place.
func (c *Client) Query(ctx context.Context, slug string, paramSets []Params, offset, count int) ([]Record, error) {
	endpoint, err := expand(queryJSONTemplate, "slug", slug)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	if offset >= 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	if count >= 0 {
		values.Set("count", strconv.Itoa(count))
	}
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	respBody, err := c.jsonRequest(ctx, http.MethodPost, endpoint, paramSets)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(respBody, &records); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Query: %w", err)
	}
	return records, nil
}

// InputSchema retrieves the JSON Schema for the inputs of a query.
func (c *Client) InputSchema(ctx context.Context, slug string) (map[string]any, error) {
	endpoint, err := expand(querySchemaTemplate, "slug", slug)
	if err != nil {
		return nil, err
	}

	respBody, err := c.jsonRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(respBody, &schema); err != nil {
		return nil, fmt.Errorf("invalid JSON response for InputSchema: %w", err)
	}
	return schema, nil
}

// --- Administration Methods ---

// Reload asks the server to rebuild the index of a query and returns a Task.
func (c *Client) Reload(ctx context.Context, slug string) (*Task, error) {
	endpoint, err := expand(reloadTemplate, "slug", slug)
	if err != nil {
		return nil, err
	}

	respBody, err := c.jsonRequest(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var accepted taskAccepted
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Reload: %w", err)
	}
	return &Task{ID: accepted.TaskID, Status: "started", client: c}, nil
}

// TaskStatus retrieves the status of a long-running task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*Task, error) {
	endpoint, err := expand(taskTemplate, "id", taskID)
	if err != nil {
		return nil, err
	}

	respBody, err := c.jsonRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(respBody, &task); err != nil {
		return nil, fmt.Errorf("invalid JSON response for TaskStatus: %w", err)
	}
	task.client = c
	return &task, nil
}

// Stats retrieves the index statistics of every query that exposes them.
func (c *Client) Stats(ctx context.Context) (map[string]map[string]any, error) {
	respBody, err := c.jsonRequest(ctx, http.MethodGet, "/admin/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats map[string]map[string]any
	if err := json.Unmarshal(respBody, &stats); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Stats: %w", err)
	}
	return stats, nil
}
