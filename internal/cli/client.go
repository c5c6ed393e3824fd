package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ScheduleResponse — состояние schedule из API.
type ScheduleResponse struct {
	Name             string `json:"name"`
	InstanceID       string `json:"instance_id"`
	Active           bool   `json:"active"`
	LeaseHolder      string `json:"lease_holder,omitempty"`
	LastAlive        string `json:"last_alive,omitempty"`
	Executions       int    `json:"executions"`
	Jobs             int    `json:"jobs"`
	StartedJobs      int    `json:"started_jobs"`
	UnexpectedErrors int    `json:"unexpected_errors"`
}

// JobResult — результат выполнения job.
type JobResult struct {
	Status        string `json:"status"`
	HandlerResult string `json:"handler_result,omitempty"`
}

// JobResponse — job из API.
type JobResponse struct {
	Name          string         `json:"name"`
	Schedule      string         `json:"schedule"`
	Concurrency   int            `json:"concurrency"`
	MaxRunning    int            `json:"max_running"`
	Timeout       string         `json:"timeout,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Started       bool           `json:"started"`
	Running       int            `json:"running"`
	NextExecution string         `json:"next_execution,omitempty"`
	UpcomingRuns  []string       `json:"upcoming_runs,omitempty"`
	LastStarted   string         `json:"last_started,omitempty"`
	LastFinished  string         `json:"last_finished,omitempty"`
	LastResult    *JobResult     `json:"last_result,omitempty"`
}

// RunJobResponse — результат ручного запуска.
type RunJobResponse struct {
	Status        string `json:"status,omitempty"`
	HandlerResult string `json:"handler_result,omitempty"`
	Scheduled     bool   `json:"scheduled,omitempty"`
	Delay         string `json:"delay,omitempty"`
}

// --- Request types ---

// RunJobRequest — ручной запуск job.
type RunJobRequest struct {
	Parameters map[string]any `json:"parameters,omitempty"`
	Delay      string         `json:"delay,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для API momo-scheduler.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Schedule ---

// GetSchedule возвращает состояние schedule.
func (c *Client) GetSchedule() (*ScheduleResponse, error) {
	var s ScheduleResponse
	err := c.get("/api/v1/schedule", &s)
	return &s, err
}

// --- Jobs ---

// ListJobs возвращает все jobs.
func (c *Client) ListJobs() ([]JobResponse, error) {
	var jobs []JobResponse
	err := c.list("/api/v1/jobs", nil, &jobs)
	return jobs, err
}

// GetJob возвращает job по имени.
func (c *Client) GetJob(name string) (*JobResponse, error) {
	var job JobResponse
	err := c.get(jobPath(name), &job)
	return &job, err
}

// RunJob запускает job вручную.
func (c *Client) RunJob(name string, req RunJobRequest) (*RunJobResponse, error) {
	var result RunJobResponse
	err := c.post(jobPath(name)+"/run", req, &result)
	return &result, err
}

// StartJob взводит таймер job.
func (c *Client) StartJob(name string) error {
	return c.post(jobPath(name)+"/start", nil, nil)
}

// StopJob снимает таймер job.
func (c *Client) StopJob(name string) error {
	return c.post(jobPath(name)+"/stop", nil, nil)
}

// RemoveJob удаляет job.
func (c *Client) RemoveJob(name string) error {
	return c.delete(jobPath(name))
}

func jobPath(name string) string {
	return "/api/v1/jobs/" + url.PathEscape(name)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
