package pulseboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pulseboard HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Detection is one classifier rule firing on a message.
type Detection struct {
	Text        string `json:"text"`
	FullMessage string `json:"full_message"`
	Severity    string `json:"severity,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Keyword     string `json:"keyword"`
	DetectedAt  string `json:"detected_at"`
}

// Analysis is the structured classification of a message.
type Analysis struct {
	Blockers  []Detection `json:"blockers"`
	Decisions []Detection `json:"decisions"`
	Actions   []Detection `json:"actions"`
	Risks     []Detection `json:"risks"`
	Metadata  struct {
		AnalyzedAt       string `json:"analyzed_at"`
		ProcessingTimeMs int64  `json:"processing_time_ms"`
		Confidence       int    `json:"confidence"`
		TotalDetections  int    `json:"total_detections"`
		Username         string `json:"username,omitempty"`
		Timestamp        string `json:"timestamp,omitempty"`
	} `json:"metadata"`
}

// Message is a stored chat message with its analysis.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	CreatedAt string    `json:"created_at"`
}

// Task is an API task model.
type Task struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Progress  int     `json:"progress"`
	Assignee  string  `json:"assignee,omitempty"`
	Deadline  *string `json:"deadline,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Contribution is a per-member analytics record.
type Contribution struct {
	MemberID       string  `json:"member_id"`
	Name           string  `json:"name"`
	TasksCompleted int     `json:"tasks_completed"`
	ImpactScore    int     `json:"impact_score"`
	TotalHours     float64 `json:"total_hours"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

// HealthReport is the weighted project health summary.
type HealthReport struct {
	Score           int            `json:"score"`
	Status          string         `json:"status"`
	Message         string         `json:"message"`
	Color           string         `json:"color"`
	Trend           string         `json:"trend"`
	Details         map[string]int `json:"details"`
	Recommendations []struct {
		Priority string `json:"priority"`
		Category string `json:"category"`
		Action   string `json:"action"`
		Impact   string `json:"impact"`
	} `json:"recommendations"`
	CalculatedAt string `json:"calculated_at"`
}

// NextStep is a next-step suggestion.
type NextStep struct {
	Next       string `json:"next"`
	Who        string `json:"who"`
	Time       string `json:"time"`
	Why        string `json:"why"`
	Confidence int    `json:"confidence"`
	Source     string `json:"source"`
	Cached     bool   `json:"cached"`
}

// Event is a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedMessages wraps message listings with a cursor.
type PaginatedMessages struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// Classify runs the classifier over text without storing it.
func (c *Client) Classify(ctx context.Context, text, username string) (Analysis, error) {
	body := map[string]any{"text": text, "username": username}
	var resp Analysis
	err := c.do(ctx, http.MethodPost, "v0/classify", body, &resp)
	return resp, err
}

// PostMessage stores a message; the server classifies it on write.
func (c *Client) PostMessage(ctx context.Context, username, content string) (Message, error) {
	body := map[string]any{"username": username, "content": content}
	var resp Message
	err := c.do(ctx, http.MethodPost, "v0/messages", body, &resp)
	return resp, err
}

// Messages returns a page of messages, newest first.
func (c *Client) Messages(ctx context.Context, limit int, cursor string) (PaginatedMessages, error) {
	endpoint := "v0/messages"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedMessages
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, status string) (Task, error) {
	body := map[string]any{"title": title}
	if status != "" {
		body["status"] = status
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// UpdateTask applies a partial update; nil-valued keys are omitted.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]any) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, fields, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "v0/tasks"
	if status != "" {
		endpoint = fmt.Sprintf("%s?status=%s", endpoint, url.QueryEscape(status))
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetContribution upserts a member contribution record.
func (c *Client) SetContribution(ctx context.Context, memberID string, contribution Contribution) (Contribution, error) {
	var resp Contribution
	endpoint := fmt.Sprintf("v0/contributions/%s", url.PathEscape(memberID))
	err := c.do(ctx, http.MethodPut, endpoint, contribution, &resp)
	return resp, err
}

// Health fetches the computed project health report.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var resp HealthReport
	err := c.do(ctx, http.MethodGet, "v0/health", nil, &resp)
	return resp, err
}

// NextStep asks for a next-step suggestion.
func (c *Client) NextStep(ctx context.Context, taskTitle string, progress int) (NextStep, error) {
	body := map[string]any{"task_title": taskTitle, "progress": progress}
	var resp NextStep
	err := c.do(ctx, http.MethodPost, "v0/next-step", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
