package clublinesdk

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

// Client is a minimal Clubline HTTP API client.
type Client struct {
	BaseURL     string
	ClubID      string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, clubID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ClubID:  clubID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	ClubID      string  `json:"club_id"`
	EquipmentID string  `json:"equipment_id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	DueAt       *string `json:"due_at,omitempty"`
}

// SubTask represents the API subtask model (partial).
type SubTask struct {
	ID                 string  `json:"id"`
	TaskID             string  `json:"task_id"`
	Title              string  `json:"title"`
	Difficulty         int     `json:"difficulty"`
	RequiresInspection bool    `json:"requires_inspection"`
	Status             string  `json:"status"`
	DoneBy             *string `json:"done_by,omitempty"`
	InspectedBy        *string `json:"inspected_by,omitempty"`
}

// Activity represents an audit-log row.
type Activity struct {
	ID        int64   `json:"id"`
	TaskID    string  `json:"task_id"`
	SubTaskID *string `json:"subtask_id,omitempty"`
	Type      string  `json:"type"`
	ActorID   string  `json:"actor_id"`
	Message   *string `json:"message,omitempty"`
	TS        string  `json:"ts"`
}

// TaskDetail bundles a task with its subtasks and progress.
type TaskDetail struct {
	Task     Task       `json:"task"`
	SubTasks []SubTask  `json:"subtasks"`
	Log      []Activity `json:"log,omitempty"`
	Progress float64    `json:"progress"`
}

// Purchase represents the API purchase model (partial).
type Purchase struct {
	ID          string `json:"id"`
	ClubID      string `json:"club_id"`
	Title       string `json:"title"`
	AmountCents int    `json:"amount_cents"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task against an equipment.
func (c *Client) CreateTask(ctx context.Context, equipmentID, title string) (Task, error) {
	body := map[string]any{
		"equipment_id": equipmentID,
		"title":        title,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.clubPath("tasks"), body, &resp)
	return resp, err
}

// GetTask fetches a task with subtasks, log and progress.
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskDetail, error) {
	var resp TaskDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/tasks/%s", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// ListTasks lists the tasks the caller may view.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.clubPath("tasks"), nil, &resp)
	return resp, err
}

// MarkSubTaskDone marks a subtask done, optionally on behalf of another user.
func (c *Client) MarkSubTaskDone(ctx context.Context, subTaskID, completedBy string) (SubTask, error) {
	body := map[string]any{}
	if completedBy != "" {
		body["completed_by"] = completedBy
	}
	var resp SubTask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/subtasks/%s/done", url.PathEscape(subTaskID)), body, &resp)
	return resp, err
}

// CloseTask closes a task.
func (c *Client) CloseTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/close", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// Comment appends a comment to a task's log.
func (c *Client) Comment(ctx context.Context, taskID, message string) ([]Activity, error) {
	body := map[string]any{"message": message}
	var resp []Activity
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/comments", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// TaskLog returns the activity log of a task.
func (c *Client) TaskLog(ctx context.Context, taskID string) ([]Activity, error) {
	var resp []Activity
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/tasks/%s/log", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// CreatePurchase opens a purchase request.
func (c *Client) CreatePurchase(ctx context.Context, title string, amountCents int) (Purchase, error) {
	body := map[string]any{
		"title":        title,
		"amount_cents": amountCents,
	}
	var resp Purchase
	err := c.do(ctx, http.MethodPost, c.clubPath("purchases"), body, &resp)
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

func (c *Client) clubPath(p string) string {
	club := url.PathEscape(c.ClubID)
	return fmt.Sprintf("v0/clubs/%s/%s", club, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
