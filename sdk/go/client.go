package tasklinesdk

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

// Client is a minimal Taskline HTTP API client. Call Login (or set
// AccessToken directly) before authenticated requests.
type Client struct {
	BaseURL      string
	AccessToken  string
	RefreshToken string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API account model (partial).
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Project represents the API project model (partial).
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Progress int    `json:"progress"`
	OwnerID  string `json:"owner_id"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id,omitempty"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Completed   bool     `json:"completed"`
	AssigneeIDs []string `json:"assignee_ids"`
}

// TimeEntry represents a tracked time span.
type TimeEntry struct {
	ID              string  `json:"id"`
	TaskID          string  `json:"task_id,omitempty"`
	ProjectID       string  `json:"project_id,omitempty"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time,omitempty"`
	DurationMinutes int     `json:"duration_minutes"`
	IsActive        bool    `json:"is_active"`
	Billable        bool    `json:"billable"`
}

// Tokens is the auth response payload.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Paginated wraps cursor list responses.
type Paginated[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Login authenticates and stores the returned tokens on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Tokens, error) {
	var resp Tokens
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err == nil {
		c.AccessToken = resp.AccessToken
		c.RefreshToken = resp.RefreshToken
	}
	return resp, err
}

// Refresh exchanges the stored refresh token for fresh tokens.
func (c *Client) Refresh(ctx context.Context) (Tokens, error) {
	var resp Tokens
	err := c.do(ctx, http.MethodPost, "auth/refresh", map[string]any{
		"refresh_token": c.RefreshToken,
	}, &resp)
	if err == nil {
		c.AccessToken = resp.AccessToken
		c.RefreshToken = resp.RefreshToken
	}
	return resp, err
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "auth/me", nil, &resp)
	return resp, err
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", map[string]any{
		"name":        name,
		"description": description,
	}, &resp)
	return resp, err
}

// Projects returns a page of visible projects.
func (c *Client) Projects(ctx context.Context, limit int, cursor string) (Paginated[Project], error) {
	var resp Paginated[Project]
	err := c.do(ctx, http.MethodGet, listPath("projects", limit, cursor), nil, &resp)
	return resp, err
}

// CreateTask creates a task, optionally bound to a project.
func (c *Client) CreateTask(ctx context.Context, title, projectID string) (Task, error) {
	body := map[string]any{"title": title}
	if projectID != "" {
		body["project_id"] = projectID
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// Tasks returns a page of visible tasks.
func (c *Client) Tasks(ctx context.Context, limit int, cursor string) (Paginated[Task], error) {
	var resp Paginated[Task]
	err := c.do(ctx, http.MethodGet, listPath("tasks", limit, cursor), nil, &resp)
	return resp, err
}

// SetTaskStatus moves a task to the given status.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/status", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// AddComment comments on a visible task.
func (c *Client) AddComment(ctx context.Context, taskID, body string) error {
	endpoint := fmt.Sprintf("tasks/%s/comments", url.PathEscape(taskID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": body}, nil)
}

// StartTimer starts a time entry, stopping any running one.
func (c *Client) StartTimer(ctx context.Context, taskID, description string) (TimeEntry, error) {
	body := map[string]any{"description": description}
	if taskID != "" {
		body["task_id"] = taskID
	}
	var resp TimeEntry
	err := c.do(ctx, http.MethodPost, "time/start", body, &resp)
	return resp, err
}

// StopTimer stops a running time entry.
func (c *Client) StopTimer(ctx context.Context, entryID string) (TimeEntry, error) {
	var resp TimeEntry
	endpoint := fmt.Sprintf("time/%s/stop", url.PathEscape(entryID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func listPath(resource string, limit int, cursor string) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return resource
	}
	return resource + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
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
