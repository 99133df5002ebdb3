// Package client 是 supertodo HTTP API 的类型化 Go 客户端。
//
// 客户端不保存任何凭据，受保护接口的每次调用都显式传入令牌。
package client

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

	"supertodo/internal/pkg/optional"
)

// APIError 是非 2xx 响应解码后的错误。
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supertodo: %d %s: %s", e.Status, e.Code, e.Message)
}

// User 是用户公开信息。
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session 是注册或登录的结果。
type Session struct {
	User
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Task 是任务的对外表示。
type Task struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTask 创建任务的参数。Status 为空时服务端默认为 pending。
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// TaskUpdate 部分更新参数，只发送 Set 为 true 的字段。
type TaskUpdate struct {
	Title       optional.Field[string]
	Description optional.Field[string]
	Status      optional.Field[string]
	DueDate     optional.Field[time.Time]
}

// MarshalJSON 缺省字段不出现在请求体中，Null 字段输出 null。
func (u TaskUpdate) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if u.Title.Set {
		body["title"] = u.Title
	}
	if u.Description.Set {
		body["description"] = u.Description
	}
	if u.Status.Set {
		body["status"] = u.Status
	}
	if u.DueDate.Set {
		body["dueDate"] = u.DueDate
	}
	return json.Marshal(body)
}

// Client 访问 supertodo API。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端。httpClient 为 nil 时使用 10 秒超时的默认客户端。
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Register 注册新用户。
func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	var out Session
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login 使用邮箱与密码登录。
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile 返回令牌所属用户。
func (c *Client) Profile(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/profile", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout 通知服务端注销；调用方仍需自行丢弃令牌。
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil, nil)
}

// CreateTask 创建任务。
func (c *Client) CreateTask(ctx context.Context, token string, in NewTask) (*Task, error) {
	return c.CreateTaskWithKey(ctx, token, "", in)
}

// CreateTaskWithKey 携带 Idempotency-Key 创建任务，重放时返回首次创建的任务。
func (c *Client) CreateTaskWithKey(ctx context.Context, token, idempotencyKey string, in NewTask) (*Task, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var out Task
	if err := c.do(ctx, http.MethodPost, "/tasks", token, header, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks 列出任务。status 为空时不过滤。
func (c *Client) ListTasks(ctx context.Context, token, status string) ([]Task, error) {
	path := "/tasks"
	if status != "" {
		path += "?" + url.Values{"status": []string{status}}.Encode()
	}
	out := []Task{}
	if err := c.do(ctx, http.MethodGet, path, token, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTask 获取单个任务。
func (c *Client) GetTask(ctx context.Context, token, id string) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask 部分更新任务。
func (c *Client) UpdateTask(ctx context.Context, token, id string, update TaskUpdate) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), token, nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask 永久删除任务。
func (c *Client) DeleteTask(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), token, nil, nil, nil)
}

// ToggleTask 切换任务状态。
func (c *Client) ToggleTask(ctx context.Context, token, id string) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPatch, taskPath(id)+"/toggle", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health 检查服务健康状态。
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil, nil)
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path, token string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
