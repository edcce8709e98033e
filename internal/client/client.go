package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError 携带服务端返回的状态码与 message 字段。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Client 是服务端 HTTP API 的 Go 客户端。
//
// 它持有一个 Session：登录成功后自动建立登录态，
// 之后的请求都会带上 Bearer 令牌。
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
}

// NewClient 创建客户端。httpClient 为 nil 时使用 10 秒超时的默认客户端。
func NewClient(baseURL string, session *Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if session == nil {
		session = NewSession("")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		session:    session,
	}
}

// Session 返回客户端绑定的会话。
func (c *Client) Session() *Session {
	return c.session
}

// do 发送 JSON 请求并将响应体解码到 out（可为 nil）。
// 非 2xx 响应转换为 *APIError。
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &envelope)
		if envelope.Message == "" {
			envelope.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Signup 注册新账户。注册成功不会自动登录。
func (c *Client) Signup(ctx context.Context, fullName, email, password string) error {
	body := map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	}
	return c.do(ctx, http.MethodPost, "/signup", body, nil)
}

// Login 登录并建立会话。remember 为 true 时持久化邮箱。
func (c *Client) Login(ctx context.Context, email, password string, remember bool) (*Identity, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Message string   `json:"message"`
		User    Identity `json:"user"`
		Token   string   `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", body, &resp); err != nil {
		return nil, err
	}

	c.session.Authenticate(resp.User, resp.Token)
	if remember {
		if err := c.session.RememberEmail(email); err != nil {
			return nil, err
		}
	} else {
		if err := c.session.RememberEmail(""); err != nil {
			return nil, err
		}
	}
	id := resp.User
	return &id, nil
}

// Logout 清除本地会话。服务端令牌无状态，到期自然失效。
func (c *Client) Logout() {
	c.session.Logout()
}

// Todo 是任务在客户端的表示。
type Todo struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	UserID      uint       `json:"userId"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	AssignedBy  *uint      `json:"assignedBy,omitempty"`
}

// ListTodos 拉取某个用户的全部任务。
func (c *Client) ListTodos(ctx context.Context, userID uint) ([]Todo, error) {
	var todos []Todo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/todos/%d", userID), nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// CreateTodoInput 创建任务的可选参数。
type CreateTodoInput struct {
	Title    string `json:"title"`
	UserID   uint   `json:"userId,omitempty"`
	DueDate  string `json:"dueDate,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// CreateTodo 创建任务。
func (c *Client) CreateTodo(ctx context.Context, in CreateTodoInput) error {
	return c.do(ctx, http.MethodPost, "/todos", in, nil)
}

// UpdateTodo 部分更新任务，updates 中出现的字段才会被修改。
func (c *Client) UpdateTodo(ctx context.Context, id uint, updates map[string]interface{}) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/todos/%d", id), updates, nil)
}

// SetCompleted 切换任务完成状态。
func (c *Client) SetCompleted(ctx context.Context, id uint, completed bool) error {
	return c.UpdateTodo(ctx, id, map[string]interface{}{"completed": completed})
}

// DeleteTodo 删除任务。
func (c *Client) DeleteTodo(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/todos/%d", id), nil, nil)
}

// MarkAllComplete 将一批任务逐个标记为完成。
//
// 服务端没有批量端点，这里按顺序独立提交；遇到第一个错误即返回，
// 已提交的更新不会回滚。
func (c *Client) MarkAllComplete(ctx context.Context, ids []uint) error {
	for _, id := range ids {
		if err := c.SetCompleted(ctx, id, true); err != nil {
			return fmt.Errorf("mark todo %d complete: %w", id, err)
		}
	}
	return nil
}

// User 是管理端看到的用户投影。
type User struct {
	ID        uint       `json:"id"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Online    bool       `json:"online"`
}

// CreateUser 管理员创建账户。
func (c *Client) CreateUser(ctx context.Context, fullName, email, password, role string) error {
	body := map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	}
	if role != "" {
		body["role"] = role
	}
	return c.do(ctx, http.MethodPost, "/admin/users", body, nil)
}

// ListUsers 拉取全部用户。
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserStatus 启用或停用账户。
func (c *Client) SetUserStatus(ctx context.Context, userID uint, status string) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/users/%d", userID), map[string]string{"status": status}, nil)
}

// DeleteUser 删除账户。
func (c *Client) DeleteUser(ctx context.Context, userID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/users/%d", userID), nil, nil)
}
