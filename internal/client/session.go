package client

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"taskboard/internal/model"
)

var (
	// ErrLoginRequired 表示访问受保护视图前必须先登录。
	ErrLoginRequired = errors.New("login required")
	// ErrForbidden 表示当前身份无权访问目标视图。
	ErrForbidden = errors.New("forbidden")
)

// View 是客户端的受保护视图标识。
type View string

const (
	ViewTasks View = "tasks"
	ViewAdmin View = "admin"
)

// Identity 是登录后服务端下发的身份投影。
type Identity struct {
	ID       uint   `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session 维护客户端的认证状态：匿名或已登录。
//
// 登录态由身份投影和 JWT 组成，两者同时建立、同时清除。
// 所有方法可并发调用。
type Session struct {
	mu       sync.RWMutex
	identity *Identity
	token    string

	rememberPath string
}

// NewSession 创建匿名会话。
// rememberPath 指定记住邮箱的持久化文件，为空则不持久化。
func NewSession(rememberPath string) *Session {
	return &Session{rememberPath: rememberPath}
}

// Authenticate 将会话切换到登录态。
func (s *Session) Authenticate(identity Identity, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := identity
	s.identity = &id
	s.token = token
}

// Logout 清除身份与令牌，会话回到匿名态。
// 记住的邮箱不受影响。
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.token = ""
}

// Identity 返回当前身份的副本，匿名时返回 nil。
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Token 返回当前 JWT，匿名时为空串。
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated 报告会话是否处于登录态。
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// IsAdmin 报告当前身份是否为管理员。
func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.identity.Role == model.RoleAdmin
}

// Guard 检查当前会话能否进入指定视图。
//
// 未登录返回 ErrLoginRequired；登录但角色不够（如普通用户访问
// 管理视图）返回 ErrForbidden。注意这只是客户端的导航拦截，
// 服务端对每个请求独立鉴权。
func (s *Session) Guard(view View) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ErrLoginRequired
	}
	if view == ViewAdmin && s.identity.Role != model.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

type rememberFile struct {
	Email string `json:"email"`
}

// RememberEmail 持久化登录邮箱，供下次登录预填。
// email 为空时清除已记住的值。
func (s *Session) RememberEmail(email string) error {
	if s.rememberPath == "" {
		return nil
	}
	if email == "" {
		err := os.Remove(s.rememberPath)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := json.Marshal(rememberFile{Email: email})
	if err != nil {
		return err
	}
	return os.WriteFile(s.rememberPath, data, 0o600)
}

// RememberedEmail 读取上次记住的邮箱，没有时返回空串。
func (s *Session) RememberedEmail() string {
	if s.rememberPath == "" {
		return ""
	}
	data, err := os.ReadFile(s.rememberPath)
	if err != nil {
		return ""
	}
	var f rememberFile
	if err := json.Unmarshal(data, &f); err != nil {
		return ""
	}
	return f.Email
}
