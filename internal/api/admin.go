package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// createUserRequest 管理员创建用户的请求参数。
type createUserRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// userResponse 管理端用户列表的投影，绝不携带密码哈希。
type userResponse struct {
	ID        uint       `json:"id"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Online    bool       `json:"online"`
}

// handleCreateUser 管理员直接开通账户，初始状态即为 Active。
//
// POST /admin/users
func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "All fields are required"})
		return
	}

	existing, err := s.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		s.logger.Error("query user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error adding user"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"message": "User already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error adding user"})
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = model.RoleUser
	}

	user := model.User{
		FullName: req.FullName,
		Email:    req.Email,
		Password: string(hash),
		Role:     role,
		Status:   model.StatusActive,
	}
	if err := s.users.CreateUser(c.Request.Context(), &user); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"message": "User already exists"})
			return
		}
		s.logger.Error("create user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error adding user"})
		return
	}

	if metrics.UsersCreatedTotal != nil {
		metrics.UsersCreatedTotal.Inc()
	}
	s.logger.Info("user created by admin",
		slog.String("email", user.Email),
		slog.Uint64("admin_id", uint64(getUserID(c))))

	s.queueMail(func(ctx context.Context) error {
		return s.notifier.SendAccountCreated(ctx, user.Email, user.FullName)
	})

	c.JSON(http.StatusCreated, gin.H{"message": "User added"})
}

// handleListUsers 返回全部用户及其在线状态。
//
// GET /admin/users
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.users.ListUsers(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching users"})
		return
	}

	resp := []userResponse{}
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:        u.ID,
			FullName:  u.FullName,
			Email:     u.Email,
			Role:      u.Role,
			Status:    u.Status,
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
			Online:    s.presence.IsOnline(c.Request.Context(), u.ID),
		})
	}
	c.JSON(http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// handleUpdateUserStatus 启用或停用账户。
//
// PATCH /admin/users/:userId
func (s *Server) handleUpdateUserStatus(c *gin.Context) {
	userID, ok := parseUintParam(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Status != model.StatusActive && req.Status != model.StatusInactive {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid status value"})
		return
	}

	prev, err := s.users.UpdateUserStatus(c.Request.Context(), userID, req.Status)
	if err != nil {
		s.logger.Error("update user status failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error updating user"})
		return
	}
	if prev == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	// 只在真正从停用切换到启用时通知，重复提交 Active 不再发信
	if req.Status == model.StatusActive && prev.Status != model.StatusActive {
		email, name := prev.Email, prev.FullName
		s.queueMail(func(ctx context.Context) error {
			return s.notifier.SendAccountActivated(ctx, email, name)
		})
	}

	s.logger.Info("user status changed",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("status", req.Status))
	c.JSON(http.StatusOK, gin.H{"message": "User " + strings.ToLower(req.Status) + " successfully"})
}

// handleDeleteUser 删除账户，对应的任务保留（由任务级鉴权兜底）。
//
// DELETE /admin/users/:userId
func (s *Server) handleDeleteUser(c *gin.Context) {
	userID, ok := parseUintParam(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user ID"})
		return
	}

	deleted, err := s.users.DeleteUser(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("delete user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error deleting user"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	s.logger.Info("user deleted",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("admin_id", uint64(getUserID(c))))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
