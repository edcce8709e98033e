package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// createTodoRequest 创建任务的请求参数。
//
// userId 省略时默认为调用者本人；管理员可以指定他人，
// 此时服务端记录 assignedBy。
type createTodoRequest struct {
	Title    string `json:"title"`
	UserID   uint   `json:"userId"`
	DueDate  string `json:"dueDate"`  // "2006-01-02" 或 RFC3339
	Priority string `json:"priority"` // low / medium / high，默认 medium
}

type updateTodoRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	DueDate   *string `json:"dueDate"`
	Priority  *string `json:"priority"`
}

type todoResponse struct {
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

func toTodoResponse(t model.Todo) todoResponse {
	return todoResponse{
		ID:          t.ID,
		Title:       t.Title,
		Completed:   t.Completed,
		UserID:      t.UserID,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
		AssignedBy:  t.AssignedBy,
	}
}

// canAccessUser 判断调用者能否操作属于 ownerID 的资源：
// 本人或管理员。这是服务端强制的所有权检查，不依赖客户端自觉。
func canAccessUser(c *gin.Context, ownerID uint) bool {
	return getUserID(c) == ownerID || getUserRole(c) == model.RoleAdmin
}

// handleListTodos 返回某个用户的全部任务。
//
// GET /todos/:userId
func (s *Server) handleListTodos(c *gin.Context) {
	userID, ok := parseUintParam(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user ID"})
		return
	}
	if !canAccessUser(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	todos, err := s.todos.ListTodos(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching todos"})
		return
	}

	resp := []todoResponse{} // Initialize as empty slice to ensure JSON is [] not null
	for _, t := range todos {
		resp = append(resp, toTodoResponse(t))
	}
	c.JSON(http.StatusOK, resp)
}

// handleCreateTodo 创建任务。
//
// POST /todos
func (s *Server) handleCreateTodo(c *gin.Context) {
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title is required"})
		return
	}

	caller := getUserID(c)
	owner := req.UserID
	if owner == 0 {
		owner = caller
	}
	if !canAccessUser(c, owner) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	priority := strings.ToLower(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !model.ValidPriority(priority) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid priority"})
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid due date"})
		return
	}

	todo := model.Todo{
		Title:    title,
		UserID:   owner,
		DueDate:  dueDate,
		Priority: priority,
	}
	// 管理员代他人创建时记录下发者
	if owner != caller {
		todo.AssignedBy = &caller
	}

	if err := s.todos.CreateTodo(c.Request.Context(), &todo); err != nil {
		s.logger.Error("create todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error adding todo"})
		return
	}

	if metrics.TodosCreatedTotal != nil {
		metrics.TodosCreatedTotal.Inc()
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Todo added"})
}

// handleUpdateTodo 部分更新任务，只应用请求中出现的字段。
//
// PATCH /todos/:id
func (s *Server) handleUpdateTodo(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid task ID"})
		return
	}

	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	todo, err := s.todos.GetTodoByID(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("load todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error updating todo"})
		return
	}
	if todo == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	if !canAccessUser(c, todo.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Title cannot be empty"})
			return
		}
		updates["title"] = title
	}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
		// completedAt 与 completed 同步维护
		if *req.Completed {
			updates["completed_at"] = time.Now()
		} else {
			updates["completed_at"] = nil
		}
	}
	if req.DueDate != nil {
		dueDate, err := parseDate(*req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid due date"})
			return
		}
		updates["due_date"] = dueDate
	}
	if req.Priority != nil {
		priority := strings.ToLower(strings.TrimSpace(*req.Priority))
		if !model.ValidPriority(priority) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid priority"})
			return
		}
		updates["priority"] = priority
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No updates provided"})
		return
	}

	if err := s.todos.UpdateTodo(c.Request.Context(), id, updates); err != nil {
		s.logger.Error("update todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error updating todo"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Todo updated"})
}

// handleDeleteTodo 删除任务。
//
// DELETE /todos/:id
func (s *Server) handleDeleteTodo(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid task ID"})
		return
	}

	todo, err := s.todos.GetTodoByID(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("load todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error deleting todo"})
		return
	}
	if todo == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	if !canAccessUser(c, todo.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	deleted, err := s.todos.DeleteTodo(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("delete todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error deleting todo"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// parseDate 解析日期字段，支持 "2006-01-02" 与 RFC3339，空串返回 nil。
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
