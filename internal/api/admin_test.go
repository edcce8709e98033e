package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"
	"taskboard/internal/pkg/queue"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	getByEmailFunc   func(ctx context.Context, email string) (*model.User, error)
	getByIDFunc      func(ctx context.Context, id uint) (*model.User, error)
	createUserFunc   func(ctx context.Context, user *model.User) error
	listUsersFunc    func(ctx context.Context) ([]model.User, error)
	updateStatusFunc func(ctx context.Context, id uint, status string) (*model.User, error)
	deleteUserFunc   func(ctx context.Context, id uint) (bool, error)

	createCalls int
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.getByEmailFunc(ctx, email)
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockUserStore) CreateUser(ctx context.Context, user *model.User) error {
	m.createCalls++
	return m.createUserFunc(ctx, user)
}

func (m *mockUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return m.listUsersFunc(ctx)
}

func (m *mockUserStore) UpdateUserStatus(ctx context.Context, id uint, status string) (*model.User, error) {
	return m.updateStatusFunc(ctx, id, status)
}

func (m *mockUserStore) DeleteUser(ctx context.Context, id uint) (bool, error) {
	return m.deleteUserFunc(ctx, id)
}

type mockPresence struct {
	online map[uint]bool
}

func (m mockPresence) IsOnline(ctx context.Context, userID uint) bool {
	return m.online[userID]
}

type mockNotifier struct {
	createdCalls   atomic.Int32
	activatedCalls atomic.Int32
}

func (m *mockNotifier) SendAccountCreated(ctx context.Context, toEmail, fullName string) error {
	m.createdCalls.Add(1)
	return nil
}

func (m *mockNotifier) SendAccountActivated(ctx context.Context, toEmail, fullName string) error {
	m.activatedCalls.Add(1)
	return nil
}

func newAdminTestServer(store *mockUserStore) *Server {
	metrics.InitMetrics()
	return &Server{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		users:    store,
		presence: mockPresence{},
	}
}

func adminRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	identity := func(c *gin.Context) {
		c.Set("userID", uint(1))
		c.Set("role", model.RoleAdmin)
		c.Next()
	}
	r.POST("/admin/users", identity, s.handleCreateUser)
	r.GET("/admin/users", identity, s.handleListUsers)
	r.PATCH("/admin/users/:userId", identity, s.handleUpdateUserStatus)
	r.DELETE("/admin/users/:userId", identity, s.handleDeleteUser)
	return r
}

func TestCreateUser_ActiveByDefault(t *testing.T) {
	var created *model.User
	store := &mockUserStore{
		getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) { return nil, nil },
		createUserFunc: func(ctx context.Context, user *model.User) error {
			created = user
			user.ID = 10
			return nil
		},
	}
	r := adminRouter(newAdminTestServer(store))

	payload, _ := json.Marshal(map[string]string{
		"fullName": "Jordan Lee",
		"email":    "jordan@example.com",
		"password": "s3cret",
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if created == nil {
		t.Fatal("expected create to be called")
	}
	if created.Status != model.StatusActive {
		t.Fatalf("admin-created user must be active, got %q", created.Status)
	}
	if created.Role != model.RoleUser {
		t.Fatalf("expected default role user, got %q", created.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("s3cret")); err != nil {
		t.Fatal("stored password must be a bcrypt hash of the input")
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	store := &mockUserStore{
		getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 2, Email: email}, nil
		},
		createUserFunc: func(ctx context.Context, user *model.User) error { return nil },
	}
	r := adminRouter(newAdminTestServer(store))

	payload, _ := json.Marshal(map[string]string{
		"fullName": "Jordan Lee",
		"email":    "jordan@example.com",
		"password": "s3cret",
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if store.createCalls != 0 {
		t.Fatal("store should not be called for duplicate email")
	}
}

func TestListUsers_ProjectionAndOnline(t *testing.T) {
	now := time.Now()
	store := &mockUserStore{
		listUsersFunc: func(ctx context.Context) ([]model.User, error) {
			return []model.User{
				{ID: 1, FullName: "Admin", Email: "admin@example.com", Role: model.RoleAdmin, Status: model.StatusActive, Password: "$2a$10$secret", CreatedAt: now},
				{ID: 2, FullName: "Jordan Lee", Email: "jordan@example.com", Role: model.RoleUser, Status: model.StatusInactive, Password: "$2a$10$secret", CreatedAt: now},
			}, nil
		},
	}
	s := newAdminTestServer(store)
	s.presence = mockPresence{online: map[uint]bool{1: true}}
	r := adminRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("secret")) {
		t.Fatal("user listing must not leak password hashes")
	}

	var users []userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if !users[0].Online || users[1].Online {
		t.Fatalf("unexpected online flags: %+v", users)
	}
}

func TestUpdateUserStatus_InvalidValue(t *testing.T) {
	store := &mockUserStore{
		updateStatusFunc: func(ctx context.Context, id uint, status string) (*model.User, error) {
			t.Fatal("store should not be called")
			return nil, nil
		},
	}
	r := adminRouter(newAdminTestServer(store))

	payload, _ := json.Marshal(map[string]string{"status": "Banned"})
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/2", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpdateUserStatus_NotFound(t *testing.T) {
	store := &mockUserStore{
		updateStatusFunc: func(ctx context.Context, id uint, status string) (*model.User, error) {
			return nil, nil
		},
	}
	r := adminRouter(newAdminTestServer(store))

	payload, _ := json.Marshal(map[string]string{"status": model.StatusActive})
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/99", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateUserStatus_ActivateQueuesNotification(t *testing.T) {
	store := &mockUserStore{
		updateStatusFunc: func(ctx context.Context, id uint, status string) (*model.User, error) {
			// 返回变更前的快照：激活前处于停用状态
			return &model.User{ID: id, FullName: "Jordan Lee", Email: "jordan@example.com", Status: model.StatusInactive}, nil
		},
	}
	s := newAdminTestServer(store)

	notifier := &mockNotifier{}
	s.notifier = notifier
	s.mailQueue = queue.NewQueue(s.logger, 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mailQueue.Start(ctx)

	r := adminRouter(s)

	payload, _ := json.Marshal(map[string]string{"status": model.StatusActive})
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/2", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("User active successfully")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	s.mailQueue.Shutdown()
	if notifier.activatedCalls.Load() != 1 {
		t.Fatalf("expected 1 activation mail, got %d", notifier.activatedCalls.Load())
	}
}

func TestUpdateUserStatus_DeactivateSendsNoMail(t *testing.T) {
	store := &mockUserStore{
		updateStatusFunc: func(ctx context.Context, id uint, status string) (*model.User, error) {
			return &model.User{ID: id, Email: "jordan@example.com", Status: model.StatusActive}, nil
		},
	}
	s := newAdminTestServer(store)

	notifier := &mockNotifier{}
	s.notifier = notifier
	s.mailQueue = queue.NewQueue(s.logger, 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mailQueue.Start(ctx)

	r := adminRouter(s)

	payload, _ := json.Marshal(map[string]string{"status": model.StatusInactive})
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/2", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("User inactive successfully")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	s.mailQueue.Shutdown()
	if notifier.activatedCalls.Load() != 0 {
		t.Fatal("deactivation must not send mail")
	}
}

// 账户已是 Active 时重复提交 Active 不应重发激活邮件。
func TestUpdateUserStatus_AlreadyActiveSendsNoMail(t *testing.T) {
	store := &mockUserStore{
		updateStatusFunc: func(ctx context.Context, id uint, status string) (*model.User, error) {
			return &model.User{ID: id, Email: "jordan@example.com", Status: model.StatusActive}, nil
		},
	}
	s := newAdminTestServer(store)

	notifier := &mockNotifier{}
	s.notifier = notifier
	s.mailQueue = queue.NewQueue(s.logger, 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mailQueue.Start(ctx)

	r := adminRouter(s)

	payload, _ := json.Marshal(map[string]string{"status": model.StatusActive})
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/2", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	s.mailQueue.Shutdown()
	if notifier.activatedCalls.Load() != 0 {
		t.Fatalf("no-op activation must not send mail, got %d", notifier.activatedCalls.Load())
	}
}

// 存在性预检通过但插入命中唯一索引（并发创建）时必须仍返回 409。
func TestCreateUser_DuplicateRace(t *testing.T) {
	store := &mockUserStore{
		getByEmailFunc: func(ctx context.Context, email string) (*model.User, error) { return nil, nil },
		createUserFunc: func(ctx context.Context, user *model.User) error { return model.ErrEmailTaken },
	}
	r := adminRouter(newAdminTestServer(store))

	payload, _ := json.Marshal(map[string]string{
		"fullName": "Jordan Lee",
		"email":    "jordan@example.com",
		"password": "s3cret",
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("User already exists")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestDeleteUser_NotFound(t *testing.T) {
	store := &mockUserStore{
		deleteUserFunc: func(ctx context.Context, id uint) (bool, error) { return false, nil },
	}
	r := adminRouter(newAdminTestServer(store))

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteUser_Success(t *testing.T) {
	store := &mockUserStore{
		deleteUserFunc: func(ctx context.Context, id uint) (bool, error) { return true, nil },
	}
	r := adminRouter(newAdminTestServer(store))

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("User deleted successfully")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
