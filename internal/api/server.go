package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"taskboard/internal/api/auth"
	"taskboard/internal/api/middleware"
	"taskboard/internal/config"
	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"
	"taskboard/internal/pkg/notify"
	"taskboard/internal/pkg/queue"
	"taskboard/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、路由引擎以及邮件派发队列。
// 所有连接在 NewServer 中建立一次，进程生命周期内共享，
// 由 Close 统一释放——没有包级单例。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	users     UserStore
	todos     TodoStore
	presence  Presence
	notifier  notify.Notifier
	mailQueue *queue.Queue
}

// UserStore 用户集合的存储接口。
type UserStore interface {
	// GetUserByEmail 按邮箱精确匹配查找，不存在时返回 (nil, nil)。
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uint) (*model.User, error)
	// CreateUser 邮箱冲突时返回 model.ErrEmailTaken。
	CreateUser(ctx context.Context, user *model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)
	// UpdateUserStatus 更新账户状态，返回变更前的用户快照；
	// 用户不存在时返回 (nil, nil)。
	UpdateUserStatus(ctx context.Context, id uint, status string) (*model.User, error)
	// DeleteUser 返回是否真的删除了一条记录。
	DeleteUser(ctx context.Context, id uint) (bool, error)
}

// TodoStore 任务集合的存储接口。
type TodoStore interface {
	ListTodos(ctx context.Context, userID uint) ([]model.Todo, error)
	CreateTodo(ctx context.Context, todo *model.Todo) error
	// GetTodoByID 不存在时返回 (nil, nil)。
	GetTodoByID(ctx context.Context, id uint) (*model.Todo, error)
	UpdateTodo(ctx context.Context, id uint, updates map[string]interface{}) error
	// DeleteTodo 返回是否真的删除了一条记录。
	DeleteTodo(ctx context.Context, id uint) (bool, error)
}

// Presence 查询用户是否在线（最近有认证请求）。
type Presence interface {
	IsOnline(ctx context.Context, userID uint) bool
}

type dbUserStore struct {
	db *gorm.DB
}

func (s dbUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) CreateUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	// 先查后插有竞态窗口，唯一索引冲突在这里兜底
	var mysqlErr *mysqldrv.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return model.ErrEmailTaken
	}
	return err
}

func (s dbUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s dbUserStore) UpdateUserStatus(ctx context.Context, id uint, status string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Updates 会把 map 里的值写回 user，先留一份变更前的快照，
	// 调用方据此判断状态是否真的发生了切换
	prev := user
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}).Error; err != nil {
		return nil, err
	}
	return &prev, nil
}

func (s dbUserStore) DeleteUser(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&model.User{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type dbTodoStore struct {
	db *gorm.DB
}

func (s dbTodoStore) ListTodos(ctx context.Context, userID uint) ([]model.Todo, error) {
	var todos []model.Todo
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

func (s dbTodoStore) CreateTodo(ctx context.Context, todo *model.Todo) error {
	return s.db.WithContext(ctx).Create(todo).Error
}

func (s dbTodoStore) GetTodoByID(ctx context.Context, id uint) (*model.Todo, error) {
	var todo model.Todo
	err := s.db.WithContext(ctx).First(&todo, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &todo, nil
}

func (s dbTodoStore) UpdateTodo(ctx context.Context, id uint, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&model.Todo{}).Where("id = ?", id).Updates(updates).Error
}

func (s dbTodoStore) DeleteTodo(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&model.Todo{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type redisPresence struct {
	rdb *redis.Client
}

func (p redisPresence) IsOnline(ctx context.Context, userID uint) bool {
	if p.rdb == nil {
		return false
	}
	n, err := p.rdb.Exists(ctx, middleware.ActiveUserKey(userID)).Result()
	return err == nil && n > 0
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化 Gin 路由引擎与各中间件
//
// 连接全部建立成功后才会返回，之前不对外提供服务。
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Todo{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	if cfg.App.EnableRateLimit {
		limiter := ratelimit.NewRedisRateLimiter(rdb, logger, "taskboard:ratelimit:ip:", cfg.App.RateLimit, cfg.App.RateBurst)
		r.Use(middleware.RateLimit(limiter, logger))
	}

	users := dbUserStore{db: db}
	notifier := notify.NewEmailNotifier(&cfg.Email, logger)
	mailQueue := queue.NewQueue(logger, cfg.App.MailWorkers, cfg.App.MailQueueSize)
	mailQueue.SetErrorHandler(func(err error, job queue.Job) {
		if metrics.MailSendFailedTotal != nil {
			metrics.MailSendFailedTotal.Inc()
		}
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		auth:      auth.NewHandler(users, cfg.Security.JWTSecret, cfg.App.TokenTTL, logger),
		users:     users,
		todos:     dbTodoStore{db: db},
		presence:  redisPresence{rdb: rdb},
		notifier:  notifier,
		mailQueue: mailQueue,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartMailQueue 启动邮件派发 worker 池。
func (s *Server) StartMailQueue(ctx context.Context) {
	if s.mailQueue != nil {
		s.mailQueue.Start(ctx)
	}
}

// Close 关闭邮件队列、数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.mailQueue != nil {
		if err := s.mailQueue.ShutdownWithTimeout(10 * time.Second); err != nil {
			firstErr = err
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
				firstErr = closeErr
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
//
// 原型系统对部分端点重复注册过处理函数，这里只保留一条规范路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/signup", s.auth.Signup)
	s.router.POST("/login", s.auth.Login)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.Use(middleware.ActivityTracker(s.rdb, s.cfg.App.ActiveTTL))
	authed.GET("/todos/:userId", s.handleListTodos)
	authed.POST("/todos", s.handleCreateTodo)
	authed.PATCH("/todos/:id", s.handleUpdateTodo)
	authed.DELETE("/todos/:id", s.handleDeleteTodo)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/users", s.handleCreateUser)
	admin.GET("/users", s.handleListUsers)
	admin.PATCH("/users/:userId", s.handleUpdateUserStatus)
	admin.DELETE("/users/:userId", s.handleDeleteUser)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// queueMail 将通知任务放入邮件队列，队列满时丢弃并记录日志。
func (s *Server) queueMail(job queue.Job) {
	if s.mailQueue == nil || s.notifier == nil {
		return
	}
	if !s.mailQueue.Enqueue(job) {
		s.logger.Warn("mail queue full, notification dropped")
	}
	if metrics.MailQueueDepth != nil {
		metrics.MailQueueDepth.Set(float64(s.mailQueue.Len()))
	}
}

func getUserID(c *gin.Context) uint {
	v, ok := c.Get("userID")
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

func getUserRole(c *gin.Context) string {
	v, ok := c.Get("role")
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return role
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}
