package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"supertodo/internal/account"
	"supertodo/internal/api/auth"
	"supertodo/internal/api/middleware"
	"supertodo/internal/config"
	"supertodo/internal/model"
	"supertodo/internal/pkg/dedup"
	"supertodo/internal/pkg/metrics"
	"supertodo/internal/pkg/notify"
	"supertodo/internal/pkg/ratelimit"
	"supertodo/internal/pkg/token"
	"supertodo/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	rdb     *redis.Client
	router  *gin.Engine
	auth    *auth.Handler
	tokens  middleware.TokenVerifier
	limiter middleware.Limiter
	deduper Deduper
	tasks   TaskStore
}

// TaskStore 是 handler 依赖的按所有者隔离的任务存储。
type TaskStore interface {
	Create(ctx context.Context, ownerID string, in store.NewTask) (*model.Task, error)
	List(ctx context.Context, ownerID string, status model.TaskStatus) ([]model.Task, error)
	Get(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	Update(ctx context.Context, ownerID, taskID string, patch store.TaskPatch) (*model.Task, error)
	ToggleStatus(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) error
}

// Deduper 记录 Idempotency-Key。
type Deduper interface {
	Claim(ctx context.Context, scope, key string) (dedup.Claim, error)
	Complete(ctx context.Context, scope, key, resultID string) error
	Release(ctx context.Context, scope, key string) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 配置了 Redis 地址时连接 Redis（用于限流与幂等）
// 3. 组装账户服务、令牌服务与任务存储
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = store.Close(db)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	closeAll := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = store.Close(db)
	}

	tokens, err := token.NewService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL)
	if err != nil {
		closeAll()
		return nil, err
	}
	emailNotifier := notify.NewEmailNotifier(&cfg.Email, logger)
	accounts, err := account.NewService(store.NewUserStore(db), tokens, emailNotifier, cfg.Security.BcryptCost, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	// 初始化 Prometheus 指标
	metrics.InitMetrics()

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		auth:    auth.NewHandler(accounts, logger),
		tokens:  tokens,
		deduper: dedup.NewDeduplicator(rdb, cfg.Security.IdempotencyWindow),
		tasks:   store.NewTaskStore(db),
	}
	if rdb != nil {
		s.limiter = ratelimit.NewRedisRateLimiter(rdb, logger, "supertodo:ratelimit:auth", cfg.Security.AuthRateLimit, cfg.Security.AuthRateBurst)
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := s.newRouter()
	if err != nil {
		closeAll()
		return nil, err
	}
	s.router = router
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var errs []error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := store.Close(s.db); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// newRouter 创建路由引擎。
//
// 只有来自 trusted_proxies 的请求才采信 X-Forwarded-For，否则 ClientIP 取连接的远端地址。
func (s *Server) newRouter() (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.App.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(s.logger))
	s.registerRoutes(r)
	return r, nil
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(r *gin.Engine) {
	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealthz)

	authGroup := r.Group("/auth")
	authGroup.POST("/register", middleware.RateLimit(s.limiter, "register", s.logger), s.auth.Register)
	authGroup.POST("/login", middleware.RateLimit(s.limiter, "login", s.logger), s.auth.Login)

	gate := middleware.AuthMiddleware(s.tokens)
	authGroup.GET("/profile", gate, s.auth.Profile)
	authGroup.POST("/logout", gate, s.auth.Logout)

	tasks := r.Group("/tasks")
	tasks.Use(gate)
	tasks.POST("", s.handleCreateTask)
	tasks.GET("", s.handleListTasks)
	tasks.GET("/:id", s.handleGetTask)
	tasks.PUT("/:id", s.handleUpdateTask)
	tasks.DELETE("/:id", s.handleDeleteTask)
	tasks.PATCH("/:id/toggle", s.handleToggleTask)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		s.logger.Warn("healthz database check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("healthz redis check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
