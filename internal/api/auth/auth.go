package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"supertodo/internal/account"
	"supertodo/internal/api/middleware"
	"supertodo/internal/api/respond"
	"supertodo/internal/apperr"
	"supertodo/internal/model"

	"github.com/gin-gonic/gin"
)

// AccountService 是 Handler 依赖的账户操作。
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*account.Session, error)
	Login(ctx context.Context, email, password string) (*account.Session, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// Handler 提供注册、登录、个人信息与注销接口。
type Handler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(accounts AccountService, logger *slog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse 是用户的公开字段，不含密码哈希。
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionResponse 是注册与登录的响应。
type SessionResponse struct {
	UserResponse
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var errBadBody = apperr.Validation("invalid request body")

// NewUserResponse 转换为对外结构。
func NewUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func newSessionResponse(s *account.Session) SessionResponse {
	return SessionResponse{
		UserResponse: NewUserResponse(s.User),
		Token:        s.Token,
		ExpiresAt:    s.ExpiresAt.UTC(),
	}
}

// Register 创建新用户并返回令牌。
//
// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, h.logger, errBadBody)
		return
	}
	session, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(session))
}

// Login 校验用户并返回 JWT。
//
// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, h.logger, errBadBody)
		return
	}
	if req.Email == "" || req.Password == "" {
		respond.Error(c, h.logger, apperr.Validation("email and password are required"))
		return
	}
	session, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Profile 返回当前用户信息。
//
// GET /auth/profile
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.accounts.Profile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(*user))
}

// Logout 处理注销请求（无状态，客户端丢弃令牌即可）。
//
// POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
