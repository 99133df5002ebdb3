// Package account 实现注册、登录与个人信息查询。
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"supertodo/internal/apperr"
	"supertodo/internal/model"
	"supertodo/internal/pkg/metrics"
	"supertodo/internal/pkg/notify"
	"supertodo/internal/pkg/token"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt 上限
)

var errInvalidCredentials = apperr.New(apperr.KindInvalidCredentials, "invalid email or password")

// UserStore 凭据存储接口。
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Session 是注册或登录成功后的结果。
type Session struct {
	User      model.User
	Token     string
	ExpiresAt time.Time
}

// Service 提供账户相关操作。
type Service struct {
	users     UserStore
	tokens    *token.Service
	notifier  notify.Notifier
	cost      int
	dummyHash []byte
	logger    *slog.Logger
}

// BcryptCost 返回可用的 bcrypt 成本，超出 [MinCost, MaxCost] 时回退为 DefaultCost。
func BcryptCost(cost int) int {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}

// NewService 创建账户服务。notifier 可为 nil。
func NewService(users UserStore, tokens *token.Service, notifier notify.Notifier, bcryptCost int, logger *slog.Logger) (*Service, error) {
	bcryptCost = BcryptCost(bcryptCost)
	// 未知邮箱登录时与该哈希比对，使耗时与密码错误一致
	dummy, err := bcrypt.GenerateFromPassword([]byte("supertodo-dummy-password"), bcryptCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		users:     users,
		tokens:    tokens,
		notifier:  notifier,
		cost:      bcryptCost,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

// Register 创建新用户并签发令牌。
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	session, err := s.register(ctx, name, email, password)
	metrics.ObserveAuth("register", err)
	return session, err
}

func (s *Service) register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, apperr.Validation("name, email and password are required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Validation("email is invalid")
	}
	if len(password) < minPasswordLen {
		return nil, apperr.Validation("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return nil, apperr.Validation("password must be at most 72 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Internal("hash password failed", err)
	}

	user := model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.SendWelcome(ctx, user.Name, user.Email); err != nil && s.logger != nil {
			s.logger.Warn("send welcome email failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
	}
	if s.logger != nil {
		s.logger.Info("user registered", slog.String("user_id", user.ID))
	}
	return s.issue(user)
}

// Login 校验邮箱与密码。
//
// 邮箱不存在与密码错误返回同一个错误。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	session, err := s.login(ctx, email, password)
	metrics.ObserveAuth("login", err)
	return session, err
}

func (s *Service) login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, errInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) && s.logger != nil {
			s.logger.Error("compare password failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
		return nil, errInvalidCredentials
	}

	if s.logger != nil {
		s.logger.Info("user logged in", slog.String("user_id", user.ID))
	}
	return s.issue(*user)
}

// Profile 返回用户公开信息。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *Service) issue(user model.User) (*Session, error) {
	signed, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperr.Internal("sign token failed", err)
	}
	return &Session{User: user, Token: signed, ExpiresAt: exp}, nil
}
