package store

import (
	"context"
	"errors"
	"strings"

	"supertodo/internal/apperr"
	"supertodo/internal/model"

	"gorm.io/gorm"
)

var errEmailTaken = apperr.New(apperr.KindDuplicateEmail, "email already exists")

// UserStore 是凭据存储。
type UserStore struct {
	db *gorm.DB
}

// NewUserStore 创建 UserStore。
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// NormalizeEmail 统一邮箱格式，保证大小写不敏感的唯一性。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create 写入新用户；邮箱已存在时返回 duplicate_email。
//
// 先查后写用于给出明确错误，唯一索引兜底并发注册。
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	user.Email = NormalizeEmail(user.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return apperr.Internal("query user failed", err)
	}
	if count > 0 {
		return errEmailTaken
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errEmailTaken
		}
		return apperr.Internal("create user failed", err)
	}
	return nil
}

// FindByEmail 按邮箱查询用户。
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

// FindByID 按 ID 查询用户。
func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperr.NotFound("user not found")
	}
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

func userLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("user not found")
	}
	return apperr.Internal("query user failed", err)
}
