package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 表示系统用户。
type User struct {
	ID           string    `gorm:"type:char(36);primaryKey"`              // 用户 ID (UUIDv7)
	Name         string    `gorm:"type:varchar(100);not null"`            // 显示名称
	Email        string    `gorm:"type:varchar(191);uniqueIndex;not null"` // 邮箱（小写存储，唯一）
	PasswordHash string    `gorm:"not null"`                              // bcrypt 哈希，禁止对外输出
	CreatedAt    time.Time // 创建时间

	Tasks []Task `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate 在插入前分配主键。
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	u.ID = id.String()
	return nil
}
