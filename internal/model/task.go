package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStatus 任务状态。
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待完成
	TaskStatusCompleted TaskStatus = "completed" // 已完成
)

// Valid 判断状态是否合法。
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// Toggled 返回翻转后的状态（completed <-> pending）。
func (s TaskStatus) Toggled() TaskStatus {
	if s == TaskStatusCompleted {
		return TaskStatusPending
	}
	return TaskStatusCompleted
}

// ParseTaskStatus 解析状态字符串，忽略大小写与首尾空白。
func ParseTaskStatus(raw string) (TaskStatus, bool) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Task 表示用户的一条待办任务。
//
// UserID 在创建后不可修改，所有读写都必须同时按 id 与 user_id 过滤。
type Task struct {
	ID        string    `gorm:"type:char(36);primaryKey"`                  // 任务 ID (UUIDv7，按时间递增)
	CreatedAt time.Time `gorm:"index:idx_tasks_owner_created,priority:2"` // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID      string     `gorm:"type:char(36);not null;index:idx_tasks_owner_created,priority:1"` // 所属用户 ID
	Title       string     `gorm:"type:varchar(255);not null"`                                      // 标题（非空）
	Description string     `gorm:"type:text"`                                                       // 描述（可为空）
	Status      TaskStatus `gorm:"type:varchar(16);not null;default:pending"`                       // pending / completed
	DueDate     *time.Time // 截止时间（可为空）
}

// BeforeCreate 在插入前分配主键。
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	t.ID = id.String()
	return nil
}
