package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"supertodo/internal/apperr"
	"supertodo/internal/model"
	"supertodo/internal/pkg/optional"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errTaskNotFound = apperr.NotFound("task not found")

// NewTask 创建任务的输入。Status 为空时默认为 pending。
type NewTask struct {
	Title       string
	Description string
	Status      model.TaskStatus
	DueDate     *time.Time
}

// TaskPatch 部分更新的输入，缺省字段保持不变。
//
// Title / Status 不可清空；Description / DueDate 传 null 表示清空。
type TaskPatch struct {
	Title       optional.Field[string]
	Description optional.Field[string]
	Status      optional.Field[model.TaskStatus]
	DueDate     optional.Field[time.Time]
}

// Empty 判断补丁是否没有任何字段。
func (p TaskPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.DueDate.Set
}

// OwnedBy 是所有按 ID 访问任务的唯一入口：id 与 user_id 在同一条件中过滤。
func OwnedBy(ownerID, taskID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND user_id = ?", taskID, ownerID)
	}
}

// TaskStore 是按所有者隔离的任务存储。
type TaskStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTaskStore 创建 TaskStore。
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

// Create 为 ownerID 创建任务。
func (s *TaskStore) Create(ctx context.Context, ownerID string, in NewTask) (*model.Task, error) {
	if ownerID == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "missing owner")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	status := in.Status
	if status == "" {
		status = model.TaskStatusPending
	}
	if !status.Valid() {
		return nil, apperr.Validation("status must be pending or completed")
	}

	task := model.Task{
		UserID:      ownerID,
		Title:       title,
		Description: in.Description,
		Status:      status,
		DueDate:     in.DueDate,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, apperr.Internal("create task failed", err)
	}
	return &task, nil
}

// List 返回 ownerID 的任务，按创建时间倒序；status 非空时按状态过滤。
func (s *TaskStore) List(ctx context.Context, ownerID string, status model.TaskStatus) ([]model.Task, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("status must be pending or completed")
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	tasks := []model.Task{}
	if err := query.Order("created_at DESC, id DESC").Find(&tasks).Error; err != nil {
		return nil, apperr.Internal("list tasks failed", err)
	}
	return tasks, nil
}

// Get 返回 ownerID 名下的任务；不存在与不属于调用者同样返回 not_found。
func (s *TaskStore) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	if !validID(taskID) {
		return nil, errTaskNotFound
	}
	var task model.Task
	if err := s.db.WithContext(ctx).Scopes(OwnedBy(ownerID, taskID)).First(&task).Error; err != nil {
		return nil, taskLookupError(err)
	}
	return &task, nil
}

// Update 只覆盖补丁中出现的字段，所有者字段不可写。
//
// 补丁在命中 (id, owner) 之后才校验，他人的任务一律返回 not_found。
func (s *TaskStore) Update(ctx context.Context, ownerID, taskID string, patch TaskPatch) (*model.Task, error) {
	return s.mutateOwned(ctx, ownerID, taskID, func(*model.Task) (map[string]any, error) {
		return patchUpdates(patch)
	})
}

// ToggleStatus 在 pending 与 completed 之间翻转。
func (s *TaskStore) ToggleStatus(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	return s.mutateOwned(ctx, ownerID, taskID, func(task *model.Task) (map[string]any, error) {
		return map[string]any{"status": task.Status.Toggled()}, nil
	})
}

// Delete 永久删除任务；过滤与删除在同一条语句中完成。
func (s *TaskStore) Delete(ctx context.Context, ownerID, taskID string) error {
	if !validID(taskID) {
		return errTaskNotFound
	}
	res := s.db.WithContext(ctx).Scopes(OwnedBy(ownerID, taskID)).Delete(&model.Task{})
	if res.Error != nil {
		return apperr.Internal("delete task failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return errTaskNotFound
	}
	return nil
}

// mutateOwned 在事务内锁定 (id, owner) 命中的行，再以同一过滤条件写入。
//
// mutate 返回需要更新的列，为空表示不写入。
func (s *TaskStore) mutateOwned(ctx context.Context, ownerID, taskID string, mutate func(task *model.Task) (map[string]any, error)) (*model.Task, error) {
	if !validID(taskID) {
		return nil, errTaskNotFound
	}

	var out model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(OwnedBy(ownerID, taskID)).
			First(&current).Error; err != nil {
			return taskLookupError(err)
		}

		updates, err := mutate(&current)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			out = current
			return nil
		}
		updates["updated_at"] = s.now()

		if err := tx.Model(&model.Task{}).Scopes(OwnedBy(ownerID, taskID)).Updates(updates).Error; err != nil {
			return apperr.Internal("update task failed", err)
		}
		if err := tx.Scopes(OwnedBy(ownerID, taskID)).First(&out).Error; err != nil {
			return taskLookupError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func patchUpdates(p TaskPatch) (map[string]any, error) {
	updates := map[string]any{}
	if p.Title.Set {
		title := strings.TrimSpace(p.Title.Value)
		if p.Title.Null || title == "" {
			return nil, apperr.Validation("title cannot be empty")
		}
		updates["title"] = title
	}
	if p.Description.Set {
		updates["description"] = p.Description.Value // null 清空为 ""
	}
	if p.Status.Set {
		if p.Status.Null || !p.Status.Value.Valid() {
			return nil, apperr.Validation("status must be pending or completed")
		}
		updates["status"] = p.Status.Value
	}
	if p.DueDate.Set {
		if p.DueDate.Null {
			updates["due_date"] = nil
		} else {
			updates["due_date"] = p.DueDate.Value
		}
	}
	return updates, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func taskLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errTaskNotFound
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal("query task failed", err)
}
