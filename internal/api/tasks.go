package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"supertodo/internal/api/middleware"
	"supertodo/internal/api/respond"
	"supertodo/internal/apperr"
	"supertodo/internal/model"
	"supertodo/internal/pkg/metrics"
	"supertodo/internal/pkg/optional"
	"supertodo/internal/store"

	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader 是创建任务时可选的幂等键请求头。
const IdempotencyKeyHeader = "Idempotency-Key"

var (
	errBadBody         = apperr.Validation("invalid request body")
	errInvalidStatus   = apperr.Validation("status must be pending or completed")
	errRequestInFlight = apperr.New(apperr.KindConflict, "a request with this Idempotency-Key is still in progress")
)

// createTaskRequest 创建任务的请求参数。
type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"` // RFC 3339
}

// updateTaskRequest 部分更新请求，缺省字段保持不变。
type updateTaskRequest struct {
	Title       optional.Field[string]    `json:"title"`
	Description optional.Field[string]    `json:"description"`
	Status      optional.Field[string]    `json:"status"`
	DueDate     optional.Field[time.Time] `json:"dueDate"`
}

type taskResponse struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func newTaskResponse(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:          t.ID,
		Owner:       t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		resp.DueDate = &due
	}
	return resp
}

func (r updateTaskRequest) patch() store.TaskPatch {
	p := store.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
	}
	if r.Status.Set {
		p.Status = optional.Field[model.TaskStatus]{
			Set:   true,
			Null:  r.Status.Null,
			Value: model.TaskStatus(strings.ToLower(strings.TrimSpace(r.Status.Value))),
		}
	}
	return p
}

// handleCreateTask 创建任务。
//
// POST /tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, s.logger, errBadBody)
		return
	}
	ctx := c.Request.Context()
	ownerID := middleware.UserID(c)

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key != "" && s.deduper != nil {
		claim, err := s.deduper.Claim(ctx, ownerID, key)
		switch {
		case err != nil:
			s.logger.Warn("idempotency claim failed", slog.String("error", err.Error()))
			key = ""
		case claim.Pending:
			respond.Error(c, s.logger, errRequestInFlight)
			return
		case !claim.Claimed:
			task, err := s.tasks.Get(ctx, ownerID, claim.ResultID)
			if err != nil {
				respond.Error(c, s.logger, err)
				return
			}
			s.logger.Info("task creation replayed", slog.String("task_id", task.ID))
			c.JSON(http.StatusOK, newTaskResponse(task))
			return
		}
	} else {
		key = ""
	}

	task, err := s.tasks.Create(ctx, ownerID, store.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Status:      model.TaskStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		DueDate:     req.DueDate,
	})
	metrics.ObserveTask("create", err)
	if err != nil {
		if key != "" {
			if relErr := s.deduper.Release(ctx, ownerID, key); relErr != nil {
				s.logger.Warn("idempotency release failed", slog.String("error", relErr.Error()))
			}
		}
		respond.Error(c, s.logger, err)
		return
	}
	if key != "" {
		if err := s.deduper.Complete(ctx, ownerID, key, task.ID); err != nil {
			s.logger.Warn("idempotency complete failed", slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusCreated, newTaskResponse(task))
}

// handleListTasks 返回当前用户的任务，可按 status 过滤。
//
// GET /tasks?status=pending|completed
func (s *Server) handleListTasks(c *gin.Context) {
	var status model.TaskStatus
	if raw := c.Query("status"); raw != "" {
		parsed, ok := model.ParseTaskStatus(raw)
		if !ok {
			respond.Error(c, s.logger, errInvalidStatus)
			return
		}
		status = parsed
	}

	tasks, err := s.tasks.List(c.Request.Context(), middleware.UserID(c), status)
	metrics.ObserveTask("list", err)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks)) // 保证 JSON 为 [] 而不是 null
	for i := range tasks {
		resp = append(resp, newTaskResponse(&tasks[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GET /tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	metrics.ObserveTask("get", err)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}

// handleUpdateTask 部分更新任务。
//
// PUT /tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, s.logger, errBadBody)
		return
	}

	task, err := s.tasks.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.patch())
	metrics.ObserveTask("update", err)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}

// DELETE /tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	err := s.tasks.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	metrics.ObserveTask("delete", err)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task removed"})
}

// handleToggleTask 在 pending 与 completed 之间切换。
//
// PATCH /tasks/:id/toggle
func (s *Server) handleToggleTask(c *gin.Context) {
	task, err := s.tasks.ToggleStatus(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	metrics.ObserveTask("toggle", err)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}
