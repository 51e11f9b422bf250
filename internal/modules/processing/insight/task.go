package insight

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clarity-app/core/internal/pkg/pagination"
	"github.com/clarity-app/core/internal/pkg/response"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
)

// GET /ai/tasks
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)

	var taskType *string
	if v := c.Query("type"); v != "" {
		taskType = &v
	}
	var status *taskqueue.TaskStatus
	if v := c.Query("status"); v != "" {
		st := taskqueue.TaskStatus(v)
		status = &st
	}

	tasks, total, err := h.svc.taskSvc.List(c.Request.Context(), q.Page, q.Size, taskType, status)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, tasks, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	})
}

// GET /ai/tasks/:id
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || task == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, task)
}

// GET /ai/tasks/entry/:entryId
func (h *Handler) listTasksByEntry(c *gin.Context) {
	entryID := c.Param("entryId")
	taskType := TaskTypeInsight

	tasks, _, err := h.svc.taskSvc.List(c.Request.Context(), 1, 1000, &taskType, nil)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	matched := make([]*taskqueue.Task, 0)
	for _, task := range tasks {
		if task.GroupKey == entryID {
			matched = append(matched, task)
		}
	}
	response.OK(c, matched)
}

// POST /ai/tasks/:id/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	ctx := c.Request.Context()
	task, err := h.svc.taskSvc.GetByID(ctx, c.Param("id"))
	if err != nil || task == nil {
		response.NotFound(c)
		return
	}

	switch task.Status {
	case taskqueue.TaskCompleted, taskqueue.TaskFailed, taskqueue.TaskCancelled:
		response.BadRequest(c, "task has already finished")
		return
	case taskqueue.TaskRunning:
		// The worker goroutine cannot be unwound; flip the status so its
		// final write lands on a cancelled task.
		if err := h.svc.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskCancelled, nil, "cancelled while running"); err != nil {
			response.InternalError(c, err)
			return
		}
	default:
		if err := h.svc.taskSvc.Cancel(ctx, task.ID); err != nil {
			response.InternalError(c, err)
			return
		}
	}
	response.OK(c, gin.H{"id": task.ID, "status": taskqueue.TaskCancelled})
}

// POST /ai/tasks/:id/retry
func (h *Handler) retryTask(c *gin.Context) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || task == nil {
		response.NotFound(c)
		return
	}
	if task.Status != taskqueue.TaskFailed && task.Status != taskqueue.TaskCancelled {
		response.BadRequest(c, "only failed or cancelled tasks can be retried")
		return
	}

	var payload InsightPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		response.BadRequest(c, "invalid task payload")
		return
	}

	fresh, err := h.svc.EnqueueInsight(c.Request.Context(), payload.EntryID)
	if err != nil {
		respondInsightError(c, err)
		return
	}
	response.Created(c, fresh)
}

// DELETE /ai/tasks/:id
func (h *Handler) deleteTask(c *gin.Context) {
	if err := h.svc.taskSvc.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		response.NotFound(c)
		return
	}
	response.NoContent(c)
}

// DELETE /ai/tasks?before=<unix_ms>
//
// Clears finished tasks older than the given bound.
func (h *Handler) batchDeleteTasks(c *gin.Context) {
	before := c.Query("before")
	if before == "" {
		response.BadRequest(c, "before is required")
		return
	}
	ms, err := strconv.ParseInt(before, 10, 64)
	if err != nil {
		response.BadRequest(c, "before must be a unix millisecond timestamp")
		return
	}

	if err := h.svc.taskSvc.DeleteCompleted(c.Request.Context(), ms); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
