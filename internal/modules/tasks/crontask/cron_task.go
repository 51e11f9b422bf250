// Package crontask exposes the background machinery over HTTP: the cron
// scheduler's jobs and the redis task queue they and the other modules
// write into. Jobs can be inspected and triggered by hand; queue tasks can
// be inspected, cancelled, and swept. Retry is deliberately absent here:
// a queued task only runs when the module owning its type launches the
// worker, so re-enqueueing from a generic surface would strand the copy.
package crontask

import (
	"strconv"

	"github.com/gin-gonic/gin"

	pkgcron "github.com/clarity-app/core/internal/pkg/cron"
	"github.com/clarity-app/core/internal/pkg/pagination"
	"github.com/clarity-app/core/internal/pkg/response"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
)

type Handler struct {
	sched   *pkgcron.Scheduler
	taskSvc *taskqueue.Service
}

func NewHandler(sched *pkgcron.Scheduler, taskSvc *taskqueue.Service) *Handler {
	return &Handler{sched: sched, taskSvc: taskSvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW)
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)

	tasks := g.Group("/tasks")
	tasks.GET("", h.listTasks)
	tasks.GET("/:taskId", h.getTask)
	tasks.POST("/:taskId/cancel", h.cancelTask)
	tasks.DELETE("/:taskId", h.deleteTask)
	tasks.DELETE("", h.deleteTasks)
}

// GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// GET /cron-task/:name
func (h *Handler) get(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, "no such scheduled job")
		return
	}
	response.OK(c, result)
}

// POST /cron-task/:name/run triggers a job outside its schedule. The run
// is fire-and-forget; poll GET /cron-task/:name for the outcome.
func (h *Handler) run(c *gin.Context) {
	if err := h.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
		response.NotFoundMsg(c, "no such scheduled job")
		return
	}
	response.OK(c, gin.H{"message": "job triggered"})
}

// GET /cron-task/tasks?type=...&status=...
func (h *Handler) listTasks(c *gin.Context) {
	if h.taskSvc == nil {
		response.OK(c, gin.H{"data": []interface{}{}})
		return
	}
	q := pagination.FromContext(c)

	var taskType *string
	var status *taskqueue.TaskStatus
	if v := c.Query("type"); v != "" {
		taskType = &v
	}
	if v := c.Query("status"); v != "" {
		s := taskqueue.TaskStatus(v)
		status = &s
	}

	tasks, total, err := h.taskSvc.List(c.Request.Context(), q.Page, q.Size, taskType, status)
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

// GET /cron-task/tasks/:taskId
func (h *Handler) getTask(c *gin.Context) {
	if h.taskSvc == nil {
		response.NotFoundMsg(c, "task queue is not available")
		return
	}
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, "no such task")
		return
	}
	response.OK(c, task)
}

// POST /cron-task/tasks/:taskId/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	if h.taskSvc == nil {
		response.NotFoundMsg(c, "task queue is not available")
		return
	}
	if err := h.taskSvc.Cancel(c.Request.Context(), c.Param("taskId")); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

// DELETE /cron-task/tasks/:taskId
func (h *Handler) deleteTask(c *gin.Context) {
	if h.taskSvc == nil {
		response.NotFoundMsg(c, "task queue is not available")
		return
	}
	if err := h.taskSvc.DeleteByID(c.Request.Context(), c.Param("taskId")); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

// DELETE /cron-task/tasks?before=<unix_ms>
// Clears finished tasks, optionally only those older than the bound.
func (h *Handler) deleteTasks(c *gin.Context) {
	if h.taskSvc == nil {
		response.NoContent(c)
		return
	}
	var before int64
	if raw := c.Query("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "before must be a unix millisecond timestamp")
			return
		}
		before = v
	}
	if err := h.taskSvc.DeleteCompleted(c.Request.Context(), before); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
