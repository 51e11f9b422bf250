package crontask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcron "github.com/clarity-app/core/internal/pkg/cron"
	"github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
)

func setupCronTask(t *testing.T) (*gin.Engine, *pkgcron.Scheduler, *taskqueue.Service, *atomic.Int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rc, err := redis.Connect("redis://" + mr.Addr())
	require.NoError(t, err)
	taskSvc := taskqueue.NewService(rc)

	var runs atomic.Int32
	sched := pkgcron.New()
	sched.Register(pkgcron.Job{
		Name:        "heartbeat",
		Description: "counts its own runs",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	sched.Register(pkgcron.Job{
		Name:        "always_fails",
		Description: "rejects every run",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			return errors.New("nothing to do here")
		},
	})

	r := gin.New()
	api := r.Group("/api/v2")
	NewHandler(sched, taskSvc).RegisterRoutes(api, func(c *gin.Context) { c.Next() })
	return r, sched, taskSvc, &runs
}

func TestJobListAndStatus(t *testing.T) {
	r, _, _, _ := setupCronTask(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/cron-task", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "heartbeat")
	assert.Contains(t, w.Body.String(), "always_fails")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/cron-task/heartbeat", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(pkgcron.StatusIdle))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/cron-task/no-such-job", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManualRun(t *testing.T) {
	r, sched, _, runs := setupCronTask(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v2/cron-task/heartbeat/run", nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		res, err := sched.GetTask("heartbeat")
		return err == nil && res.Status == pkgcron.StatusFulfill
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	// A failing job surfaces its error through the status poll.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v2/cron-task/always_fails/run", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		res, err := sched.GetTask("always_fails")
		return err == nil && res.Status == pkgcron.StatusReject
	}, 2*time.Second, 10*time.Millisecond)
	res, err := sched.GetTask("always_fails")
	require.NoError(t, err)
	assert.Equal(t, "nothing to do here", res.Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v2/cron-task/no-such-job/run", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueAdmin(t *testing.T) {
	r, _, taskSvc, _ := setupCronTask(t)
	ctx := context.Background()

	task, err := taskSvc.Enqueue(ctx, taskqueue.TypeSyncSweep, map[string]int{"pushed": 3}, "", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/cron-task/tasks?type="+taskqueue.TypeSyncSweep, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), task.ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/cron-task/tasks/"+task.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got taskqueue.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, taskqueue.TaskPending, got.Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v2/cron-task/tasks/"+task.ID+"/cancel", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	fetched, err := taskSvc.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, taskqueue.TaskCancelled, fetched.Status)

	// Cancelled is terminal, so the sweep clears it.
	w = httptest.NewRecorder()
	before := fmt.Sprintf("%d", time.Now().Add(time.Hour).UnixMilli())
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v2/cron-task/tasks?before="+before, nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	gone, err := taskSvc.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v2/cron-task/tasks?before=not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
