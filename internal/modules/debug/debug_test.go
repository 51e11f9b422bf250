package debug

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/models"
)

type recordedEvent struct {
	event   string
	payload interface{}
}

type recordingHub struct {
	owner  []recordedEvent
	public []recordedEvent
}

func (r *recordingHub) BroadcastOwner(event string, payload interface{}) {
	r.owner = append(r.owner, recordedEvent{event, payload})
}

func (r *recordingHub) BroadcastPublic(event string, payload interface{}) {
	r.public = append(r.public, recordedEvent{event, payload})
}

type recordingDispatcher struct {
	events []recordedEvent
}

func (r *recordingDispatcher) Dispatch(event string, payload interface{}) {
	r.events = append(r.events, recordedEvent{event, payload})
}

func setupDebug(t *testing.T) (*gorm.DB, *recordingHub, *recordingDispatcher, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UserModel{}))

	hub := &recordingHub{}
	hooks := &recordingDispatcher{}

	r := gin.New()
	rg := r.Group("/api/v2")
	passthrough := func(c *gin.Context) { c.Next() }
	NewHandler(db, hub, hooks, nil).RegisterRoutes(rg, passthrough)
	return db, hub, hooks, r
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body == "" {
		buf = bytes.NewBuffer(nil)
	} else {
		buf = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSendEventRooms(t *testing.T) {
	_, hub, _, r := setupDebug(t)

	w := post(r, "/api/v2/debug/events?event=PROBE", `{"n":1}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, hub.owner, 1, "owner is the default room")
	assert.Equal(t, "PROBE", hub.owner[0].event)
	assert.Empty(t, hub.public)

	w = post(r, "/api/v2/debug/events?event=PROBE&type=public", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, hub.public, 1)
	assert.Nil(t, hub.public[0].payload, "payload is optional")

	w = post(r, "/api/v2/debug/events?event=PROBE&type=all", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, hub.owner, 2)
	assert.Len(t, hub.public, 2)
}

func TestSendEventRejectsBadInput(t *testing.T) {
	_, hub, _, r := setupDebug(t)

	w := post(r, "/api/v2/debug/events", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "event name is required")

	w = post(r, "/api/v2/debug/events?event=PROBE&type=moderators", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(r, "/api/v2/debug/events?event=PROBE", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, hub.owner)
	assert.Empty(t, hub.public)
}

func TestSendWebhook(t *testing.T) {
	_, _, hooks, r := setupDebug(t)

	w := post(r, "/api/v2/debug/webhooks?event=ENTRY_CREATE", `{"id":"e1"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, hooks.events, 1)
	assert.Equal(t, "ENTRY_CREATE", hooks.events[0].event)

	w = post(r, "/api/v2/debug/webhooks", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewMacro(t *testing.T) {
	db, _, _, r := setupDebug(t)
	require.NoError(t, db.Create(&models.UserModel{
		Username: "journaler",
		Name:     "Ada",
		Password: "x",
	}).Error)

	w := post(r, "/api/v2/debug/macro", `{"text":"Hi {{ $name }}, feeling {{ $mood }}","mood":"calm"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hi Ada, feeling calm")

	w = post(r, "/api/v2/debug/macro", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "text is required")
}
