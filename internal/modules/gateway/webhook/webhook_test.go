package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/gateway/notify"
)

func setupWebhook(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.WebhookModel{}, &models.WebhookEventModel{}))
	return db, NewService(db)
}

func TestNormalizeWebhookEvents(t *testing.T) {
	got := normalizeWebhookEvents([]string{" entry_create ", "ENTRY_CREATE", "mint_success", "bogus"})
	assert.Equal(t, []string{"ENTRY_CREATE", "MINT_SUCCESS"}, got)

	assert.Equal(t, []string{"all"}, normalizeWebhookEvents([]string{"ENTRY_CREATE", "All"}))
	assert.Empty(t, normalizeWebhookEvents([]string{"bogus", "", "  "}))
}

func TestWebhookContainsEvent(t *testing.T) {
	assert.True(t, webhookContainsEvent([]string{"ENTRY_CREATE"}, "entry_create"))
	assert.True(t, webhookContainsEvent([]string{"all"}, notify.EventMintFail))
	assert.False(t, webhookContainsEvent([]string{"ENTRY_CREATE"}, notify.EventMintFail))
	assert.False(t, webhookContainsEvent(nil, notify.EventEntryCreate))
}

func TestCreateWebhook(t *testing.T) {
	_, svc := setupWebhook(t)

	w, err := svc.Create(&CreateWebhookDTO{
		PayloadURL: "https://example.com/hook",
		Events:     []string{"entry_create"},
	})
	require.NoError(t, err)
	assert.Len(t, w.Secret, 40, "blank secret gets a generated 20-byte hex one")
	assert.True(t, w.Enabled)
	assert.Equal(t, []string{"ENTRY_CREATE"}, w.Events)

	w2, err := svc.Create(&CreateWebhookDTO{
		PayloadURL: "https://example.com/hook2",
		Events:     []string{"all"},
		Secret:     "  my-secret  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-secret", w2.Secret)

	_, err = svc.Create(&CreateWebhookDTO{
		PayloadURL: "https://example.com/hook3",
		Events:     []string{"bogus"},
	})
	require.Error(t, err)
}

func TestDispatchSignsAndLogs(t *testing.T) {
	db, svc := setupWebhook(t)

	type received struct {
		body    []byte
		headers http.Header
	}
	got := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		got <- received{body: buf.Bytes(), headers: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	hook, err := svc.Create(&CreateWebhookDTO{
		PayloadURL: srv.URL,
		Events:     []string{"ENTRY_CREATE"},
		Secret:     "s3cret-value",
	})
	require.NoError(t, err)

	svc.Dispatch(notify.EventEntryCreate, map[string]interface{}{"id": "entry-1"})

	var req received
	select {
	case req = <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("webhook endpoint was never called")
	}

	mac := hmac.New(sha256.New, []byte("s3cret-value"))
	mac.Write(req.body)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), req.headers.Get("X-Clarity-Signature-256"),
		"signature must cover the exact body bytes")
	assert.Equal(t, notify.EventEntryCreate, req.headers.Get("X-Clarity-Event"))
	assert.Equal(t, hook.ID, req.headers.Get("X-Clarity-Hook-Id"))
	assert.NotEmpty(t, req.headers.Get("X-Clarity-Timestamp"))
	assert.NotEmpty(t, req.headers.Get("X-Clarity-Signature"))

	var envelope struct {
		Event     string                 `json:"event"`
		Timestamp int64                  `json:"timestamp"`
		Data      map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(req.body, &envelope))
	assert.Equal(t, notify.EventEntryCreate, envelope.Event)
	assert.Equal(t, "entry-1", envelope.Data["id"])
	assert.Positive(t, envelope.Timestamp)

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.WebhookEventModel{}).
			Where("hook_id = ? AND success = ?", hook.ID, true).Count(&n)
		return n == 1
	}, 3*time.Second, 25*time.Millisecond)

	var log models.WebhookEventModel
	require.NoError(t, db.First(&log, "hook_id = ?", hook.ID).Error)
	assert.Equal(t, notify.EventEntryCreate, log.Event)
	assert.Equal(t, http.StatusOK, log.Status)
	assert.Equal(t, "ENTRY_CREATE", log.Payload["event"])
}

func TestDispatchFiltersEventsAndDisabledHooks(t *testing.T) {
	db, svc := setupWebhook(t)

	var wrongEventHits, disabledHits, matchHits atomic.Int64
	wrongEventSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrongEventHits.Add(1)
	}))
	defer wrongEventSrv.Close()
	disabledSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		disabledHits.Add(1)
	}))
	defer disabledSrv.Close()
	matchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matchHits.Add(1)
	}))
	defer matchSrv.Close()

	_, err := svc.Create(&CreateWebhookDTO{PayloadURL: wrongEventSrv.URL, Events: []string{"MINT_SUCCESS"}})
	require.NoError(t, err)
	disabled := false
	_, err = svc.Create(&CreateWebhookDTO{PayloadURL: disabledSrv.URL, Events: []string{"all"}, Enabled: &disabled})
	require.NoError(t, err)
	match, err := svc.Create(&CreateWebhookDTO{PayloadURL: matchSrv.URL, Events: []string{"all"}})
	require.NoError(t, err)

	svc.Dispatch(notify.EventEntryCreate, map[string]string{"id": "e1"})

	require.Eventually(t, func() bool { return matchHits.Load() == 1 }, 3*time.Second, 25*time.Millisecond)
	assert.Zero(t, wrongEventHits.Load())
	assert.Zero(t, disabledHits.Load())

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.WebhookEventModel{}).Count(&n)
		return n == 1
	}, 3*time.Second, 25*time.Millisecond, "only the matching hook gets a log row")
	var log models.WebhookEventModel
	require.NoError(t, db.First(&log).Error)
	assert.Equal(t, match.ID, log.HookID)
}

func TestRedispatch(t *testing.T) {
	db, svc := setupWebhook(t)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	hook, err := svc.Create(&CreateWebhookDTO{PayloadURL: srv.URL, Events: []string{"all"}})
	require.NoError(t, err)

	svc.Dispatch(notify.EventMintSuccess, map[string]string{"id": "e1"})
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 3*time.Second, 25*time.Millisecond)

	var log models.WebhookEventModel
	require.Eventually(t, func() bool {
		return db.First(&log, "hook_id = ?", hook.ID).Error == nil
	}, 3*time.Second, 25*time.Millisecond)

	require.NoError(t, svc.Redispatch(log.ID))
	require.Eventually(t, func() bool { return hits.Load() == 2 }, 3*time.Second, 25*time.Millisecond)

	require.Error(t, svc.Redispatch("no-such-event"))

	require.NoError(t, db.Model(&models.WebhookModel{}).
		Where("id = ?", hook.ID).Update("enabled", false).Error)
	require.Error(t, svc.Redispatch(log.ID), "disabled hooks refuse replays")
}

func TestDeleteClearsDeliveryLog(t *testing.T) {
	db, svc := setupWebhook(t)

	hook, err := svc.Create(&CreateWebhookDTO{PayloadURL: "https://example.com/hook", Events: []string{"all"}})
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.WebhookEventModel{
		HookID: hook.ID, Event: "ENTRY_CREATE", Timestamp: time.Now(),
	}).Error)

	require.NoError(t, svc.Delete(hook.ID))

	items, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, items)

	var n int64
	db.Model(&models.WebhookEventModel{}).Where("hook_id = ?", hook.ID).Count(&n)
	assert.Zero(t, n)
}

func TestWebhookRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, svc := setupWebhook(t)

	r := gin.New()
	rg := r.Group("/api/v2")
	passthrough := func(c *gin.Context) { c.Next() }
	NewHandler(svc).RegisterRoutes(rg, passthrough)

	body := bytes.NewBufferString(`{"payloadUrl":"https://example.com/hook","events":["entry_create","mint_success"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/webhooks", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	_, leaked := created["secret"]
	assert.False(t, leaked, "the secret never leaves the server")
	assert.ElementsMatch(t, []interface{}{"ENTRY_CREATE", "MINT_SUCCESS"}, created["events"])
	hookID := created["id"].(string)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/webhooks/events", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), notify.EventStreakUpdate)

	body = bytes.NewBufferString(`{"enabled":false}`)
	req = httptest.NewRequest(http.MethodPatch, "/api/v2/webhooks/"+hookID, body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	items, err := svc.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Enabled)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v2/webhooks/"+hookID, nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	items, err = svc.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}
