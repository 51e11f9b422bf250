package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
)

func setupInsight(t *testing.T) (*gin.Engine, *Service, *appconfigs.Service, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rc, err := pkgredis.Connect("redis://" + mr.Addr())
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.UserModel{},
		&models.EntryModel{},
		&models.EntryInsightModel{},
		&models.OptionModel{},
	))

	cfgSvc := appconfigs.NewService(db)
	svc := NewService(db, cfgSvc, taskqueue.NewService(rc))

	r := gin.New()
	api := r.Group("/api/v2")
	NewHandler(svc).RegisterRoutes(api, func(c *gin.Context) { c.Next() })
	return r, svc, cfgSvc, db
}

func seedInsightEntry(t *testing.T, db *gorm.DB, content, mood string) *models.EntryModel {
	t.Helper()
	owner := &models.UserModel{Username: "journaler", Name: "The Journaler"}
	require.NoError(t, db.Create(owner).Error)

	entry := &models.EntryModel{
		UserID:    owner.ID,
		Content:   content,
		Mood:      mood,
		MintState: models.MintStateUnminted,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

// enableInsightProvider switches insights on, pointed at an
// OpenAI-compatible gateway under the given endpoint.
func enableInsightProvider(t *testing.T, cfgSvc *appconfigs.Service, endpoint string) {
	t.Helper()
	raw := fmt.Sprintf(`{
		"providers": [{
			"id": "local",
			"name": "Local Gateway",
			"type": "OpenAI-Compatible",
			"api_key": "test-key",
			"endpoint": %q,
			"default_model": "tiny-journal",
			"enabled": true
		}],
		"insight_model": {"provider_id": "local", "model": ""},
		"enable_insights": true,
		"language": "en"
	}`, endpoint)
	_, err := cfgSvc.Patch(map[string]json.RawMessage{"ai": json.RawMessage(raw)})
	require.NoError(t, err)
}

// fakeChatServer answers chat completions with a fixed model reply and
// counts how often it was hit.
func fakeChatServer(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(gin.H{
			"choices": []gin.H{{"message": gin.H{"content": reply}}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestInsightHashRevisions(t *testing.T) {
	base := insightHash("e1", "walked along the river", "calm")
	assert.Len(t, base, 64)
	assert.Equal(t, base, insightHash("e1", "walked along the river", "calm"))

	assert.NotEqual(t, base, insightHash("e1", "walked along the canal", "calm"))
	assert.NotEqual(t, base, insightHash("e1", "walked along the river", "tired"))
	assert.NotEqual(t, base, insightHash("e2", "walked along the river", "calm"))
}

func TestSelectAIProvider(t *testing.T) {
	cfg := config.AIOptions{Providers: []config.AIProvider{
		{ID: "a", Enabled: false, DefaultModel: "m0"},
		{ID: "b", Enabled: true, DefaultModel: "m1"},
		{ID: "c", Enabled: true, DefaultModel: "m2"},
	}}

	picked := selectAIProvider(cfg, nil)
	require.NotNil(t, picked)
	assert.Equal(t, "b", picked.ID)

	picked = selectAIProvider(cfg, &config.AIModelAssignment{ProviderID: "c", Model: "override"})
	require.NotNil(t, picked)
	assert.Equal(t, "c", picked.ID)
	assert.Equal(t, "override", picked.DefaultModel)
	assert.Equal(t, "m2", cfg.Providers[2].DefaultModel, "override must not mutate stored config")

	picked = selectAIProvider(cfg, &config.AIModelAssignment{ProviderID: "a"})
	require.NotNil(t, picked)
	assert.Equal(t, "b", picked.ID, "disabled assignment falls back to first enabled")

	assert.Nil(t, selectAIProvider(config.AIOptions{}, nil))
}

func TestUnmarshalAIJSON(t *testing.T) {
	var out struct {
		Reflection string `json:"reflection"`
	}

	require.NoError(t, unmarshalAIJSON("```json\n{\"reflection\":\"rest\"}\n```", &out))
	assert.Equal(t, "rest", out.Reflection)

	out.Reflection = ""
	require.NoError(t, unmarshalAIJSON(`Sure! {"reflection":"breathe"} Hope this helps.`, &out))
	assert.Equal(t, "breathe", out.Reflection)

	assert.Error(t, unmarshalAIJSON("no json here", &out))
}

func TestNormalizeEndpoints(t *testing.T) {
	assert.Equal(t, "https://gw.local/v1", normalizeOpenAIBaseURL("https://gw.local"))
	assert.Equal(t, "https://gw.local/v1", normalizeOpenAIBaseURL("https://gw.local/v1/"))
	assert.Equal(t, "", normalizeOpenAIBaseURL("  "))

	assert.Equal(t, "https://api.openai.com", normalizeOpenAICompatibleEndpoint(""))
	assert.Equal(t, "https://gw.local", normalizeOpenAICompatibleEndpoint("https://gw.local/v1/"))

	assert.Equal(t, "https://api.anthropic.com/v1/models", normalizeModelsEndpoint("", "https://api.anthropic.com/v1/models", "/v1"))
	assert.Equal(t, "https://gw.local/v1/models", normalizeModelsEndpoint("https://gw.local/v1", "https://api.openai.com/v1/models", "/v1"))
	assert.Equal(t, "https://gw.local/v1/models", normalizeModelsEndpoint("https://gw.local/v1/models", "https://api.openai.com/v1/models", "/v1"))
}

func TestGetInsightFollowsEntryRevision(t *testing.T) {
	_, svc, _, db := setupInsight(t)
	entry := seedInsightEntry(t, db, "Walked along the river before work.", "calm")

	got, err := svc.GetInsight(entry)
	require.NoError(t, err)
	assert.Nil(t, got)

	hash := insightHash(entry.ID, entry.Content, entry.Mood)
	require.NoError(t, db.Create(&models.EntryInsightModel{
		Hash:    hash,
		EntryID: entry.ID,
		Content: "You let the water set the pace today.",
	}).Error)

	got, err = svc.GetInsight(entry)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "You let the water set the pace today.", got.Content)

	// An edit moves the entry to a new revision; the old reflection no
	// longer applies.
	require.NoError(t, db.Model(entry).Update("content", "Walked along the canal before work.").Error)
	fresh, err := svc.fetchEntry(entry.ID)
	require.NoError(t, err)
	got, err = svc.GetInsight(fresh)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsightsDisabledByDefault(t *testing.T) {
	r, svc, _, db := setupInsight(t)
	entry := seedInsightEntry(t, db, "Quiet morning.", "calm")

	_, err := svc.EnqueueInsight(context.Background(), entry.ID)
	assert.ErrorIs(t, err, errInsightsDisabled)

	body := strings.NewReader(fmt.Sprintf(`{"entryId":%q}`, entry.ID))
	req := httptest.NewRequest(http.MethodPost, "/api/v2/ai/insights/generate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/insights/entry/"+entry.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateInsightNow(t *testing.T) {
	_, svc, cfgSvc, db := setupInsight(t)
	srv, hits := fakeChatServer(t, `{"reflection":"You noticed the rain and let it slow you down."}`)
	enableInsightProvider(t, cfgSvc, srv.URL)

	entry := seedInsightEntry(t, db, "Rain all afternoon. I stayed in and read.", "calm")

	insight, err := svc.GenerateInsightNow(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "You noticed the rain and let it slow you down.", insight.Content)
	assert.Equal(t, "Local Gateway", insight.Provider)
	assert.Equal(t, insightHash(entry.ID, entry.Content, entry.Mood), insight.Hash)
	assert.Equal(t, int32(1), hits.Load())

	// The same revision is served from cache, not regenerated.
	again, err := svc.GenerateInsightNow(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, insight.ID, again.ID)
	assert.Equal(t, int32(1), hits.Load())

	var count int64
	require.NoError(t, db.Model(&models.EntryInsightModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGenerateInsightEndpoint(t *testing.T) {
	r, _, cfgSvc, db := setupInsight(t)
	srv, _ := fakeChatServer(t, `{"reflection":"One small walk still counted."}`)
	enableInsightProvider(t, cfgSvc, srv.URL)

	entry := seedInsightEntry(t, db, "Only managed a short walk today.", "tired")

	body := strings.NewReader(fmt.Sprintf(`{"entryId":%q}`, entry.ID))
	req := httptest.NewRequest(http.MethodPost, "/api/v2/ai/insights/generate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "One small walk still counted.")

	body = strings.NewReader(`{"entryId":"missing-entry"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v2/ai/insights/generate", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v2/ai/insights/generate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetInsightForEntryOnlyDb(t *testing.T) {
	r, _, _, db := setupInsight(t)
	entry := seedInsightEntry(t, db, "Slept badly, wrote anyway.", "restless")

	req := httptest.NewRequest(http.MethodGet, "/api/v2/ai/insights/entry/"+entry.ID+"?onlyDb=true", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, db.Create(&models.EntryInsightModel{
		Hash:    insightHash(entry.ID, entry.Content, entry.Mood),
		EntryID: entry.ID,
		Content: "Writing through a rough night is its own kind of rest.",
	}).Error)

	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/insights/entry/"+entry.ID+"?onlyDb=true", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "its own kind of rest")
}

func TestQueuedGenerationCompletes(t *testing.T) {
	r, svc, cfgSvc, db := setupInsight(t)
	srv, _ := fakeChatServer(t, `{"reflection":"The kitchen smell stayed with you all day."}`)
	enableInsightProvider(t, cfgSvc, srv.URL)

	entry := seedInsightEntry(t, db, "Baked bread with my sister.", "happy")

	req := httptest.NewRequest(http.MethodGet, "/api/v2/ai/insights/entry/"+entry.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.TaskID)

	require.Eventually(t, func() bool {
		task, err := svc.taskSvc.GetByID(context.Background(), accepted.TaskID)
		if err != nil || task == nil {
			return false
		}
		return task.Status == taskqueue.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	var insight models.EntryInsightModel
	require.NoError(t, db.Where("entry_id = ?", entry.ID).First(&insight).Error)
	assert.Equal(t, "The kitchen smell stayed with you all day.", insight.Content)

	// The cached reflection is served directly now.
	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/insights/entry/"+entry.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSaveInsightPrunesOldRevisions(t *testing.T) {
	_, svc, _, db := setupInsight(t)
	entry := seedInsightEntry(t, db, "First draft.", "calm")
	provider := &config.AIProvider{ID: "local", Name: "Local Gateway"}

	_, err := svc.saveInsight(entry.ID, "hash-old", provider, "Reflection for the old revision.")
	require.NoError(t, err)
	_, err = svc.saveInsight(entry.ID, "hash-new", provider, "Reflection for the new revision.")
	require.NoError(t, err)

	var rows []models.EntryInsightModel
	require.NoError(t, db.Where("entry_id = ?", entry.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "hash-new", rows[0].Hash)
}

func TestUpdateAndDeleteInsight(t *testing.T) {
	r, svc, _, db := setupInsight(t)
	entry := seedInsightEntry(t, db, "Quiet evening.", "calm")

	hash := insightHash(entry.ID, entry.Content, entry.Mood)
	row := &models.EntryInsightModel{Hash: hash, EntryID: entry.ID, Content: "Original reflection."}
	require.NoError(t, db.Create(row).Error)

	req := httptest.NewRequest(http.MethodPatch, "/api/v2/ai/insights/"+row.ID, strings.NewReader(`{"content":"Reworded by hand."}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.EntryInsightModel
	require.NoError(t, db.First(&updated, "id = ?", row.ID).Error)
	assert.Equal(t, "Reworded by hand.", updated.Content)

	req = httptest.NewRequest(http.MethodDelete, "/api/v2/ai/insights/"+row.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v2/ai/insights/"+row.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The hash is free again after a delete, so the same revision can
	// be regenerated.
	_, err := svc.saveInsight(entry.ID, hash, nil, "Generated once more.")
	require.NoError(t, err)
}

func TestModelsEndpoints(t *testing.T) {
	r, _, cfgSvc, _ := setupInsight(t)
	enableInsightProvider(t, cfgSvc, "https://gw.local")

	req := httptest.NewRequest(http.MethodGet, "/api/v2/ai/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Local Gateway")
	assert.Contains(t, w.Body.String(), "tiny-journal")

	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/models/local", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"providerId":"local"`)

	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/models/nope", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFetchModelsList(t *testing.T) {
	r, _, cfgSvc, _ := setupInsight(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"m-1"},{"id":"m-2","name":"Model Two"},{"id":"m-1"}]}`)
	}))
	t.Cleanup(srv.Close)

	raw := fmt.Sprintf(`{
		"providers": [{
			"id": "local",
			"name": "Local Gateway",
			"type": "OpenAI",
			"api_key": "test-key",
			"endpoint": %q,
			"default_model": "tiny-journal",
			"enabled": true
		}]
	}`, srv.URL)
	_, err := cfgSvc.Patch(map[string]json.RawMessage{"ai": json.RawMessage(raw)})
	require.NoError(t, err)

	// The stored provider fills in everything the request omits.
	req := httptest.NewRequest(http.MethodPost, "/api/v2/ai/models/list", strings.NewReader(`{"providerId":"local"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "m-1")
	assert.Contains(t, w.Body.String(), "Model Two")
	assert.Equal(t, 1, strings.Count(w.Body.String(), `"id":"m-1"`), "duplicate model ids are collapsed")

	req = httptest.NewRequest(http.MethodPost, "/api/v2/ai/models/list", strings.NewReader(`{"type":"OpenAI"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "provider type and api key are required")
}

func TestStreamInsightGenerate(t *testing.T) {
	r, _, cfgSvc, db := setupInsight(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"{\\\"reflection\\\":\\\"You\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" rested.\\\"}\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	enableInsightProvider(t, cfgSvc, srv.URL)

	entry := seedInsightEntry(t, db, "Did nothing today, on purpose.", "calm")

	req := httptest.NewRequest(http.MethodGet, "/api/v2/ai/insights/entry/"+entry.ID+"/generate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `"type":"token"`)
	assert.Contains(t, body, `"type":"done"`)
	assert.Contains(t, body, "You rested.")

	var insight models.EntryInsightModel
	require.NoError(t, db.Where("entry_id = ?", entry.ID).First(&insight).Error)
	assert.Equal(t, "You rested.", insight.Content)
}

func TestTaskLifecycle(t *testing.T) {
	r, svc, cfgSvc, db := setupInsight(t)
	srv, _ := fakeChatServer(t, `{"reflection":"Steady days add up."}`)
	enableInsightProvider(t, cfgSvc, srv.URL)

	entry := seedInsightEntry(t, db, "Another ordinary day, logged.", "calm")

	task, err := svc.EnqueueInsight(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := svc.taskSvc.GetByID(context.Background(), task.ID)
		return err == nil && got != nil && got.Status == taskqueue.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/ai/tasks?type=entry_insight", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), task.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/tasks/entry/"+entry.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), task.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/v2/ai/tasks/"+task.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(taskqueue.TaskCompleted))

	// A finished task refuses cancellation.
	req = httptest.NewRequest(http.MethodPost, "/api/v2/ai/tasks/"+task.ID+"/cancel", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	beforeMS := time.Now().Add(time.Hour).UnixMilli()
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v2/ai/tasks?before=%d", beforeMS), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	got, err := svc.taskSvc.GetByID(context.Background(), task.ID)
	assert.True(t, err != nil || got == nil, "completed task should be swept")
}

func TestRetryFailedTask(t *testing.T) {
	r, svc, cfgSvc, db := setupInsight(t)

	// A provider endpoint that always errors leaves the task failed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"error":{"message":"gateway down"}}`, http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	enableInsightProvider(t, cfgSvc, srv.URL)

	entry := seedInsightEntry(t, db, "Tried to write, gateway was down.", "tired")

	task, err := svc.EnqueueInsight(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := svc.taskSvc.GetByID(context.Background(), task.ID)
		return err == nil && got != nil && got.Status == taskqueue.TaskFailed
	}, 2*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/ai/tasks/"+task.ID+"/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var fresh taskqueue.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fresh))
	assert.NotEqual(t, task.ID, fresh.ID, "a failed task frees its dedup slot")
}
