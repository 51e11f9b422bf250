package prompt

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/models"
)

func setupPrompt(t *testing.T) (*gin.Engine, *Service, *gorm.DB, *models.UserModel) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.UserModel{}, &models.PromptModel{}))

	owner := &models.UserModel{
		Username:    "journaler",
		Name:        "The Journaler",
		Preferences: models.UserPreferences{Timezone: "Asia/Tokyo"},
	}
	require.NoError(t, db.Create(owner).Error)

	svc := NewService(db)
	r := gin.New()
	api := r.Group("/api/v2")
	NewHandler(svc).RegisterRoutes(api, func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, owner.ID)
		c.Next()
	})
	return r, svc, db, owner
}

func TestSeedDefaultsRunsOnce(t *testing.T) {
	_, svc, db, _ := setupPrompt(t)

	added, err := svc.SeedDefaults()
	require.NoError(t, err)
	require.Greater(t, added, 0)

	var count int64
	require.NoError(t, db.Model(&models.PromptModel{}).Count(&count).Error)
	assert.Equal(t, int64(added), count)

	again, err := svc.SeedDefaults()
	require.NoError(t, err)
	assert.Zero(t, again, "seeding must not run on a non-empty table")

	// The owner clearing the table re-arms the seed on next boot.
	require.NoError(t, db.Unscoped().Where("1 = 1").Delete(&models.PromptModel{}).Error)
	added, err = svc.SeedDefaults()
	require.NoError(t, err)
	assert.Greater(t, added, 0)
}

func TestPromptOfTheDay(t *testing.T) {
	_, svc, db, owner := setupPrompt(t)
	_, err := svc.SeedDefaults()
	require.NoError(t, err)

	// 14:30 UTC is 23:30 in Tokyo; an hour later Tokyo has crossed midnight.
	beforeMidnight := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	afterMidnight := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

	svc.now = func() time.Time { return beforeMidnight }
	first, day, err := svc.Today(owner.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "2026-03-01", day)

	second, _, err := svc.Today(owner.ID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID, "the pick must hold for the whole local day")

	// A fresh service over the same table agrees on the pick.
	other := NewService(db)
	other.now = svc.now
	third, _, err := other.Today(owner.ID)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, first.ID, third.ID)

	svc.now = func() time.Time { return afterMidnight }
	_, nextDay, err := svc.Today(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", nextDay, "the day must roll at the owner's midnight, not UTC's")

	// An unknown caller buckets on UTC, where it is still March 1st.
	_, utcDay, err := svc.Today("")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", utcDay)
}

func TestTodayOnEmptyTable(t *testing.T) {
	_, svc, _, owner := setupPrompt(t)
	item, day, err := svc.Today(owner.ID)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.NotEmpty(t, day)
}

func TestRandomRespectsCategory(t *testing.T) {
	_, svc, _, _ := setupPrompt(t)

	item, err := svc.Random("")
	require.NoError(t, err)
	assert.Nil(t, item, "an empty table draws nothing")

	for i := 0; i < 3; i++ {
		_, err := svc.Create(&CreatePromptDTO{Text: "about gratitude", Category: "gratitude"})
		require.NoError(t, err)
	}
	only, err := svc.Create(&CreatePromptDTO{Text: "about goals", Category: "goals"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		item, err := svc.Random("goals")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, only.ID, item.ID)
	}

	item, err = svc.Random("")
	require.NoError(t, err)
	assert.NotNil(t, item)

	item, err = svc.Random("no-such-category")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestPromptEndpoints(t *testing.T) {
	r, _, _, _ := setupPrompt(t)

	body := bytes.NewBufferString(`{"text":"What surprised you today?","category":"reflection"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/prompts", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created promptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "What surprised you today?", created.Text)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/prompts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)
	assert.Contains(t, w.Body.String(), `"pagination"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/prompts/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Partial update touches only the fields present in the body.
	patch := bytes.NewBufferString(`{"category":"growth"}`)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/v2/prompts/"+created.ID, patch)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/prompts/"+created.ID, nil))
	var got promptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "growth", got.Category)
	assert.Equal(t, "What surprised you today?", got.Text)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/prompts/today", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"date"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v2/prompts/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/prompts/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRejectsBlankText(t *testing.T) {
	r, _, _, _ := setupPrompt(t)

	for _, payload := range []string{`{}`, `{"text":"   "}`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v2/prompts", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %s must be rejected", payload)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	r, svc, _, _ := setupPrompt(t)

	for _, c := range []string{"mood", "gratitude", "mood", ""} {
		_, err := svc.Create(&CreatePromptDTO{Text: "anything at all", Category: c})
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/prompts/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"gratitude", "mood"}, resp.Data)
}
