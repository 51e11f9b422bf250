package aggregate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/system/core/configs"
)

func setupAggregate(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.UserModel{}, &models.EntryModel{}, &models.MintAuditModel{},
		&models.EntryInsightModel{}, &models.OptionModel{},
		&models.UserSession{}, &models.AuthnModel{},
	))

	r := gin.New()
	rg := r.Group("/api/v2")
	passthrough := func(c *gin.Context) { c.Next() }
	RegisterRoutes(rg, db, configs.NewService(db), nil, nil, nil, passthrough)
	return db, r
}

func seedAggregateOwner(t *testing.T, db *gorm.DB) *models.UserModel {
	t.Helper()
	user := &models.UserModel{
		Username:      "journaler",
		Name:          "The Journaler",
		Password:      "x",
		WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		TotalPoints:   150,
		CurrentStreak: 5,
		LongestStreak: 9,
		Preferences:   models.UserPreferences{Timezone: "UTC"},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedAggregateEntry(t *testing.T, db *gorm.DB, userID string, at time.Time, mood string, mutate func(*models.EntryModel)) *models.EntryModel {
	t.Helper()
	entry := &models.EntryModel{
		UserID:    userID,
		Content:   "a quiet page of the journal",
		Mood:      mood,
		WordCount: 6,
		MintState: models.MintStateUnminted,
	}
	entry.CreatedAt = at
	if mutate != nil {
		mutate(entry)
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func getJSON(t *testing.T, r *gin.Engine, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func TestAggregateRequiresOwner(t *testing.T) {
	_, r := setupAggregate(t)
	code, _ := getJSON(t, r, "/api/v2/aggregate")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAggregatePayload(t *testing.T) {
	db, r := setupAggregate(t)
	user := seedAggregateOwner(t, db)

	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.IsSynced = true
	})
	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 13, 9, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.IsSynced = true
		e.IsMinted = true
		e.MintState = models.MintStateMinted
	})
	latest := seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC), "excited", nil)

	code, body := getJSON(t, r, "/api/v2/aggregate")
	require.Equal(t, http.StatusOK, code)

	userOut := body["user"].(map[string]interface{})
	assert.Equal(t, "journaler", userOut["username"])

	streak := body["streak"].(map[string]interface{})
	assert.EqualValues(t, 5, streak["current"])
	assert.EqualValues(t, 9, streak["longest"])
	// Default tiers reward 3, 7 and 30 days; at 5 the next payout is at 7.
	assert.EqualValues(t, 2, streak["next_bonus_in"])

	points := body["points"].(map[string]interface{})
	assert.EqualValues(t, 150, points["total"])
	rewards := points["rewards"].(map[string]interface{})
	assert.EqualValues(t, config.DefaultFullConfig().Rewards.DailyEntryPoints, rewards["daily_entry_points"])

	count := body["count"].(map[string]interface{})
	assert.EqualValues(t, 3, count["entries"])
	assert.EqualValues(t, 1, count["minted"])
	assert.EqualValues(t, 1, count["unsynced"])
	assert.EqualValues(t, 18, count["words"])

	latestOut := body["latest_entry"].(map[string]interface{})
	assert.Equal(t, latest.ID, latestOut["id"])
	assert.Equal(t, "excited", latestOut["mood"])

	moods := body["top_moods"].([]interface{})
	require.NotEmpty(t, moods)
	first := moods[0].(map[string]interface{})
	assert.Equal(t, "calm", first["mood"])
	assert.EqualValues(t, 2, first["count"])

	features := body["features"].(map[string]interface{})
	assert.Equal(t, true, features["minting"])
	assert.Equal(t, true, features["macros"])
	assert.Equal(t, false, features["insights"])

	assert.Nil(t, body["sync"])
}

func TestMoodCalendarGroupsByDay(t *testing.T) {
	db, r := setupAggregate(t)
	user := seedAggregateOwner(t, db)

	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.ClarityPoints = 15
	})
	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 13, 8, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.ClarityPoints = 10
	})
	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 13, 21, 0, 0, 0, time.UTC), "excited", func(e *models.EntryModel) {
		e.ClarityPoints = 10
		e.IsMinted = true
	})
	// A different month stays out of the response.
	seedAggregateEntry(t, db, user.ID, time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC), "sad", nil)

	code, body := getJSON(t, r, "/api/v2/aggregate/calendar?year=2025&month=6")
	require.Equal(t, http.StatusOK, code)

	days := body["days"].([]interface{})
	require.Len(t, days, 2)

	first := days[0].(map[string]interface{})
	assert.Equal(t, "2025-06-12", first["date"])
	assert.EqualValues(t, 1, first["entries"])
	assert.Equal(t, "calm", first["mood"])

	second := days[1].(map[string]interface{})
	assert.Equal(t, "2025-06-13", second["date"])
	assert.EqualValues(t, 2, second["entries"])
	// The evening entry colors the cell.
	assert.Equal(t, "excited", second["mood"])
	assert.EqualValues(t, 20, second["points"])
	assert.Equal(t, true, second["minted"])
}

func TestStatEndpoint(t *testing.T) {
	db, r := setupAggregate(t)
	user := seedAggregateOwner(t, db)

	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC), "calm", nil)
	seedAggregateEntry(t, db, user.ID, time.Now(), "calm", func(e *models.EntryModel) {
		e.IsSynced = true
	})

	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)
	revoked := time.Now()
	require.NoError(t, db.Create(&models.UserSession{UserID: user.ID, ExpiresAt: future}).Error)
	require.NoError(t, db.Create(&models.UserSession{UserID: user.ID, ExpiresAt: future, RevokedAt: &revoked}).Error)
	require.NoError(t, db.Create(&models.UserSession{UserID: user.ID, ExpiresAt: past}).Error)

	require.NoError(t, db.Create(&models.AuthnModel{Name: "Phone", CredentialID: []byte("c1"), CredentialPublicKey: []byte("k1")}).Error)

	require.NoError(t, db.Create(&models.MintAuditModel{EntryID: "e", State: "failed"}).Error)
	require.NoError(t, db.Create(&models.MintAuditModel{EntryID: "e", State: "succeeded"}).Error)

	code, body := getJSON(t, r, "/api/v2/aggregate/stat")
	require.Equal(t, http.StatusOK, code)

	assert.EqualValues(t, 2, body["entries"])
	assert.EqualValues(t, 1, body["today_entries"])
	assert.EqualValues(t, 1, body["unsynced"])
	assert.EqualValues(t, 1, body["failed_mints"])
	assert.EqualValues(t, 12, body["words"])
	assert.EqualValues(t, 150, body["total_clarity_points"])
	assert.EqualValues(t, 1, body["sessions"])
	assert.EqualValues(t, 1, body["passkeys"])
	assert.EqualValues(t, 0, body["devices_online"])
	assert.Equal(t, "0", body["today_max_devices"])
}

func TestTagCloud(t *testing.T) {
	db, r := setupAggregate(t)
	user := seedAggregateOwner(t, db)

	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.Tags = models.StringArray{"walk", "coffee"}
	})
	seedAggregateEntry(t, db, user.ID, time.Date(2025, 6, 13, 9, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.Tags = models.StringArray{"walk"}
	})

	code, body := getJSON(t, r, "/api/v2/aggregate/stat/tag-cloud")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	top := data[0].(map[string]interface{})
	assert.Equal(t, "walk", top["tag"])
	assert.EqualValues(t, 2, top["count"])
}

func TestTimelineFiltersByYear(t *testing.T) {
	db, r := setupAggregate(t)
	user := seedAggregateOwner(t, db)

	seedAggregateEntry(t, db, user.ID, time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC), "calm", nil)
	in2025 := seedAggregateEntry(t, db, user.ID, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), "calm", func(e *models.EntryModel) {
		e.Content = "A long spring walk along the river, with a stop for coffee on the way home."
	})

	code, body := getJSON(t, r, "/api/v2/aggregate/timeline?year=2025")
	require.Equal(t, http.StatusOK, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	item := data[0].(map[string]interface{})
	assert.Equal(t, in2025.ID, item["id"])
	assert.NotEmpty(t, item["preview"])
}

func TestNextTierDays(t *testing.T) {
	tiers := config.DefaultFullConfig().Rewards.StreakTiers

	assert.Equal(t, 3, nextTierDays(0, tiers))
	assert.Equal(t, 4, nextTierDays(3, tiers))
	assert.Equal(t, 2, nextTierDays(5, tiers))
	assert.Equal(t, 23, nextTierDays(7, tiers))
	assert.Equal(t, 0, nextTierDays(30, tiers))
	assert.Equal(t, 0, nextTierDays(45, tiers))
}

func TestEntryPreview(t *testing.T) {
	assert.Equal(t, "short note", entryPreview("short  note", 120))

	long := entryPreview("word word word word word word", 10)
	assert.True(t, len([]rune(long)) <= 11)
	assert.Contains(t, long, "…")
}
