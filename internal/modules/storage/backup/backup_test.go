package backup

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/models"
)

func openBackupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.UserModel{}, &models.UserSession{}, &models.APIToken{},
		&models.AuthnModel{}, &models.EntryModel{}, &models.MintAuditModel{},
		&models.EntryInsightModel{}, &models.OptionModel{},
	))
	return db
}

func TestBackupRoundTrip(t *testing.T) {
	src := openBackupTestDB(t)
	user := &models.UserModel{Username: "journaler", TotalPoints: 45, CurrentStreak: 3}
	require.NoError(t, src.Create(user).Error)
	entry := &models.EntryModel{
		UserID:  user.ID,
		Content: "Walked along the river before work.",
		Mood:    "calm",
		Tags:    models.StringArray{"morning", "walk"},
		Breakdown: models.PointsBreakdown{
			DailyEntry: 10, MoodTracking: 5, StreakBonus: 15, Total: 30,
		},
		ClarityPoints: 30,
	}
	require.NoError(t, src.Create(entry).Error)

	h := &Handler{db: src}
	buf, err := h.createBackupZip()
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names[backupManifestFile])
	assert.True(t, names[backupDBDir+"/users.bson"])
	assert.True(t, names[backupDBDir+"/entries.bson"])

	dst := openBackupTestDB(t)
	require.NoError(t, RestoreFromZip(dst, zr))

	var restoredUser models.UserModel
	require.NoError(t, dst.First(&restoredUser, "id = ?", user.ID).Error)
	assert.Equal(t, "journaler", restoredUser.Username)
	assert.Equal(t, 45, restoredUser.TotalPoints)

	var restoredEntry models.EntryModel
	require.NoError(t, dst.First(&restoredEntry, "id = ?", entry.ID).Error)
	assert.Equal(t, "Walked along the river before work.", restoredEntry.Content)
	assert.Equal(t, "calm", restoredEntry.Mood)
	assert.Equal(t, 30, restoredEntry.Breakdown.Total)
	assert.Equal(t, models.StringArray{"morning", "walk"}, restoredEntry.Tags)
}

// Archives from the old cloud database use mongo collection names,
// camelCase fields and ObjectID keys.
func TestRestoreFromLegacyMongoDump(t *testing.T) {
	userID := primitive.NewObjectID()
	entryDoc := map[string]interface{}{
		"_id":     primitive.NewObjectID(),
		"userId":  userID,
		"content": "First entry from the phone.",
		"mood":    "grateful",
		"pointsBreakdown": map[string]interface{}{
			"dailyEntry":   10,
			"moodTracking": 5,
			"streakBonus":  0,
			"nftMinting":   0,
			"total":        15,
		},
		"clarityPoints": 15,
		"isSynced":      true,
		"createdAt":     primitive.NewDateTimeFromTime(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)),
	}
	userDoc := map[string]interface{}{
		"_id":                userID,
		"username":           "journaler",
		"password":           "x",
		"totalClarityPoints": 15,
		"streak":             1,
		"created":            primitive.NewDateTimeFromTime(time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)),
	}

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	writeBSONDoc := func(name string, doc map[string]interface{}) {
		payload, err := bson.Marshal(doc)
		require.NoError(t, err)
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(payload)
		require.NoError(t, err)
	}
	writeBSONDoc("dump/clarity/users.bson", userDoc)
	writeBSONDoc("dump/clarity/journalentries.bson", entryDoc)
	require.NoError(t, w.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	db := openBackupTestDB(t)
	require.NoError(t, RestoreFromZip(db, zr))

	var user models.UserModel
	require.NoError(t, db.First(&user).Error)
	assert.Equal(t, userID.Hex(), user.ID)
	assert.Equal(t, 15, user.TotalPoints)
	assert.Equal(t, 1, user.CurrentStreak)

	var entry models.EntryModel
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, userID.Hex(), entry.UserID)
	assert.Equal(t, "grateful", entry.Mood)
	assert.True(t, entry.IsSynced)
	assert.Equal(t, 15, entry.Breakdown.Total)
	assert.Equal(t, 10, entry.Breakdown.DailyEntry)
}

func TestRestoreFoldsLegacyOptionRows(t *testing.T) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	payload, err := bson.Marshal(map[string]interface{}{
		"name":  "rewardOptions",
		"value": `{"dailyEntryPoints": 12, "moodTrackingPoints": 6}`,
	})
	require.NoError(t, err)
	f, err := w.Create("db/options.bson")
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	db := openBackupTestDB(t)
	require.NoError(t, RestoreFromZip(db, zr))

	var configRow models.OptionModel
	require.NoError(t, db.First(&configRow, "name = ?", "configs").Error)
	assert.Contains(t, configRow.Value, `"daily_entry_points":12`)
	assert.Contains(t, configRow.Value, `"mood_tracking_points":6`)
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"pointsBreakdown":    "points_breakdown",
		"NFTAddress":         "nft_address",
		"isSynced":           "is_synced",
		"created_at":         "created_at",
		"Total Points":       "total_points",
		"lastSyncedAt":       "last_synced_at",
		"totalClarityPoints": "total_clarity_points",
	}
	for in, want := range cases {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestRenderBackupObjectKey(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
	key := renderBackupObjectKey("", "backup-x.zip", now)
	assert.Equal(t, "backups/2025/06/backup-x.zip", key)

	key = renderBackupObjectKey("/archive//{Y}/{filename}", "b.zip", now)
	assert.Equal(t, "archive/2025/b.zip", key)
}

func TestBSONRowsRoundTrip(t *testing.T) {
	rows := []map[string]interface{}{
		{"id": "a", "n": int64(1)},
		{"id": "b", "n": int64(2)},
	}
	payload, err := encodeBSONRows(rows)
	require.NoError(t, err)

	decoded, err := decodeBSONRows(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "a", decoded[0]["id"])

	_, err = decodeBSONRows([]byte{0x01, 0x02})
	assert.Error(t, err)
}
