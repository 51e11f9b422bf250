// Package aggregate serves the app's launch payload and the numbers
// behind the stats screen. Everything reads the local database; nothing
// here touches the cloud mirror.
package aggregate

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/journal"
	"github.com/clarity-app/core/internal/modules/system/core/configs"
)

// buildAggregate assembles the one payload the app requests on launch,
// so a cold start costs a single round trip.
func buildAggregate(ctx context.Context, db *gorm.DB, cfgSvc *configs.Service, svc *journal.Service) (*aggregateData, error) {
	var user models.UserModel
	if err := db.First(&user).Error; err != nil {
		return nil, err
	}

	cfg, err := cfgSvc.Get()
	if err != nil {
		return nil, err
	}

	var cnt countInfo
	db.Model(&models.EntryModel{}).Where("user_id = ?", user.ID).Count(&cnt.Entries)
	db.Model(&models.EntryModel{}).Where("user_id = ? AND is_minted = ?", user.ID, true).Count(&cnt.Minted)
	db.Model(&models.EntryModel{}).Where("user_id = ? AND is_synced = ?", user.ID, false).Count(&cnt.Unsynced)
	db.Model(&models.EntryInsightModel{}).Count(&cnt.Insights)
	db.Model(&models.EntryModel{}).Where("user_id = ?", user.ID).
		Select("COALESCE(SUM(word_count), 0)").Scan(&cnt.Words)

	var latest *latestEntry
	var latestRow models.EntryModel
	if err := db.Select("id, mood, created_at").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		First(&latestRow).Error; err == nil {
		latest = &latestEntry{ID: latestRow.ID, Mood: latestRow.Mood, Created: latestRow.CreatedAt}
	}

	moods, err := topMoods(db, user.ID, 5)
	if err != nil {
		return nil, err
	}

	var sync *journal.SyncStatusDTO
	if svc != nil {
		if status, err := svc.Status(ctx, user.ID); err == nil {
			sync = status
		}
	}

	return &aggregateData{
		User: userSummary{
			ID:            user.ID,
			Username:      user.Username,
			Name:          user.Name,
			Avatar:        user.Avatar,
			WalletAddress: user.WalletAddress,
			LastEntryDate: user.LastEntryDate,
			Timezone:      user.Preferences.Timezone,
		},
		Streak: streakInfo{
			Current:     user.CurrentStreak,
			Longest:     user.LongestStreak,
			NextBonusIn: nextTierDays(user.CurrentStreak, cfg.Rewards.StreakTiers),
		},
		Points: pointsInfo{
			Total:   user.TotalPoints,
			Rewards: cfg.Rewards,
		},
		Count:  cnt,
		Sync:   sync,
		Latest: latest,
		Moods:  moods,
		Feature: featureFlags{
			Macros:   cfg.Templates.Macros,
			Insights: cfg.AI.EnableInsights && cfg.AI.InsightModel != nil,
			Minting:  user.WalletAddress != "",
		},
	}, nil
}

func topMoods(db *gorm.DB, userID string, limit int) ([]moodCount, error) {
	out := make([]moodCount, 0, limit)
	err := db.Model(&models.EntryModel{}).
		Select("mood, COUNT(*) AS count").
		Where("user_id = ? AND mood <> ''", userID).
		Group("mood").
		Order("count DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// moodCalendar groups a month's entries by calendar day in the user's
// zone, the same bucketing the streak walk uses.
func moodCalendar(db *gorm.DB, user *models.UserModel, year, month int) ([]calendarDay, error) {
	loc := userLocation(user)
	start, end := monthRange(year, month, time.Now(), loc)

	var rows []models.EntryModel
	if err := db.Select("id, mood, clarity_points, is_minted, created_at").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", user.ID, start, end).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byDay := map[string]*calendarDay{}
	order := make([]string, 0, 31)
	for _, row := range rows {
		key := row.CreatedAt.In(loc).Format("2006-01-02")
		day, ok := byDay[key]
		if !ok {
			day = &calendarDay{Date: key}
			byDay[key] = day
			order = append(order, key)
		}
		day.Entries++
		day.Points += int64(row.ClarityPoints)
		// The latest entry's mood colors the calendar cell.
		if row.Mood != "" {
			day.Mood = row.Mood
		}
		if row.IsMinted {
			day.Minted = true
		}
	}

	out := make([]calendarDay, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out, nil
}
