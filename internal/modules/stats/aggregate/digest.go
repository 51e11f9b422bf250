package aggregate

import (
	"time"

	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
)

// WeeklyDigest summarizes the owner's last seven days for the recap
// email. Day and mood bucketing happens in the owner's zone, the same
// way the calendar view buckets.
type WeeklyDigest struct {
	WeekStart    string
	WeekEnd      string
	EntryCount   int
	DaysWritten  int
	PointsEarned int
	MintedCount  int
	TopMood      string
}

// BuildWeeklyDigest folds the seven days ending at until into one digest.
func BuildWeeklyDigest(db *gorm.DB, user *models.UserModel, until time.Time) (WeeklyDigest, error) {
	loc := userLocation(user)
	end := until.In(loc)
	start := end.AddDate(0, 0, -7)

	var rows []models.EntryModel
	if err := db.Select("id, mood, clarity_points, created_at").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", user.ID, start, end).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return WeeklyDigest{}, err
	}

	d := WeeklyDigest{
		WeekStart: start.Format("Jan 2"),
		WeekEnd:   end.Format("Jan 2, 2006"),
	}
	days := map[string]struct{}{}
	moods := map[string]int{}
	for _, row := range rows {
		d.EntryCount++
		d.PointsEarned += row.ClarityPoints
		days[row.CreatedAt.In(loc).Format("2006-01-02")] = struct{}{}
		if row.Mood != "" {
			moods[row.Mood]++
		}
	}
	d.DaysWritten = len(days)

	// Alphabetical tie-break keeps the pick stable across runs.
	best := 0
	for mood, n := range moods {
		switch {
		case n > best:
			best, d.TopMood = n, mood
		case n == best && mood < d.TopMood:
			d.TopMood = mood
		}
	}

	// Minted-this-week counts by mint time, not write time; an old entry
	// minted during the window belongs in the recap.
	var minted int64
	if err := db.Model(&models.EntryModel{}).
		Where("user_id = ? AND minted_at >= ? AND minted_at < ?", user.ID, start, end).
		Count(&minted).Error; err != nil {
		return WeeklyDigest{}, err
	}
	d.MintedCount = int(minted)

	return d, nil
}
