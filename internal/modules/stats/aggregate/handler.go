package aggregate

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/gateway/gateway"
	"github.com/clarity-app/core/internal/modules/journal"
	"github.com/clarity-app/core/internal/modules/system/core/configs"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/response"
)

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, cfgSvc *configs.Service, svc *journal.Service, hub *gateway.Hub, rc *pkgredis.Client, authMW gin.HandlerFunc) {
	g := rg.Group("/aggregate", authMW)

	g.GET("", func(c *gin.Context) {
		data, err := buildAggregate(c.Request.Context(), db, cfgSvc, svc)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.NotFoundMsg(c, "this journal is not set up yet")
				return
			}
			response.InternalError(c, err)
			return
		}
		response.OK(c, data)
	})

	g.GET("/calendar", func(c *gin.Context) {
		var user models.UserModel
		if err := db.First(&user).Error; err != nil {
			response.NotFoundMsg(c, "this journal is not set up yet")
			return
		}
		year := parseIntQuery(c.Query("year"), 0)
		month := parseIntQuery(c.Query("month"), 0)
		days, err := moodCalendar(db, &user, year, month)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		response.OK(c, gin.H{"days": days})
	})

	g.GET("/timeline", func(c *gin.Context) {
		sortDir := parseIntQuery(c.Query("sort"), 1)
		year := parseIntQuery(c.Query("year"), 0)

		order := "created_at ASC"
		if sortDir < 0 {
			order = "created_at DESC"
		}

		tx := db.Model(&models.EntryModel{}).Order(order)
		if year > 0 {
			var user models.UserModel
			loc := time.Local
			if err := db.First(&user).Error; err == nil {
				loc = userLocation(&user)
			}
			start := time.Date(year, 1, 1, 0, 0, 0, 0, loc)
			tx = tx.Where("created_at >= ? AND created_at < ?", start, start.AddDate(1, 0, 0))
		}

		var rows []models.EntryModel
		if err := tx.Find(&rows).Error; err != nil {
			response.InternalError(c, err)
			return
		}

		out := make([]timelineEntry, 0, len(rows))
		for _, row := range rows {
			out = append(out, timelineEntry{
				ID:        row.ID,
				Mood:      row.Mood,
				Weather:   row.Weather,
				Preview:   entryPreview(row.Content, 120),
				WordCount: row.WordCount,
				Points:    row.ClarityPoints,
				IsMinted:  row.IsMinted,
				Created:   row.CreatedAt,
				Modified:  row.UpdatedAt,
			})
		}
		response.OK(c, gin.H{"data": out})
	})

	g.GET("/stat", func(c *gin.Context) {
		var stat statResponse
		db.Model(&models.EntryModel{}).Count(&stat.Entries)
		db.Model(&models.EntryModel{}).Where("is_minted = ?", true).Count(&stat.Minted)
		db.Model(&models.EntryModel{}).Where("is_synced = ?", false).Count(&stat.Unsynced)
		db.Model(&models.MintAuditModel{}).Where("state = ?", "failed").Count(&stat.FailedMints)
		db.Model(&models.EntryInsightModel{}).Count(&stat.Insights)
		db.Model(&models.EntryModel{}).Select("COALESCE(SUM(word_count), 0)").Scan(&stat.Words)
		db.Model(&models.UserSession{}).
			Where("revoked_at IS NULL AND expires_at > ?", time.Now()).
			Count(&stat.Sessions)
		db.Model(&models.AuthnModel{}).Count(&stat.Passkeys)

		var user models.UserModel
		if err := db.First(&user).Error; err == nil {
			stat.TotalPoints = int64(user.TotalPoints)
			stat.CurrentStreak = int64(user.CurrentStreak)
			stat.LongestStreak = int64(user.LongestStreak)

			loc := userLocation(&user)
			todayStart := beginningOfDay(time.Now(), loc)
			db.Model(&models.EntryModel{}).
				Where("user_id = ? AND created_at >= ?", user.ID, todayStart).
				Count(&stat.TodayEntries)
		}

		stat.TodayMaxDevices = "0"
		stat.TodayConnects = "0"
		if hub != nil {
			stat.DevicesOnline = int64(hub.ClientCount(gateway.RoomOwner))
			stat.WidgetViewers = int64(hub.ClientCount(gateway.RoomPublic))
		}
		if rc != nil {
			dateKey := shortDateKey(time.Now())
			if peak, err := rc.Raw().HGet(c.Request.Context(), redisKeyMaxDevicesOnline, dateKey).Result(); err == nil && strings.TrimSpace(peak) != "" {
				stat.TodayMaxDevices = peak
			}
			if connects, err := rc.Raw().HGet(c.Request.Context(), redisKeyDeviceConnects, dateKey).Result(); err == nil && strings.TrimSpace(connects) != "" {
				stat.TodayConnects = connects
			}
		}
		response.OK(c, stat)
	})

	g.GET("/stat/mood-distribution", func(c *gin.Context) {
		var out []moodCount
		if err := db.Model(&models.EntryModel{}).
			Select("mood, COUNT(*) AS count").
			Where("mood <> ''").
			Group("mood").
			Order("count DESC").
			Scan(&out).Error; err != nil {
			response.InternalError(c, err)
			return
		}
		if out == nil {
			out = []moodCount{}
		}
		response.OK(c, out)
	})

	g.GET("/stat/tag-cloud", func(c *gin.Context) {
		var rows []struct{ Tags string }
		db.Model(&models.EntryModel{}).Select("tags").Find(&rows)

		counts := map[string]int64{}
		for _, row := range rows {
			var tags []string
			if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
				continue
			}
			for _, t := range tags {
				tag := strings.TrimSpace(t)
				if tag == "" {
					continue
				}
				counts[tag]++
			}
		}

		type tagCount struct {
			Tag   string `json:"tag"`
			Count int64  `json:"count"`
		}
		out := make([]tagCount, 0, len(counts))
		for tag, count := range counts {
			out = append(out, tagCount{Tag: tag, Count: count})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
		if len(out) > 20 {
			out = out[:20]
		}
		response.OK(c, out)
	})

	g.GET("/stat/writing-trend", func(c *gin.Context) {
		start := time.Now().AddDate(0, -11, 0)
		out := make([]trendPoint, 0, 12)
		for i := 0; i < 12; i++ {
			monthStart := time.Date(start.Year(), start.Month()+time.Month(i), 1, 0, 0, 0, 0, time.Local)
			monthEnd := monthStart.AddDate(0, 1, 0)
			var entries int64
			var words int64
			db.Model(&models.EntryModel{}).
				Where("created_at >= ? AND created_at < ?", monthStart, monthEnd).
				Count(&entries)
			db.Model(&models.EntryModel{}).
				Where("created_at >= ? AND created_at < ?", monthStart, monthEnd).
				Select("COALESCE(SUM(word_count), 0)").Scan(&words)
			out = append(out, trendPoint{
				Date:    monthStart.Format("2006-01"),
				Entries: entries,
				Words:   words,
			})
		}
		response.OK(c, out)
	})

	g.GET("/stat/entry-activity", func(c *gin.Context) {
		out := make([]dayCount, 0, 30)
		start := time.Now().AddDate(0, 0, -29)
		for i := 0; i < 30; i++ {
			dayStart := time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, time.Local)
			dayEnd := dayStart.AddDate(0, 0, 1)
			var count int64
			db.Model(&models.EntryModel{}).
				Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
				Count(&count)
			out = append(out, dayCount{
				Date:  dayStart.Format("2006-01-02"),
				Count: count,
			})
		}
		response.OK(c, out)
	})

	g.GET("/count_words", func(c *gin.Context) {
		var resp wordCountResponse
		db.Model(&models.EntryModel{}).Count(&resp.Entries)
		db.Model(&models.EntryModel{}).Select("COALESCE(SUM(word_count), 0)").Scan(&resp.Words)
		response.OK(c, resp)
	})
}
