package aggregate

import (
	"time"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/modules/journal"
)

// Daily device hashes written by the gateway hub, keyed by shortDateKey.
const (
	redisKeyMaxDevicesOnline = "clarity:devices:max_online"
	redisKeyDeviceConnects   = "clarity:devices:connects"
)

// aggregateData is the single payload the app loads on launch.
type aggregateData struct {
	User    userSummary            `json:"user"`
	Streak  streakInfo             `json:"streak"`
	Points  pointsInfo             `json:"points"`
	Count   countInfo              `json:"count"`
	Sync    *journal.SyncStatusDTO `json:"sync"`
	Latest  *latestEntry           `json:"latest_entry,omitempty"`
	Moods   []moodCount            `json:"top_moods"`
	Feature featureFlags           `json:"features"`
}

type userSummary struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar"`
	WalletAddress string     `json:"wallet_address"`
	LastEntryDate *time.Time `json:"last_entry_date"`
	Timezone      string     `json:"timezone"`
}

type streakInfo struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
	// NextBonusIn is days until the next streak tier pays out, 0 when
	// every tier is already reached.
	NextBonusIn int `json:"next_bonus_in"`
}

type pointsInfo struct {
	Total   int                  `json:"total"`
	Rewards config.RewardOptions `json:"rewards"`
}

type countInfo struct {
	Entries  int64 `json:"entries"`
	Minted   int64 `json:"minted"`
	Unsynced int64 `json:"unsynced"`
	Insights int64 `json:"insights"`
	Words    int64 `json:"words"`
}

type latestEntry struct {
	ID      string    `json:"id"`
	Mood    string    `json:"mood"`
	Created time.Time `json:"created"`
}

type moodCount struct {
	Mood  string `json:"mood"`
	Count int64  `json:"count"`
}

// featureFlags tells the composer which optional surfaces to show.
type featureFlags struct {
	Macros   bool `json:"macros"`
	Insights bool `json:"insights"`
	Minting  bool `json:"minting"`
}

type statResponse struct {
	Entries       int64 `json:"entries"`
	TodayEntries  int64 `json:"today_entries"`
	Minted        int64 `json:"minted"`
	FailedMints   int64 `json:"failed_mints"`
	Unsynced      int64 `json:"unsynced"`
	Insights      int64 `json:"insights"`
	Words         int64 `json:"words"`
	TotalPoints   int64 `json:"total_clarity_points"`
	CurrentStreak int64 `json:"current_streak"`
	LongestStreak int64 `json:"longest_streak"`
	Sessions      int64 `json:"sessions"`
	Passkeys      int64 `json:"passkeys"`

	DevicesOnline   int64  `json:"devices_online"`
	WidgetViewers   int64  `json:"widget_viewers"`
	TodayMaxDevices string `json:"today_max_devices"`
	TodayConnects   string `json:"today_connects"`
}

type calendarDay struct {
	Date    string `json:"date"`
	Mood    string `json:"mood"`
	Entries int64  `json:"entries"`
	Points  int64  `json:"points"`
	Minted  bool   `json:"minted"`
}

type timelineEntry struct {
	ID        string    `json:"id"`
	Mood      string    `json:"mood"`
	Weather   string    `json:"weather,omitempty"`
	Preview   string    `json:"preview"`
	WordCount int       `json:"word_count"`
	Points    int       `json:"clarity_points"`
	IsMinted  bool      `json:"is_minted"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

type trendPoint struct {
	Date    string `json:"date"`
	Entries int64  `json:"entries"`
	Words   int64  `json:"words"`
}

type dayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type wordCountResponse struct {
	Words   int64 `json:"words"`
	Entries int64 `json:"entries"`
}
