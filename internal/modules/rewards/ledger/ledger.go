package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
)

// Tier awards Bonus points once a streak reaches MinDays.
type Tier struct {
	MinDays int
	Bonus   int
}

// Config holds the point constants and streak thresholds. Values come from
// the runtime options, never hard-coded at call sites.
type Config struct {
	DailyEntryPoints   int
	MoodTrackingPoints int
	MintBonusPoints    int
	StreakTiers        []Tier
}

// DefaultConfig mirrors the shipped reward options.
func DefaultConfig() Config {
	return FromRewardOptions(config.DefaultFullConfig().Rewards)
}

// FromRewardOptions converts stored reward options into an engine config.
func FromRewardOptions(opts config.RewardOptions) Config {
	tiers := make([]Tier, 0, len(opts.StreakTiers))
	for _, t := range opts.StreakTiers {
		tiers = append(tiers, Tier{MinDays: t.MinDays, Bonus: t.Bonus})
	}
	return Config{
		DailyEntryPoints:   opts.DailyEntryPoints,
		MoodTrackingPoints: opts.MoodTrackingPoints,
		MintBonusPoints:    opts.MintBonusPoints,
		StreakTiers:        tiers,
	}
}

// ComputeStreak derives the current streak from entry creation times at
// calendar-day granularity in loc. The walk anchors on today, or on
// yesterday when today has no entry yet, and counts consecutive days
// backward until the first gap. Multiple entries on one day count once.
func ComputeStreak(entryTimes []time.Time, asOf time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	if len(entryTimes) == 0 {
		return 0
	}

	days := make(map[int64]struct{}, len(entryTimes))
	for _, ts := range entryTimes {
		days[dayOrdinal(ts.In(loc))] = struct{}{}
	}

	anchor := dayOrdinal(asOf.In(loc))
	if _, ok := days[anchor]; !ok {
		// No entry yet today: a streak ending yesterday is still alive.
		if _, ok := days[anchor-1]; !ok {
			return 0
		}
		anchor--
	}

	streak := 0
	for d := anchor; ; d-- {
		if _, ok := days[d]; !ok {
			break
		}
		streak++
	}
	return streak
}

// dayOrdinal collapses a timestamp to its calendar day. Date components are
// re-anchored in UTC so consecutive local days map to consecutive ordinals
// across DST shifts.
func dayOrdinal(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// ComputeClarityPoints builds the points breakdown for an entry given the
// user's streak at that moment. Call once at creation or mint time and
// snapshot the result; historical entries are never recomputed.
func ComputeClarityPoints(entry *models.EntryModel, currentStreak int, moodTracked bool, cfg Config) models.PointsBreakdown {
	if entry == nil {
		panic("ledger: nil entry")
	}
	if currentStreak < 0 {
		panic(fmt.Sprintf("ledger: negative streak %d", currentStreak))
	}

	b := models.PointsBreakdown{DailyEntry: cfg.DailyEntryPoints}
	if moodTracked {
		b.MoodTracking = cfg.MoodTrackingPoints
	}
	if entry.IsMinted {
		b.NFTMinting = cfg.MintBonusPoints
	}
	b.StreakBonus = StreakBonus(currentStreak, cfg)
	b.Total = b.DailyEntry + b.MoodTracking + b.StreakBonus + b.NFTMinting
	return b
}

// StreakBonus returns the bonus for the highest tier the streak reaches,
// or 0 below every threshold. Tier order in cfg does not matter.
func StreakBonus(currentStreak int, cfg Config) int {
	if currentStreak < 0 {
		panic(fmt.Sprintf("ledger: negative streak %d", currentStreak))
	}

	bonus := 0
	bestDays := -1
	for _, tier := range cfg.StreakTiers {
		if currentStreak >= tier.MinDays && tier.MinDays > bestDays {
			bonus = tier.Bonus
			bestDays = tier.MinDays
		}
	}
	return bonus
}

// ApplyMintBonus stamps the mint award onto an existing breakdown and
// re-sums the total. The earlier components are left untouched, so the
// operation is idempotent.
func ApplyMintBonus(b models.PointsBreakdown, cfg Config) models.PointsBreakdown {
	b.NFTMinting = cfg.MintBonusPoints
	b.Total = b.DailyEntry + b.MoodTracking + b.StreakBonus + b.NFTMinting
	return b
}

// WordCount counts whitespace-separated words in entry content.
func WordCount(content string) int {
	return len(strings.Fields(content))
}
