package aggregate

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
)

// userLocation resolves the zone every per-day grouping uses. Days must
// bucket the same way the ledger buckets them or the calendar and the
// streak disagree.
func userLocation(user *models.UserModel) *time.Location {
	name := strings.TrimSpace(user.Preferences.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func beginningOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func shortDateKey(t time.Time) string {
	return t.Format("1-2-06")
}

func parseIntQuery(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(trimmed); err == nil {
		return parsed
	}
	return fallback
}

// monthRange returns [start, end) for the given month in loc, defaulting
// to the current month when year or month is out of range.
func monthRange(year, month int, now time.Time, loc *time.Location) (time.Time, time.Time) {
	if year < 1970 || month < 1 || month > 12 {
		local := now.In(loc)
		year, month = local.Year(), int(local.Month())
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// entryPreview trims entry content to a short snippet for list views.
func entryPreview(content string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

// nextTierDays returns how many days remain until the next streak tier
// pays out, or 0 once every tier is reached.
func nextTierDays(current int, tiers []config.StreakTier) int {
	best := 0
	for _, tier := range tiers {
		if tier.MinDays > current && (best == 0 || tier.MinDays < best) {
			best = tier.MinDays
		}
	}
	if best == 0 {
		return 0
	}
	return best - current
}
