package user

import (
	"time"

	"github.com/clarity-app/core/internal/models"
)

type UpdateUserDTO struct {
	Name        *string                 `json:"name"`
	Avatar      *string                 `json:"avatar"`
	Mail        *string                 `json:"mail"`
	Preferences *models.UserPreferences `json:"preferences"`
}

// publicProfile is what unauthenticated widget viewers see: display
// identity and streak numbers, never journal data.
type publicProfile struct {
	Name               string     `json:"name"`
	Avatar             string     `json:"avatar"`
	CurrentStreak      int        `json:"current_streak"`
	LongestStreak      int        `json:"longest_streak"`
	TotalClarityPoints int        `json:"total_clarity_points"`
	LastEntryDate      *time.Time `json:"last_entry_date"`
}
