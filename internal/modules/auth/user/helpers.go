package user

import "github.com/clarity-app/core/internal/models"

func toPublicProfile(u *models.UserModel) *publicProfile {
	return &publicProfile{
		Name:               u.Name,
		Avatar:             u.Avatar,
		CurrentStreak:      u.CurrentStreak,
		LongestStreak:      u.LongestStreak,
		TotalClarityPoints: u.TotalPoints,
		LastEntryDate:      u.LastEntryDate,
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
