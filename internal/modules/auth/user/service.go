// Package user exposes the owner profile. Writes go through the journal
// service so the cloud mirror and the gateway see every profile change.
package user

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/journal"
	"github.com/clarity-app/core/internal/pkg/apperr"
)

type Service struct {
	journal *journal.Service
}

func NewService(journalSvc *journal.Service) *Service {
	return &Service{journal: journalSvc}
}

// Owner returns the single owner account, or nil before registration.
func (s *Service) Owner() (*models.UserModel, error) {
	return s.journal.Store().FirstUser()
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	return s.journal.GetUser(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id string, dto *UpdateUserDTO) (*models.UserModel, error) {
	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.Avatar != nil {
		updates["avatar"] = strings.TrimSpace(*dto.Avatar)
	}
	if dto.Mail != nil {
		updates["mail"] = strings.TrimSpace(*dto.Mail)
	}
	if dto.Preferences != nil {
		prefs := *dto.Preferences
		if tz := strings.TrimSpace(prefs.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return nil, apperr.Validationf(apperr.CodeInvalidTimezone, "unknown timezone: %s", tz)
			}
		}
		raw, err := json.Marshal(prefs)
		if err != nil {
			return nil, err
		}
		updates["preferences"] = string(raw)
	}
	if len(updates) == 0 {
		return s.journal.GetUserLocal(id)
	}
	return s.journal.UpdateUser(ctx, id, updates)
}
