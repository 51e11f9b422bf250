// Package auth owns the owner account lifecycle: one-time registration,
// password login, device sessions and long-lived API tokens for the
// mobile client.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	sessionpkg "github.com/clarity-app/core/internal/pkg/session"
)

// API tokens carry this prefix so the auth middleware can tell them from
// session JWTs.
const apiTokenPrefix = "cly_"

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) DB() *gorm.DB { return s.db }

// Login verifies the password and issues a device session. Failed
// attempts are slowed down to blunt brute force.
func (s *Service) Login(dto *LoginDTO, ip, ua string) (string, *models.UserModel, error) {
	var u models.UserModel
	if err := s.db.Where("username = ?", dto.Username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			time.Sleep(3 * time.Second)
			return "", nil, errUserNotFound
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(dto.Password)); err != nil {
		time.Sleep(3 * time.Second)
		return "", nil, errWrongPassword
	}

	now := time.Now()
	s.db.Model(&u).Updates(map[string]interface{}{
		"last_login_time": now,
		"last_login_ip":   ip,
	})
	u.LastLoginTime = &now
	u.LastLoginIP = ip

	token, sess, err := sessionpkg.Issue(s.db, u.ID, ip, ua, sessionpkg.DefaultTTL)
	if err != nil {
		return "", nil, err
	}
	if name := strings.TrimSpace(dto.DeviceName); name != "" && sess != nil {
		_ = s.db.Model(sess).Update("device_name", name).Error
	}
	return token, &u, nil
}

// Register creates the owner account. Exactly one account exists per
// installation; a second registration is refused.
func (s *Service) Register(dto *RegisterDTO) (*models.UserModel, error) {
	var count int64
	s.db.Model(&models.UserModel{}).Count(&count)
	if count > 0 {
		return nil, errOwnerExists
	}

	tz := strings.TrimSpace(dto.Timezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, errUnknownTimezone
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	name := dto.Name
	if name == "" {
		name = dto.Username
	}
	u := models.UserModel{
		Username: dto.Username,
		Password: string(hash),
		Name:     name,
		Preferences: models.UserPreferences{
			Notifications: true,
			Theme:         "system",
			AutoSync:      true,
			Timezone:      tz,
		},
	}
	return &u, s.db.Create(&u).Error
}

func (s *Service) IsRegistered() bool {
	var count int64
	s.db.Model(&models.UserModel{}).Count(&count)
	return count > 0
}

func (s *Service) ChangePassword(id, oldPwd, newPwd string) error {
	var u models.UserModel
	if err := s.db.Select("id, password").First(&u, "id = ?", id).Error; err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(oldPwd)); err != nil {
		return errWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(newPwd)); err == nil {
		return errPasswordSameAsOld
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.Model(&u).Update("password", string(hash)).Error
}

func (s *Service) ListTokens(userID string) ([]models.APIToken, error) {
	var tokens []models.APIToken
	return tokens, s.db.Where("user_id = ? AND (expired_at IS NULL OR expired_at > ?)", userID, time.Now()).
		Order("created_at DESC").Find(&tokens).Error
}

func (s *Service) VerifyTokenString(token string) (bool, error) {
	var count int64
	err := s.db.Model(&models.APIToken{}).
		Where("token = ? AND (expired_at IS NULL OR expired_at > ?)", token, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) CreateToken(userID string, dto *CreateTokenDTO) (*models.APIToken, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	token := apiTokenPrefix + hex.EncodeToString(b)

	t := models.APIToken{
		UserID:    userID,
		Token:     token,
		Name:      dto.Name,
		ExpiredAt: dto.ExpiredAt,
	}
	return &t, s.db.Create(&t).Error
}

func (s *Service) DeleteToken(userID, tokenID string) error {
	result := s.db.Where("id = ? AND user_id = ?", tokenID, userID).
		Delete(&models.APIToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errTokenNotFound
	}
	return nil
}
