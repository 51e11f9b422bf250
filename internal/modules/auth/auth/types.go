package auth

import (
	"errors"
	"time"

	"github.com/clarity-app/core/internal/models"
)

type LoginDTO struct {
	Username   string `json:"username"    binding:"required"`
	Password   string `json:"password"    binding:"required"`
	DeviceName string `json:"device_name"`
}

type RegisterDTO struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type CreateTokenDTO struct {
	Name      string     `json:"name"       binding:"required"`
	ExpiredAt *time.Time `json:"expired_at"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  *models.UserModel `json:"user"`
}

type tokenResponse struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Token   string     `json:"token"`
	Expired *time.Time `json:"expired"`
	Created time.Time  `json:"created"`
}

var (
	errUserNotFound      = errors.New("auth user not found")
	errWrongPassword     = errors.New("auth wrong password")
	errOwnerExists       = errors.New("owner already registered")
	errPasswordSameAsOld = errors.New("new password equals the old one")
	errUnknownTimezone   = errors.New("unknown timezone")
	errTokenNotFound     = errors.New("token not found")
)
