package models

import "time"

// UserModel is the journal owner. One row exists per installation; it is
// created on first launch and never hard-deleted.
type UserModel struct {
	Base
	Username      string          `json:"username"        gorm:"uniqueIndex;not null"`
	Name          string          `json:"name"`
	Avatar        string          `json:"avatar"`
	Password      string          `json:"-"               gorm:"not null"`
	Mail          string          `json:"mail"`
	WalletAddress string          `json:"wallet_address"  gorm:"index"`
	TotalPoints   int             `json:"total_clarity_points" gorm:"column:total_clarity_points;default:0"`
	CurrentStreak int             `json:"current_streak"  gorm:"default:0"`
	LongestStreak int             `json:"longest_streak"  gorm:"default:0"`
	LastEntryDate *time.Time      `json:"last_entry_date"`
	Preferences   UserPreferences `json:"preferences"     gorm:"type:longtext;serializer:json"`
	LastLoginTime *time.Time      `json:"last_login_time"`
	LastLoginIP   string          `json:"last_login_ip"`
	APITokens     []APIToken      `json:"api_tokens,omitempty" gorm:"foreignKey:UserID"`
}

func (UserModel) TableName() string { return "users" }

// UserPreferences are client-facing toggles stored as a JSON blob.
// Timezone is an IANA zone name and drives streak day bucketing.
type UserPreferences struct {
	Notifications bool   `json:"notifications"`
	Theme         string `json:"theme"`
	AutoSync      bool   `json:"auto_sync"`
	Timezone      string `json:"timezone"`
}

// APIToken is a long-lived token for the mobile client.
type APIToken struct {
	Base
	UserID    string     `json:"-"          gorm:"index;not null"`
	Token     string     `json:"token"      gorm:"uniqueIndex;not null"`
	Name      string     `json:"name"`
	ExpiredAt *time.Time `json:"expired_at"`
}

func (APIToken) TableName() string { return "api_tokens" }

// AuthnModel stores WebAuthn/passkey credentials.
type AuthnModel struct {
	Base
	Name                 string `json:"name"                    gorm:"uniqueIndex;not null"`
	CredentialID         []byte `json:"-"                       gorm:"type:blob"`
	CredentialPublicKey  []byte `json:"-"                       gorm:"type:blob"`
	Counter              uint32 `json:"counter"`
	CredentialDeviceType string `json:"credential_device_type"`
	CredentialBackedUp   bool   `json:"credential_backed_up"`
}

func (AuthnModel) TableName() string { return "authn_credentials" }
