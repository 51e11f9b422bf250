package models

import "time"

// Mint lifecycle states persisted on an entry. Minted is terminal; a row
// found in Minting at boot is an interrupted attempt and reverts to
// Unminted (see nft/mint reconcile).
const (
	MintStateUnminted = "unminted"
	MintStateMinting  = "minting"
	MintStateMinted   = "minted"
)

// EntryModel is one journal entry. The local row is authoritative;
// IsSynced reports whether the cloud mirror holds this revision.
type EntryModel struct {
	Base
	UserID  string      `json:"user_id" gorm:"index;not null"`
	User    *UserModel  `json:"-"       gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Content string      `json:"content" gorm:"type:text;not null"`
	Mood    string      `json:"mood"    gorm:"index;not null"`
	Weather string      `json:"weather"`
	Tags    StringArray `json:"tags"    gorm:"type:longtext"`

	// Points are a ledger snapshot taken at creation (and topped up once at
	// mint time). Later streak changes never rewrite history.
	ClarityPoints int             `json:"clarity_points" gorm:"default:0"`
	Breakdown     PointsBreakdown `json:"points_breakdown" gorm:"type:longtext;serializer:json"`
	WordCount     int             `json:"word_count" gorm:"default:0"`

	IsMinted             bool       `json:"is_minted"  gorm:"default:false;index"`
	MintState            string     `json:"mint_state" gorm:"default:'unminted';index"`
	NFTAddress           string     `json:"nft_address,omitempty"           gorm:"column:nft_address"`
	TransactionSignature string     `json:"transaction_signature,omitempty"`
	MetadataURI          string     `json:"metadata_uri,omitempty"          gorm:"column:metadata_uri"`
	MintedAt             *time.Time `json:"minted_at,omitempty"`

	IsSynced     bool       `json:"is_synced"      gorm:"default:false;index"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

func (EntryModel) TableName() string { return "entries" }

// PointsBreakdown is the persisted copy of the ledger computation for one
// entry. Total always equals the sum of the four components.
type PointsBreakdown struct {
	DailyEntry   int `json:"daily_entry"`
	MoodTracking int `json:"mood_tracking"`
	StreakBonus  int `json:"streak_bonus"`
	NFTMinting   int `json:"nft_minting"`
	Total        int `json:"total"`
}

// MintAuditModel records every mint attempt for support and reconciliation.
type MintAuditModel struct {
	Base
	EntryID      string     `json:"entry_id" gorm:"index;not null"`
	State        string     `json:"state"    gorm:"index;not null"` // started | succeeded | failed
	OwnerAddress string     `json:"owner_address"`
	MintAddress  string     `json:"mint_address"`
	Signature    string     `json:"signature"`
	FailReason   string     `json:"fail_reason" gorm:"type:text"`
	FinishedAt   *time.Time `json:"finished_at"`
}

func (MintAuditModel) TableName() string { return "mint_audits" }
