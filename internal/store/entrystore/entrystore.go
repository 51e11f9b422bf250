package entrystore

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/apperr"
)

// Store is the authoritative local persistence for users and entries.
// Failures here are fatal to the calling operation; the cloud mirror is
// never consulted to answer for this store.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for pagination scopes.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn against a transactional copy of the store.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// --- users ---

func (s *Store) CreateUser(u *models.UserModel) error {
	return s.db.Create(u).Error
}

func (s *Store) GetUser(id string) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeUserNotFound, "user", id)
		}
		return nil, err
	}
	return &user, nil
}

// FirstUser returns the owner account, or nil when none exists yet.
func (s *Store) FirstUser() (*models.UserModel, error) {
	var user models.UserModel
	err := s.db.Order("created_at ASC").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUser(id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := s.db.Model(&models.UserModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		s.db.Model(&models.UserModel{}).Where("id = ?", id).Count(&count)
		if count == 0 {
			return apperr.NotFound(apperr.CodeUserNotFound, "user", id)
		}
	}
	return nil
}

// --- entries ---

func (s *Store) CreateEntry(e *models.EntryModel) error {
	return s.db.Create(e).Error
}

func (s *Store) GetEntry(userID, id string) (*models.EntryModel, error) {
	var entry models.EntryModel
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeEntryNotFound, "entry", id)
		}
		return nil, err
	}
	return &entry, nil
}

// ListEntries returns all of a user's entries, newest first.
func (s *Store) ListEntries(userID string) ([]models.EntryModel, error) {
	var entries []models.EntryModel
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}

// EntryTimes returns the creation timestamps of all live entries, used to
// recompute the streak from first principles.
func (s *Store) EntryTimes(userID string) ([]time.Time, error) {
	var times []time.Time
	err := s.db.Model(&models.EntryModel{}).
		Where("user_id = ?", userID).
		Pluck("created_at", &times).Error
	return times, err
}

// SumClarityPoints totals the persisted point snapshots.
func (s *Store) SumClarityPoints(userID string) (int64, error) {
	var total int64
	err := s.db.Model(&models.EntryModel{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(clarity_points), 0)").
		Scan(&total).Error
	return total, err
}

func (s *Store) CountEntries(userID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.EntryModel{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (s *Store) UpdateEntry(userID, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := s.db.Model(&models.EntryModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		s.db.Model(&models.EntryModel{}).Where("id = ? AND user_id = ?", id, userID).Count(&count)
		if count == 0 {
			return apperr.NotFound(apperr.CodeEntryNotFound, "entry", id)
		}
	}
	return nil
}

func (s *Store) DeleteEntry(userID, id string) error {
	res := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.EntryModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(apperr.CodeEntryNotFound, "entry", id)
	}
	return nil
}

// --- sync bookkeeping ---

// ListUnsynced returns entries not yet mirrored, oldest first so the sweep
// replays writes in creation order.
func (s *Store) ListUnsynced(userID string) ([]models.EntryModel, error) {
	var entries []models.EntryModel
	err := s.db.Where("user_id = ? AND is_synced = ?", userID, false).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (s *Store) CountUnsynced(userID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.EntryModel{}).
		Where("user_id = ? AND is_synced = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (s *Store) MarkSynced(id string, at time.Time) error {
	return s.db.Model(&models.EntryModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_synced":      true,
			"last_synced_at": at,
		}).Error
}

func (s *Store) CreateMintAudit(a *models.MintAuditModel) error {
	return s.db.Create(a).Error
}

func (s *Store) UpdateMintAudit(id string, updates map[string]interface{}) error {
	return s.db.Model(&models.MintAuditModel{}).Where("id = ?", id).Updates(updates).Error
}

// ListMintAudits returns every attempt recorded for an entry, newest first.
func (s *Store) ListMintAudits(entryID string) ([]models.MintAuditModel, error) {
	var audits []models.MintAuditModel
	err := s.db.
		Where("entry_id = ?", entryID).
		Order("created_at DESC").
		Find(&audits).Error
	return audits, err
}

// ListMinted returns the user's minted entries, newest mint first.
func (s *Store) ListMinted(userID string) ([]models.EntryModel, error) {
	var entries []models.EntryModel
	err := s.db.
		Where("user_id = ? AND is_minted = ?", userID, true).
		Order("minted_at DESC").
		Find(&entries).Error
	return entries, err
}

// LastSyncedAt returns the most recent successful mirror write time, or
// nil when nothing has ever synced.
func (s *Store) LastSyncedAt(userID string) (*time.Time, error) {
	var last *time.Time
	err := s.db.Model(&models.EntryModel{}).
		Where("user_id = ? AND last_synced_at IS NOT NULL", userID).
		Select("MAX(last_synced_at)").
		Scan(&last).Error
	return last, err
}

func (s *Store) MarkUnsynced(id string) error {
	return s.db.Model(&models.EntryModel{}).
		Where("id = ?", id).
		Update("is_synced", false).Error
}

// --- mint state ---

// ClaimMint moves an entry from unminted to minting. The compare-and-set
// rejects entries already minted or mid-mint, which makes a crashed mint
// detectable after restart.
func (s *Store) ClaimMint(userID, id string) error {
	res := s.db.Model(&models.EntryModel{}).
		Where("id = ? AND user_id = ? AND mint_state = ? AND is_minted = ?",
			id, userID, models.MintStateUnminted, false).
		Update("mint_state", models.MintStateMinting)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		entry, err := s.GetEntry(userID, id)
		if err != nil {
			return err
		}
		if entry.IsMinted || entry.MintState == models.MintStateMinted {
			return apperr.Conflict(apperr.CodeAlreadyMinted, "entry has already been minted")
		}
		return apperr.Conflict(apperr.CodeMintInProgress, "a mint for this entry is already in flight")
	}
	return nil
}

// RevertMint returns a minting entry to unminted. No NFT fields are
// cleared because none are written before the mint completes.
func (s *Store) RevertMint(id string) error {
	return s.db.Model(&models.EntryModel{}).
		Where("id = ? AND mint_state = ?", id, models.MintStateMinting).
		Update("mint_state", models.MintStateUnminted).Error
}

// ListStuckMinting finds entries left in the minting state by a crash.
func (s *Store) ListStuckMinting() ([]models.EntryModel, error) {
	var entries []models.EntryModel
	err := s.db.Where("mint_state = ?", models.MintStateMinting).Find(&entries).Error
	return entries, err
}
