package entrystore

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/apperr"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.UserModel{}, &models.EntryModel{}, &models.MintAuditModel{}))
	return NewStore(db)
}

func seedUser(t *testing.T, s *Store) *models.UserModel {
	t.Helper()
	user := &models.UserModel{Username: "journaler"}
	require.NoError(t, s.CreateUser(user))
	return user
}

func seedEntry(t *testing.T, s *Store, userID, content string, createdAt time.Time) *models.EntryModel {
	t.Helper()
	entry := &models.EntryModel{
		UserID:  userID,
		Content: content,
		Mood:    "calm",
	}
	entry.CreatedAt = createdAt
	require.NoError(t, s.CreateEntry(entry))
	return entry
}

func TestEntryCRUD(t *testing.T) {
	s := setupStore(t)
	user := seedUser(t, s)

	entry := seedEntry(t, s, user.ID, "a quiet morning with coffee", time.Now())
	require.NotEmpty(t, entry.ID)

	got, err := s.GetEntry(user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "a quiet morning with coffee", got.Content)
	assert.False(t, got.IsSynced)
	assert.Equal(t, models.MintStateUnminted, got.MintState)

	require.NoError(t, s.UpdateEntry(user.ID, entry.ID, map[string]interface{}{
		"content": "a loud morning without coffee",
	}))
	got, err = s.GetEntry(user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "a loud morning without coffee", got.Content)

	require.NoError(t, s.DeleteEntry(user.ID, entry.ID))
	_, err = s.GetEntry(user.ID, entry.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))
}

func TestEntryNotFoundCodes(t *testing.T) {
	s := setupStore(t)
	user := seedUser(t, s)

	_, err := s.GetEntry(user.ID, "missing")
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))

	err = s.UpdateEntry(user.ID, "missing", map[string]interface{}{"mood": "happy"})
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))

	err = s.DeleteEntry(user.ID, "missing")
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))

	_, err = s.GetUser("missing")
	assert.True(t, apperr.IsCode(err, apperr.CodeUserNotFound))
}

func TestOwnershipScoping(t *testing.T) {
	s := setupStore(t)
	owner := seedUser(t, s)
	other := &models.UserModel{Username: "other"}
	require.NoError(t, s.CreateUser(other))

	entry := seedEntry(t, s, owner.ID, "mine and mine alone today", time.Now())

	_, err := s.GetEntry(other.ID, entry.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))
}

func TestUnsyncedBookkeeping(t *testing.T) {
	s := setupStore(t)
	user := seedUser(t, s)

	now := time.Now()
	older := seedEntry(t, s, user.ID, "written first thing today", now.Add(-2*time.Hour))
	newer := seedEntry(t, s, user.ID, "written a little later on", now.Add(-time.Hour))

	count, err := s.CountUnsynced(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	unsynced, err := s.ListUnsynced(user.ID)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	// Oldest first so the sweep replays creation order.
	assert.Equal(t, older.ID, unsynced[0].ID)
	assert.Equal(t, newer.ID, unsynced[1].ID)

	require.NoError(t, s.MarkSynced(older.ID, now))
	count, err = s.CountUnsynced(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	got, err := s.GetEntry(user.ID, older.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
	require.NotNil(t, got.LastSyncedAt)

	require.NoError(t, s.MarkUnsynced(older.ID))
	got, err = s.GetEntry(user.ID, older.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSynced)
}

func TestEntryTimesAndPointSums(t *testing.T) {
	s := setupStore(t)
	user := seedUser(t, s)

	now := time.Now()
	for i, pts := range []int{10, 15, 30} {
		e := &models.EntryModel{
			UserID:        user.ID,
			Content:       "some words worth keeping here",
			Mood:          "happy",
			ClarityPoints: pts,
		}
		e.CreatedAt = now.AddDate(0, 0, -i)
		require.NoError(t, s.CreateEntry(e))
	}

	times, err := s.EntryTimes(user.ID)
	require.NoError(t, err)
	assert.Len(t, times, 3)

	total, err := s.SumClarityPoints(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 55, total)

	count, err := s.CountEntries(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestClaimMintLifecycle(t *testing.T) {
	s := setupStore(t)
	user := seedUser(t, s)
	entry := seedEntry(t, s, user.ID, "this one deserves a token", time.Now())

	require.NoError(t, s.ClaimMint(user.ID, entry.ID))

	// Second claim while minting is a conflict.
	err := s.ClaimMint(user.ID, entry.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeMintInProgress))

	stuck, err := s.ListStuckMinting()
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, entry.ID, stuck[0].ID)

	require.NoError(t, s.RevertMint(entry.ID))
	got, err := s.GetEntry(user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MintStateUnminted, got.MintState)

	// Claim again after revert, then finish the mint.
	require.NoError(t, s.ClaimMint(user.ID, entry.ID))
	require.NoError(t, s.UpdateEntry(user.ID, entry.ID, map[string]interface{}{
		"is_minted":  true,
		"mint_state": models.MintStateMinted,
	}))

	err = s.ClaimMint(user.ID, entry.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyMinted))

	err = s.ClaimMint(user.ID, "missing")
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))
}

func TestTransactionRollsBack(t *testing.T) {
	s := setupStore(t)
	user := seedUser(t, s)
	entry := seedEntry(t, s, user.ID, "nothing here should persist", time.Now())

	sentinel := assert.AnError
	err := s.Transaction(func(tx *Store) error {
		if err := tx.UpdateEntry(user.ID, entry.ID, map[string]interface{}{"mood": "angry"}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := s.GetEntry(user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "calm", got.Mood)
}
