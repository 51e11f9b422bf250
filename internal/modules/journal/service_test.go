package journal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/apperr"
	"github.com/clarity-app/core/internal/store/cloudmirror"
	"github.com/clarity-app/core/internal/store/entrystore"
)

// Saturday evening, pinned so streak day math never depends on the wall
// clock of the machine running the tests.
var testNow = time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC)

func day(offset, hour int) time.Time {
	return time.Date(2025, 6, 14+offset, hour, 0, 0, 0, time.UTC)
}

var errMirrorDown = errors.New("mirror down")

// fakeMirror is an in-memory Mirror with failure injection. offline fails
// every call; failPut rejects specific entry ids so a sweep can partially
// fail.
type fakeMirror struct {
	mu       sync.Mutex
	enabled  bool
	offline  bool
	failPut  map[string]bool
	users    map[string]models.UserModel
	entries  map[string]models.EntryModel
	putOrder []string

	// pingGate, when set before any concurrency starts, blocks Ping until
	// closed. Used to hold a sweep open mid-flight.
	pingGate chan struct{}
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		enabled: true,
		failPut: map[string]bool{},
		users:   map[string]models.UserModel{},
		entries: map[string]models.EntryModel{},
	}
}

func (m *fakeMirror) Enabled() bool { return m.enabled }

func (m *fakeMirror) Ping(ctx context.Context) error {
	if m.pingGate != nil {
		<-m.pingGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return errMirrorDown
	}
	return nil
}

func (m *fakeMirror) setOffline(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = v
}

func (m *fakeMirror) UpsertUser(ctx context.Context, user *models.UserModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return errMirrorDown
	}
	m.users[user.ID] = *user
	return nil
}

func (m *fakeMirror) GetUser(ctx context.Context, id string) (*models.UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, errMirrorDown
	}
	u, ok := m.users[id]
	if !ok {
		return nil, cloudmirror.ErrNotFound
	}
	cp := u
	return &cp, nil
}

func (m *fakeMirror) UpsertEntry(ctx context.Context, entry *models.EntryModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return errMirrorDown
	}
	if m.failPut[entry.ID] {
		return errors.New("write rejected")
	}
	cp := *entry
	cp.IsSynced = true
	m.entries[entry.ID] = cp
	m.putOrder = append(m.putOrder, entry.ID)
	return nil
}

func (m *fakeMirror) GetEntry(ctx context.Context, userID, id string) (*models.EntryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, errMirrorDown
	}
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return nil, cloudmirror.ErrNotFound
	}
	cp := e
	return &cp, nil
}

func (m *fakeMirror) ListEntries(ctx context.Context, userID string) ([]models.EntryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, errMirrorDown
	}
	var out []models.EntryModel
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *fakeMirror) DeleteEntry(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return errMirrorDown
	}
	delete(m.entries, id)
	return nil
}

func (m *fakeMirror) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func setupService(t *testing.T, mirror Mirror) (*Service, *entrystore.Store, *models.UserModel) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.UserModel{}, &models.EntryModel{}, &models.MintAuditModel{}))

	store := entrystore.NewStore(db)
	user := &models.UserModel{Username: "journaler"}
	require.NoError(t, store.CreateUser(user))

	svc := NewService(nil, store, mirror, nil, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, store, user
}

func seedEntryAt(t *testing.T, store *entrystore.Store, userID string, at time.Time, points int) *models.EntryModel {
	t.Helper()
	entry := &models.EntryModel{
		UserID:        userID,
		Content:       "an earlier page of the journal",
		Mood:          "calm",
		ClarityPoints: points,
		MintState:     models.MintStateUnminted,
	}
	entry.CreatedAt = at
	require.NoError(t, store.CreateEntry(entry))
	return entry
}

func mustCreate(t *testing.T, svc *Service, userID, content, mood string) *models.EntryModel {
	t.Helper()
	entry, err := svc.Create(context.Background(), userID, CreateEntryDTO{Content: content, Mood: mood})
	require.NoError(t, err)
	return entry
}

func TestCreateValidation(t *testing.T) {
	svc, _, user := setupService(t, nil)
	ctx := context.Background()

	t.Run("content too short after trimming", func(t *testing.T) {
		_, err := svc.Create(ctx, user.ID, CreateEntryDTO{Content: "   short   "})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidContent))
	})

	t.Run("content too long", func(t *testing.T) {
		long := make([]byte, maxContentLen+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err := svc.Create(ctx, user.ID, CreateEntryDTO{Content: string(long)})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidContent))
	})

	t.Run("unknown mood", func(t *testing.T) {
		_, err := svc.Create(ctx, user.ID, CreateEntryDTO{Content: "a perfectly fine entry", Mood: "euphoric"})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMood))
	})

	t.Run("empty mood is allowed", func(t *testing.T) {
		entry, err := svc.Create(ctx, user.ID, CreateEntryDTO{Content: "a perfectly fine entry"})
		require.NoError(t, err)
		assert.Equal(t, "", entry.Mood)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Create(ctx, "nope", CreateEntryDTO{Content: "a perfectly fine entry"})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeUserNotFound))
	})
}

func TestCreateComputesPointsSnapshot(t *testing.T) {
	svc, store, user := setupService(t, nil)

	// Two prior days plus today's new entry make a three day streak.
	seedEntryAt(t, store, user.ID, day(-2, 9), 0)
	seedEntryAt(t, store, user.ID, day(-1, 22), 0)

	entry := mustCreate(t, svc, user.ID, "I am grateful today", "grateful")

	assert.Equal(t, models.PointsBreakdown{
		DailyEntry:   10,
		MoodTracking: 5,
		StreakBonus:  15,
		NFTMinting:   0,
		Total:        30,
	}, entry.Breakdown)
	assert.Equal(t, 30, entry.ClarityPoints)
	assert.Equal(t, 4, entry.WordCount)
	assert.False(t, entry.IsSynced)

	cached, err := store.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cached.CurrentStreak)
	assert.Equal(t, 3, cached.LongestStreak)
	assert.Equal(t, 30, cached.TotalPoints)
	require.NotNil(t, cached.LastEntryDate)
	assert.WithinDuration(t, testNow, *cached.LastEntryDate, time.Second)
}

func TestCreateIsOfflineFirst(t *testing.T) {
	t.Run("no mirror configured", func(t *testing.T) {
		svc, store, user := setupService(t, nil)
		entry := mustCreate(t, svc, user.ID, "written with no cloud at all", "")
		assert.False(t, entry.IsSynced)

		pending, err := store.CountUnsynced(user.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, pending)
	})

	t.Run("mirror down", func(t *testing.T) {
		m := newFakeMirror()
		m.setOffline(true)
		svc, _, user := setupService(t, m)

		entry := mustCreate(t, svc, user.ID, "written while the cloud is down", "")
		assert.False(t, entry.IsSynced)
		assert.Nil(t, entry.LastSyncedAt)
		assert.Equal(t, 0, m.entryCount())
	})

	t.Run("mirror reachable", func(t *testing.T) {
		m := newFakeMirror()
		svc, store, user := setupService(t, m)

		entry := mustCreate(t, svc, user.ID, "written while the cloud is up", "")
		assert.True(t, entry.IsSynced)
		require.NotNil(t, entry.LastSyncedAt)
		assert.Equal(t, 1, m.entryCount())

		stored, err := store.GetEntry(user.ID, entry.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsSynced)
	})
}

func TestReadsPreferMirrorAndFallBack(t *testing.T) {
	m := newFakeMirror()
	svc, _, user := setupService(t, m)
	ctx := context.Background()

	entry := mustCreate(t, svc, user.ID, "the cloud holds this revision", "")

	// Doctor the mirror copy so the read source is observable.
	m.mu.Lock()
	cp := m.entries[entry.ID]
	cp.Content = "mirror revision"
	m.entries[entry.ID] = cp
	m.mu.Unlock()

	got, err := svc.GetEntry(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "mirror revision", got.Content)

	local, err := svc.GetEntryLocal(user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "the cloud holds this revision", local.Content)

	// Mirror down: reads silently come from the local store.
	m.setOffline(true)
	got, err = svc.GetEntry(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "the cloud holds this revision", got.Content)

	list, err := svc.ListEntries(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "the cloud holds this revision", list[0].Content)

	// A row the mirror has never seen still resolves locally.
	m.setOffline(false)
	m.mu.Lock()
	delete(m.entries, entry.ID)
	m.mu.Unlock()
	got, err = svc.GetEntry(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	_, err = svc.GetEntry(ctx, user.ID, "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))
}

func TestUpdateFlipsSyncFlagAndKeepsSnapshot(t *testing.T) {
	m := newFakeMirror()
	svc, store, user := setupService(t, m)
	ctx := context.Background()

	entry := mustCreate(t, svc, user.ID, "the first draft of this page", "calm")
	require.True(t, entry.IsSynced)
	originalBreakdown := entry.Breakdown

	m.setOffline(true)

	newContent := "the second draft of this page"
	updated, err := svc.Update(ctx, user.ID, entry.ID, UpdateEntryDTO{Content: &newContent})
	require.NoError(t, err)
	assert.False(t, updated.IsSynced, "content edit with the mirror down must leave the entry pending")
	assert.Equal(t, originalBreakdown, updated.Breakdown, "edits never recompute the points snapshot")
	assert.Equal(t, originalBreakdown.Total, updated.ClarityPoints)
	assert.Equal(t, 6, updated.WordCount)

	// Weather is not part of the mirrored content contract; changing it
	// alone does not invalidate the synced flag.
	stored, err := store.GetEntry(user.ID, entry.ID)
	require.NoError(t, err)
	require.False(t, stored.IsSynced)
	require.NoError(t, store.MarkSynced(entry.ID, testNow))

	weather := "rainy"
	updated, err = svc.Update(ctx, user.ID, entry.ID, UpdateEntryDTO{Weather: &weather})
	require.NoError(t, err)
	assert.True(t, updated.IsSynced)

	mood := "thoughtful"
	updated, err = svc.Update(ctx, user.ID, entry.ID, UpdateEntryDTO{Mood: &mood})
	require.NoError(t, err)
	assert.False(t, updated.IsSynced, "mood edit with the mirror down must leave the entry pending")

	// With the mirror back, an edit lands remotely and stays synced.
	m.setOffline(false)
	mood = "happy"
	updated, err = svc.Update(ctx, user.ID, entry.ID, UpdateEntryDTO{Mood: &mood})
	require.NoError(t, err)
	assert.True(t, updated.IsSynced)

	remote, err := m.GetEntry(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "happy", remote.Mood)
}

func TestUpdateValidation(t *testing.T) {
	svc, _, user := setupService(t, nil)
	ctx := context.Background()

	entry := mustCreate(t, svc, user.ID, "a perfectly fine entry", "")

	bad := "short"
	_, err := svc.Update(ctx, user.ID, entry.ID, UpdateEntryDTO{Content: &bad})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidContent))

	badMood := "bored"
	_, err = svc.Update(ctx, user.ID, entry.ID, UpdateEntryDTO{Mood: &badMood})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidMood))

	_, err = svc.Update(ctx, user.ID, "missing", UpdateEntryDTO{})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))
}

func TestDeleteRecomputesUserCache(t *testing.T) {
	m := newFakeMirror()
	svc, store, user := setupService(t, m)
	ctx := context.Background()

	seedEntryAt(t, store, user.ID, day(-1, 8), 12)
	entry := mustCreate(t, svc, user.ID, "the page that will be torn out", "calm")
	require.Equal(t, 15, entry.ClarityPoints) // 10 entry + 5 mood, streak 2 is below the first tier

	cached, err := store.GetUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, cached.CurrentStreak)
	require.Equal(t, 27, cached.TotalPoints)

	require.NoError(t, svc.Delete(ctx, user.ID, entry.ID))

	cached, err = store.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.CurrentStreak, "yesterday's entry still anchors a one day streak")
	assert.Equal(t, 2, cached.LongestStreak, "longest streak never shrinks")
	assert.Equal(t, 12, cached.TotalPoints, "deleted points are taken back")
	assert.Equal(t, 0, m.entryCount())

	err = svc.Delete(ctx, user.ID, entry.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeEntryNotFound))
}

func TestSyncSweepPushesOldestFirst(t *testing.T) {
	m := newFakeMirror()
	m.setOffline(true)
	svc, store, user := setupService(t, m)
	ctx := context.Background()

	svc.now = func() time.Time { return day(-2, 9) }
	first := mustCreate(t, svc, user.ID, "monday, written on the train", "")
	svc.now = func() time.Time { return day(-1, 9) }
	second := mustCreate(t, svc, user.ID, "tuesday, written at the cafe", "")
	svc.now = func() time.Time { return testNow }
	third := mustCreate(t, svc, user.ID, "wednesday, written in the dark", "")

	pending, err := store.CountUnsynced(user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, pending)

	m.setOffline(false)
	report, err := svc.SyncToCloud(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, 3, report.Synced)
	assert.Equal(t, 0, report.Failed)
	assert.False(t, report.Offline)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, m.putOrder)

	pending, err = store.CountUnsynced(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	// Nothing left to push; a second sweep is a no-op.
	report, err = svc.SyncToCloud(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Pending)
	assert.Equal(t, 0, report.Synced)
	assert.Len(t, m.putOrder, 3)
}

func TestSyncSweepContinuesPastFailures(t *testing.T) {
	m := newFakeMirror()
	m.setOffline(true)
	svc, store, user := setupService(t, m)
	ctx := context.Background()

	svc.now = func() time.Time { return day(-2, 9) }
	first := mustCreate(t, svc, user.ID, "survives the sweep just fine", "")
	svc.now = func() time.Time { return day(-1, 9) }
	second := mustCreate(t, svc, user.ID, "rejected by the mirror today", "")
	svc.now = func() time.Time { return testNow }
	third := mustCreate(t, svc, user.ID, "also survives the sweep fine", "")

	m.setOffline(false)
	m.mu.Lock()
	m.failPut[second.ID] = true
	m.mu.Unlock()

	report, err := svc.SyncToCloud(ctx, user.ID)
	require.NoError(t, err, "per entry failures never fail the sweep")
	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, second.ID, report.Failures[0].EntryID)
	assert.Equal(t, []string{first.ID, third.ID}, m.putOrder)

	// The failed row is still pending and the retry only replays it.
	m.mu.Lock()
	delete(m.failPut, second.ID)
	m.mu.Unlock()

	report, err = svc.SyncToCloud(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, []string{first.ID, third.ID, second.ID}, m.putOrder)

	pending, err := store.CountUnsynced(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
}

func TestSyncSweepOfflineIsNotAnError(t *testing.T) {
	m := newFakeMirror()
	m.setOffline(true)
	svc, store, user := setupService(t, m)

	mustCreate(t, svc, user.ID, "still waiting for a connection", "")

	report, err := svc.SyncToCloud(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, report.Offline)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 0, report.Synced)
	assert.Equal(t, 0, report.Failed)

	pending, err := store.CountUnsynced(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestSyncSweepIsSingleFlight(t *testing.T) {
	m := newFakeMirror()
	m.pingGate = make(chan struct{})
	svc, _, user := setupService(t, m)
	ctx := context.Background()

	seedEntryAt(t, svc.store, user.ID, day(0, 9), 10)

	type result struct {
		report *SyncReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := svc.SyncToCloud(ctx, user.ID)
		done <- result{report, err}
	}()

	require.Eventually(t, func() bool { return svc.syncBusy.Load() },
		time.Second, time.Millisecond, "first sweep should be holding the flag")

	_, err := svc.SyncToCloud(ctx, user.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSyncInProgress))

	close(m.pingGate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.report.Synced)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, status.Syncing)
}

func TestStatus(t *testing.T) {
	m := newFakeMirror()
	m.setOffline(true)
	svc, _, user := setupService(t, m)
	ctx := context.Background()

	mustCreate(t, svc, user.ID, "written before the first sync", "")

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, status.IsOnline)
	assert.EqualValues(t, 1, status.PendingSync)
	assert.Nil(t, status.LastSyncTime)

	m.setOffline(false)
	_, err = svc.SyncToCloud(ctx, user.ID)
	require.NoError(t, err)

	status, err = svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.EqualValues(t, 0, status.PendingSync)
	require.NotNil(t, status.LastSyncTime)
	assert.WithinDuration(t, testNow, *status.LastSyncTime, time.Second)
}

func TestApplyMintResult(t *testing.T) {
	svc, store, user := setupService(t, nil)
	ctx := context.Background()

	entry := mustCreate(t, svc, user.ID, "the page worth keeping forever", "grateful")
	require.Equal(t, 15, entry.ClarityPoints)

	t.Run("requires the minting claim", func(t *testing.T) {
		_, err := svc.ApplyMintResult(ctx, user.ID, entry.ID, "mint", "sig", "uri")
		require.Error(t, err)
	})

	require.NoError(t, store.ClaimMint(user.ID, entry.ID))

	minted, err := svc.ApplyMintResult(ctx, user.ID, entry.ID,
		"GhT2mint1111111111111111111111111111111111", "5sig", "https://meta.example/1.json")
	require.NoError(t, err)

	assert.True(t, minted.IsMinted)
	assert.Equal(t, models.MintStateMinted, minted.MintState)
	assert.Equal(t, "GhT2mint1111111111111111111111111111111111", minted.NFTAddress)
	assert.Equal(t, "5sig", minted.TransactionSignature)
	assert.Equal(t, "https://meta.example/1.json", minted.MetadataURI)
	require.NotNil(t, minted.MintedAt)
	assert.False(t, minted.IsSynced, "the minted revision must reach the mirror on the next sweep")

	assert.Equal(t, models.PointsBreakdown{
		DailyEntry:   10,
		MoodTracking: 5,
		StreakBonus:  0,
		NFTMinting:   50,
		Total:        65,
	}, minted.Breakdown)
	assert.Equal(t, 65, minted.ClarityPoints)

	cached, err := store.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 65, cached.TotalPoints)

	t.Run("finalize is not repeatable", func(t *testing.T) {
		_, err := svc.ApplyMintResult(ctx, user.ID, entry.ID, "other", "sig2", "uri2")
		require.Error(t, err)

		again, err := store.GetEntry(user.ID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "GhT2mint1111111111111111111111111111111111", again.NFTAddress)
		assert.Equal(t, 65, again.ClarityPoints)
	})
}

func TestUpdateUserMirrorsProfile(t *testing.T) {
	m := newFakeMirror()
	svc, _, user := setupService(t, m)
	ctx := context.Background()

	updated, err := svc.UpdateUser(ctx, user.ID, map[string]interface{}{
		"wallet_address": "7xWa11et111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	assert.Equal(t, "7xWa11et111111111111111111111111111111111111", updated.WalletAddress)

	remote, err := m.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.WalletAddress, remote.WalletAddress)

	// Mirror down: the local write still goes through.
	m.setOffline(true)
	updated, err = svc.UpdateUser(ctx, user.ID, map[string]interface{}{"name": "Sol"})
	require.NoError(t, err)
	assert.Equal(t, "Sol", updated.Name)
}
