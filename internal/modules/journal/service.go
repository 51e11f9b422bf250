// Package journal is the sync coordinator: every entry write lands in the
// local store first and is pushed to the cloud mirror on a best-effort
// basis. Reads prefer the mirror and fall back to the local store, so the
// app behaves the same with or without connectivity.
package journal

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/gateway/notify"
	"github.com/clarity-app/core/internal/modules/rewards/ledger"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/pkg/apperr"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
	"github.com/clarity-app/core/internal/store/entrystore"
)

const (
	minContentLen = 10
	maxContentLen = 5000
)

// Mirror is the remote persistence contract the coordinator consumes.
// *cloudmirror.Mongo satisfies it; tests substitute an in-memory fake.
// Every method may fail at any time; the coordinator treats mirror errors
// as a connectivity problem, never as a reason to fail the caller's write.
type Mirror interface {
	Enabled() bool
	Ping(ctx context.Context) error
	UpsertUser(ctx context.Context, user *models.UserModel) error
	GetUser(ctx context.Context, id string) (*models.UserModel, error)
	UpsertEntry(ctx context.Context, entry *models.EntryModel) error
	GetEntry(ctx context.Context, userID, id string) (*models.EntryModel, error)
	ListEntries(ctx context.Context, userID string) ([]models.EntryModel, error)
	DeleteEntry(ctx context.Context, userID, id string) error
}

type Service struct {
	rt       *config.AppConfig
	store    *entrystore.Store
	mirror   Mirror
	cfgSvc   *appconfigs.Service
	notifier *notify.Service
	tasks    *taskqueue.Service
	logger   *zap.Logger

	syncBusy atomic.Bool

	// now is swapped out by tests that pin the streak clock.
	now func() time.Time
}

// NewService wires the coordinator. mirror, cfgSvc, notifier and tasks may
// all be nil; the coordinator degrades to local-only operation.
func NewService(rt *config.AppConfig, store *entrystore.Store, mirror Mirror, cfgSvc *appconfigs.Service, notifier *notify.Service, tasks *taskqueue.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rt:       rt,
		store:    store,
		mirror:   mirror,
		cfgSvc:   cfgSvc,
		notifier: notifier,
		tasks:    tasks,
		logger:   logger,
		now:      time.Now,
	}
}

// Store exposes the local store for modules that share it (nft, stats).
func (s *Service) Store() *entrystore.Store { return s.store }

func validateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minContentLen {
		return "", apperr.Validationf(apperr.CodeInvalidContent,
			"entry content must be at least %d characters", minContentLen)
	}
	if len(trimmed) > maxContentLen {
		return "", apperr.Validationf(apperr.CodeInvalidContent,
			"entry content must be at most %d characters", maxContentLen)
	}
	return trimmed, nil
}

func validateMood(mood string) error {
	if mood == "" {
		return nil
	}
	if !models.IsValidMood(mood) {
		return apperr.Validationf(apperr.CodeInvalidMood, "unknown mood %q", mood)
	}
	return nil
}

func (s *Service) rewardConfig() ledger.Config {
	if s.cfgSvc == nil {
		return ledger.DefaultConfig()
	}
	cfg, err := s.cfgSvc.Get()
	if err != nil {
		s.logger.Warn("reward config unavailable, using defaults", zap.Error(err))
		return ledger.DefaultConfig()
	}
	return ledger.FromRewardOptions(cfg.Rewards)
}

// userLocation resolves the zone used for streak day bucketing: the user's
// preference first, then the server zone, then UTC.
func (s *Service) userLocation(user *models.UserModel) *time.Location {
	name := strings.TrimSpace(user.Preferences.Timezone)
	if name == "" && s.rt != nil {
		name = s.rt.Timezone
	}
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Warn("unknown timezone, using UTC", zap.String("timezone", name))
		return time.UTC
	}
	return loc
}

// Create validates and persists a new entry. The clarity points breakdown
// is computed once here, with the streak the new entry produces, and
// stored on the row for good; later streak changes never rewrite it.
func (s *Service) Create(ctx context.Context, userID string, dto CreateEntryDTO) (*models.EntryModel, error) {
	content, err := validateContent(dto.Content)
	if err != nil {
		return nil, err
	}
	if err := validateMood(dto.Mood); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}

	times, err := s.store.EntryTimes(userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	streak := ledger.ComputeStreak(append(times, now), now, s.userLocation(user))

	entry := &models.EntryModel{
		UserID:    userID,
		Content:   content,
		Mood:      dto.Mood,
		Weather:   dto.Weather,
		Tags:      models.StringArray(dto.Tags),
		WordCount: ledger.WordCount(content),
		MintState: models.MintStateUnminted,
	}
	// The row carries the same timestamp the streak was computed with.
	entry.CreatedAt = now
	entry.Breakdown = ledger.ComputeClarityPoints(entry, streak, dto.Mood != "", s.rewardConfig())
	entry.ClarityPoints = entry.Breakdown.Total

	if err := s.store.CreateEntry(entry); err != nil {
		return nil, err
	}

	if _, err := s.refreshUserCache(ctx, userID); err != nil {
		s.logger.Error("streak cache refresh failed", zap.String("entry", entry.ID), zap.Error(err))
	}
	s.mirrorEntry(ctx, entry)
	s.notifier.OnEntryCreate(entry)
	return entry, nil
}

// Update applies a partial edit. Changing content or mood invalidates the
// mirrored copy, so those edits flip the entry back to unsynced unless the
// immediate mirror push goes through. The points snapshot is never touched.
func (s *Service) Update(ctx context.Context, userID, id string, dto UpdateEntryDTO) (*models.EntryModel, error) {
	entry, err := s.store.GetEntry(userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	staling := false

	if dto.Content != nil {
		content, err := validateContent(*dto.Content)
		if err != nil {
			return nil, err
		}
		if content != entry.Content {
			updates["content"] = content
			updates["word_count"] = ledger.WordCount(content)
			staling = true
		}
	}
	if dto.Mood != nil {
		if err := validateMood(*dto.Mood); err != nil {
			return nil, err
		}
		if *dto.Mood != entry.Mood {
			updates["mood"] = *dto.Mood
			staling = true
		}
	}
	if dto.Weather != nil && *dto.Weather != entry.Weather {
		updates["weather"] = *dto.Weather
	}
	if dto.Tags != nil {
		raw, err := json.Marshal(*dto.Tags)
		if err != nil {
			return nil, err
		}
		updates["tags"] = string(raw)
	}
	if len(updates) == 0 {
		return entry, nil
	}
	if staling {
		updates["is_synced"] = false
	}

	if err := s.store.UpdateEntry(userID, id, updates); err != nil {
		return nil, err
	}
	entry, err = s.store.GetEntry(userID, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.refreshUserCache(ctx, userID); err != nil {
		s.logger.Error("streak cache refresh failed", zap.String("entry", id), zap.Error(err))
	}
	s.mirrorEntry(ctx, entry)
	s.notifier.OnEntryUpdate(entry)
	return entry, nil
}

// Delete removes the entry locally and tells the mirror to forget it. A
// mirror failure leaves an orphaned remote copy behind; reads never
// resurrect it locally because the local store is authoritative for writes.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteEntry(userID, id); err != nil {
		return err
	}
	if _, err := s.refreshUserCache(ctx, userID); err != nil {
		s.logger.Error("streak cache refresh failed", zap.String("entry", id), zap.Error(err))
	}
	if s.mirror != nil && s.mirror.Enabled() {
		if err := s.mirror.DeleteEntry(ctx, userID, id); err != nil {
			s.logger.Warn("mirror delete failed", zap.String("entry", id), zap.Error(err))
		}
	}
	s.notifier.OnEntryDelete(id)
	return nil
}

// GetEntry prefers the mirror and falls back to the local store on any
// mirror error, including not-found: an entry written moments ago may not
// have reached the mirror yet.
func (s *Service) GetEntry(ctx context.Context, userID, id string) (*models.EntryModel, error) {
	if s.mirror != nil && s.mirror.Enabled() {
		if entry, err := s.mirror.GetEntry(ctx, userID, id); err == nil {
			return entry, nil
		}
	}
	return s.store.GetEntry(userID, id)
}

// GetEntryLocal bypasses the mirror for callers that need the
// authoritative row, such as the mint flow.
func (s *Service) GetEntryLocal(userID, id string) (*models.EntryModel, error) {
	return s.store.GetEntry(userID, id)
}

// ListEntries returns the whole journal, newest first, mirror preferred.
func (s *Service) ListEntries(ctx context.Context, userID string) ([]models.EntryModel, error) {
	if s.mirror != nil && s.mirror.Enabled() {
		if entries, err := s.mirror.ListEntries(ctx, userID); err == nil {
			return entries, nil
		}
	}
	return s.store.ListEntries(userID)
}

func (s *Service) ListEntriesLocal(userID string) ([]models.EntryModel, error) {
	return s.store.ListEntries(userID)
}

// GetUser prefers the mirror copy of the profile and falls back locally.
func (s *Service) GetUser(ctx context.Context, id string) (*models.UserModel, error) {
	if s.mirror != nil && s.mirror.Enabled() {
		if user, err := s.mirror.GetUser(ctx, id); err == nil {
			return user, nil
		}
	}
	return s.store.GetUser(id)
}

func (s *Service) GetUserLocal(id string) (*models.UserModel, error) {
	return s.store.GetUser(id)
}

// UpdateUser routes profile writes through the coordinator so the mirror
// copy keeps up. updates keys are column names, values pre-serialized.
func (s *Service) UpdateUser(ctx context.Context, id string, updates map[string]interface{}) (*models.UserModel, error) {
	if err := s.store.UpdateUser(id, updates); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(id)
	if err != nil {
		return nil, err
	}
	s.mirrorUser(ctx, user)
	s.notifier.OnUserUpdate(user)
	return user, nil
}

// refreshUserCache recomputes the denormalized streak and points columns
// from the entry set. longest_streak only ever grows; total points track
// the live sum, so deleting an entry takes its points back.
func (s *Service) refreshUserCache(ctx context.Context, userID string) (*models.UserModel, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	times, err := s.store.EntryTimes(userID)
	if err != nil {
		return nil, err
	}
	total, err := s.store.SumClarityPoints(userID)
	if err != nil {
		return nil, err
	}

	streak := ledger.ComputeStreak(times, s.now(), s.userLocation(user))
	longest := user.LongestStreak
	if streak > longest {
		longest = streak
	}
	var lastEntry *time.Time
	for i := range times {
		if lastEntry == nil || times[i].After(*lastEntry) {
			t := times[i]
			lastEntry = &t
		}
	}

	updates := map[string]interface{}{
		"current_streak":       streak,
		"longest_streak":       longest,
		"total_clarity_points": total,
		"last_entry_date":      lastEntry,
	}
	if err := s.store.UpdateUser(userID, updates); err != nil {
		return nil, err
	}
	user, err = s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	s.mirrorUser(ctx, user)
	return user, nil
}

// mirrorEntry pushes one entry to the mirror and marks it synced on
// success. Failures only log; the row stays unsynced for the next sweep.
func (s *Service) mirrorEntry(ctx context.Context, entry *models.EntryModel) bool {
	if s.mirror == nil || !s.mirror.Enabled() {
		return false
	}
	if err := s.mirror.UpsertEntry(ctx, entry); err != nil {
		s.logger.Warn("mirror write failed, entry stays pending",
			zap.String("entry", entry.ID), zap.Error(err))
		return false
	}
	now := s.now()
	if err := s.store.MarkSynced(entry.ID, now); err != nil {
		s.logger.Error("sync flag update failed", zap.String("entry", entry.ID), zap.Error(err))
		return false
	}
	entry.IsSynced = true
	entry.LastSyncedAt = &now
	return true
}

func (s *Service) mirrorUser(ctx context.Context, user *models.UserModel) {
	if s.mirror == nil || !s.mirror.Enabled() {
		return
	}
	if err := s.mirror.UpsertUser(ctx, user); err != nil {
		s.logger.Warn("mirror user write failed", zap.String("user", user.ID), zap.Error(err))
	}
}

// SyncToCloud replays every pending local write against the mirror, oldest
// first so the mirror converges in creation order. Only one sweep runs at
// a time; a second caller gets a SYNC_IN_PROGRESS conflict. An unreachable
// mirror is not an error, the report just comes back offline.
func (s *Service) SyncToCloud(ctx context.Context, userID string) (*SyncReport, error) {
	if !s.syncBusy.CompareAndSwap(false, true) {
		return nil, apperr.Conflict(apperr.CodeSyncInProgress, "a sync sweep is already running")
	}
	defer s.syncBusy.Store(false)

	start := s.now()
	report := &SyncReport{}

	pending, err := s.store.ListUnsynced(userID)
	if err != nil {
		return nil, err
	}
	report.Pending = len(pending)

	online := s.mirror != nil && s.mirror.Enabled()
	if online {
		if err := s.mirror.Ping(ctx); err != nil {
			s.logger.Warn("mirror unreachable, sweep skipped", zap.Error(err))
			online = false
		}
	}
	report.Offline = !online

	if online {
		for i := range pending {
			if ctx.Err() != nil {
				break
			}
			entry := &pending[i]
			if err := s.mirror.UpsertEntry(ctx, entry); err != nil {
				report.Failed++
				report.Failures = append(report.Failures, SyncFailure{EntryID: entry.ID, Reason: err.Error()})
				s.logger.Warn("sweep push failed", zap.String("entry", entry.ID), zap.Error(err))
				continue
			}
			if err := s.store.MarkSynced(entry.ID, s.now()); err != nil {
				report.Failed++
				report.Failures = append(report.Failures, SyncFailure{EntryID: entry.ID, Reason: err.Error()})
				continue
			}
			report.Synced++
		}
		if user, err := s.store.GetUser(userID); err == nil {
			s.mirrorUser(ctx, user)
		}
	}

	report.DurationMS = time.Since(start).Milliseconds()
	report.FinishedAt = s.now()
	s.recordSweep(ctx, report)
	s.notifier.OnSyncComplete(report)
	return report, nil
}

// recordSweep files the sweep outcome in the task queue when redis is up.
func (s *Service) recordSweep(ctx context.Context, report *SyncReport) {
	if s.tasks == nil {
		return
	}
	task, err := s.tasks.Enqueue(ctx, taskqueue.TypeSyncSweep, report, "", "")
	if err != nil || task == nil {
		return
	}
	status := taskqueue.TaskCompleted
	errMsg := ""
	if report.Offline {
		status = taskqueue.TaskFailed
		errMsg = "mirror unreachable"
	}
	_ = s.tasks.UpdateStatus(ctx, task.ID, status, report, errMsg)
}

// Status reports connectivity and sweep backlog for the client's sync
// indicator.
func (s *Service) Status(ctx context.Context, userID string) (*SyncStatusDTO, error) {
	online := false
	if s.mirror != nil && s.mirror.Enabled() {
		online = s.mirror.Ping(ctx) == nil
	}
	pending, err := s.store.CountUnsynced(userID)
	if err != nil {
		return nil, err
	}
	last, err := s.store.LastSyncedAt(userID)
	if err != nil {
		return nil, err
	}
	return &SyncStatusDTO{
		IsOnline:     online,
		Syncing:      s.syncBusy.Load(),
		PendingSync:  pending,
		LastSyncTime: last,
	}, nil
}

// ApplyMintResult records a confirmed mint on the entry: NFT fields, the
// one-time mint bonus, and the flip back to unsynced so the sweep pushes
// the new revision. The caller owns the mint state machine; this only runs
// for an entry it has already moved to minting.
func (s *Service) ApplyMintResult(ctx context.Context, userID, entryID, nftAddress, signature, metadataURI string) (*models.EntryModel, error) {
	cfg := s.rewardConfig()
	now := s.now()

	err := s.store.Transaction(func(tx *entrystore.Store) error {
		entry, err := tx.GetEntry(userID, entryID)
		if err != nil {
			return err
		}
		if entry.MintState != models.MintStateMinting {
			return apperr.Internal("mint finalize on entry not in minting state", nil)
		}
		breakdown := ledger.ApplyMintBonus(entry.Breakdown, cfg)
		raw, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}
		return tx.UpdateEntry(userID, entryID, map[string]interface{}{
			"is_minted":             true,
			"mint_state":            models.MintStateMinted,
			"nft_address":           nftAddress,
			"transaction_signature": signature,
			"metadata_uri":          metadataURI,
			"minted_at":             now,
			"breakdown":             string(raw),
			"clarity_points":        breakdown.Total,
			"is_synced":             false,
		})
	})
	if err != nil {
		return nil, err
	}

	entry, err := s.store.GetEntry(userID, entryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.refreshUserCache(ctx, userID); err != nil {
		s.logger.Error("points cache refresh failed after mint", zap.String("entry", entryID), zap.Error(err))
	}
	s.mirrorEntry(ctx, entry)
	return entry, nil
}
