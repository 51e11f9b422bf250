package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/modules/stats/aggregate"
	"github.com/clarity-app/core/internal/modules/storage/backup"
	pkgcron "github.com/clarity-app/core/internal/pkg/cron"
	"github.com/clarity-app/core/internal/pkg/mail"
	"github.com/clarity-app/core/internal/pkg/prettylog"
	"github.com/clarity-app/core/internal/pkg/session"
)

const (
	sessionRetention  = 30 * 24 * time.Hour
	taskLogRetention  = 7 * 24 * time.Hour
	mintSweepInterval = time.Hour
)

// registerCronJobs registers the background maintenance jobs. Only one
// process per cluster runs these; see cluster.ShouldRunCron.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, svc services, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "sync_entries",
		Description: "nightly push of unsynced entries to the cloud mirror",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			owner, err := svc.store.FirstUser()
			if err != nil {
				return err
			}
			if owner == nil || !owner.Preferences.AutoSync {
				return nil
			}
			cronLogger.Info("nightly sync started", prettylog.StartField())
			report, err := svc.journal.SyncToCloud(ctx, owner.ID)
			if err != nil {
				cronLogger.Warn("nightly sync failed", zap.Error(err))
				return err
			}
			if report.Offline {
				cronLogger.Info("nightly sync skipped, mirror offline",
					zap.Int("pending", report.Pending))
				return nil
			}
			cronLogger.Info("nightly sync finished",
				zap.Int("synced", report.Synced),
				zap.Int("failed", report.Failed),
				zap.Int64("duration_ms", report.DurationMS),
				prettylog.SuccessField())
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "reconcile_mints",
		Description: "revert mint attempts stuck after a crash",
		Interval:    mintSweepInterval,
		Fn: func(ctx context.Context) error {
			reverted, err := svc.mint.ReconcileInterrupted()
			if err != nil {
				cronLogger.Warn("mint sweep failed", zap.Error(err))
				return err
			}
			if reverted > 0 {
				cronLogger.Info("reverted interrupted mints", zap.Int("count", reverted))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "cleanup_sessions",
		Description: "drop auth sessions idle past the retention window",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			removed, err := session.Cleanup(db, sessionRetention)
			if err != nil {
				cronLogger.Warn("session cleanup failed", zap.Error(err))
				return err
			}
			if removed > 0 {
				cronLogger.Info("cleaned up stale sessions", zap.Int64("count", removed))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "cleanup_task_queue",
		Description: "clear finished background tasks past the retention window",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			before := time.Now().Add(-taskLogRetention).UnixMilli()
			if err := svc.tasks.DeleteCompleted(ctx, before); err != nil {
				cronLogger.Warn("task queue cleanup failed", zap.Error(err))
				return err
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "auto_backup",
		Description: "daily local backup of the journal database",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			if err := backup.CreateLocalBackup(db); err != nil {
				cronLogger.Warn("backup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("backup written")
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "weekly_recap",
		Description: "weekly recap email on the configured weekday",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			return sendWeeklyRecap(db, svc, time.Now(), cronLogger)
		},
	})
}

// sendWeeklyRecap runs daily and only sends on the configured weekday, so
// a restart shifts the send time by at most a day rather than a week.
func sendWeeklyRecap(db *gorm.DB, svc services, now time.Time, logger *zap.Logger) error {
	opts, err := svc.cfg.Get()
	if err != nil {
		return err
	}
	if !opts.MailOptions.Enable || !opts.MailOptions.EnableRecap {
		return nil
	}
	if now.Weekday() != parseRecapDay(opts.MailOptions.RecapDay) {
		return nil
	}

	owner, err := svc.store.FirstUser()
	if err != nil {
		return err
	}
	if owner == nil || strings.TrimSpace(owner.Mail) == "" {
		return nil
	}

	digest, err := aggregate.BuildWeeklyDigest(db, owner, now)
	if err != nil {
		return err
	}

	sender := mail.New(mail.FromOptions(opts.MailOptions))
	err = sender.SendWeeklyRecap(owner.Mail, mail.RecapData{
		OwnerName:     owner.Name,
		AppName:       opts.App.Name,
		WeekStart:     digest.WeekStart,
		WeekEnd:       digest.WeekEnd,
		EntryCount:    digest.EntryCount,
		DaysWritten:   digest.DaysWritten,
		PointsEarned:  digest.PointsEarned,
		TotalPoints:   owner.TotalPoints,
		CurrentStreak: owner.CurrentStreak,
		LongestStreak: owner.LongestStreak,
		TopMood:       digest.TopMood,
		MintedCount:   digest.MintedCount,
	})
	if err != nil {
		logger.Warn("weekly recap failed", zap.Error(err))
		return err
	}
	logger.Info("weekly recap sent",
		zap.Int("entries", digest.EntryCount),
		zap.Int("days", digest.DaysWritten))
	return nil
}

func parseRecapDay(name string) time.Weekday {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Sunday
	}
}
