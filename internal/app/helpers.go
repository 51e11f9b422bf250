package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/modules/storage/backup"
	"github.com/clarity-app/core/internal/pkg/cluster"
	jwtpkg "github.com/clarity-app/core/internal/pkg/jwt"
	"github.com/clarity-app/core/internal/pkg/logfile"
)

// applyRuntimeSettings pushes config-derived settings into the process
// environment and globals that packages read lazily. It must run before
// anything opens log files, issues tokens, or buckets entries by day.
func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) error {
	_ = os.Setenv(logfile.EnvLogDir, cfg.LogDir())
	_ = os.Setenv(backup.EnvBackupDir, cfg.BackupDir())

	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else if cluster.ShouldLogBootstrap() {
		logger.Warn("jwt_secret is empty, sessions will not survive restarts")
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil
	}
	loc, err := parseTimezoneLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	// The fallback streak day boundary follows this zone for users who
	// have not set one in their preferences.
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return nil
}

func parseTimezoneLocation(raw string) (*time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		return time.Local, nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if len(tz) == 6 && (tz[0] == '+' || tz[0] == '-') && tz[3] == ':' {
		h, errH := strconv.Atoi(tz[1:3])
		m, errM := strconv.Atoi(tz[4:6])
		if errH == nil && errM == nil && h <= 23 && m <= 59 {
			offset := h*3600 + m*60
			if tz[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(tz, offset), nil
		}
	}
	return nil, fmt.Errorf("expect IANA zone (e.g. Asia/Tokyo) or UTC offset (e.g. +09:00)")
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	if d < 24*time.Hour {
		return d.Truncate(time.Hour).String()
	}
	return d.Truncate(24 * time.Hour).String()
}
