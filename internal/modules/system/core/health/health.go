// Package health exposes liveness and operator endpoints: a public
// status probe, cron job inspection, a Bark push test and log file
// management.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/pkg/bark"
	"github.com/clarity-app/core/internal/pkg/cron"
	"github.com/clarity-app/core/internal/pkg/logfile"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/response"
)

var startedAt = time.Now()

// MirrorPinger is the slice of the cloud mirror the probe needs.
type MirrorPinger interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Created  int64  `json:"created"`
}

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rc *pkgredis.Client, mirror MirrorPinger, sched *cron.Scheduler, barkSvc *bark.Service, cfgSvc *appconfigs.Service, authMW gin.HandlerFunc) {
	rg.GET("/ping", func(c *gin.Context) {
		response.OK(c, gin.H{"message": "pong", "timestamp": time.Now().UnixMilli()})
	})

	// The local database is the only fatal dependency. The journal keeps
	// working with Redis or the mirror down, so those report but never
	// flip the status code.
	rg.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.Ping() == nil

		redisOK := false
		if rc != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			redisOK = rc.Raw().Ping(ctx).Err() == nil
			cancel()
		}

		mirrorStatus := "disabled"
		if mirror != nil && mirror.Enabled() {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			if mirror.Ping(ctx) == nil {
				mirrorStatus = "ok"
			} else {
				mirrorStatus = "offline"
			}
			cancel()
		}

		status := "ok"
		code := http.StatusOK
		if !dbOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
			"mirror":   mirrorStatus,
			"uptime":   int64(time.Since(startedAt).Seconds()),
		})
	})

	adminHealth := rg.Group("/health", authMW)
	cronGroup := adminHealth.Group("/cron")
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})

		cronGroup.GET("/task/:name", func(c *gin.Context) {
			result, err := sched.GetTask(c.Param("name"))
			if err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, result)
		})
	}

	adminHealth.POST("/bark/test", func(c *gin.Context) {
		cfg, err := cfgSvc.Get()
		if err != nil {
			response.InternalError(c, err)
			return
		}
		if !cfg.BarkOptions.Enable || cfg.BarkOptions.Key == "" {
			response.UnprocessableEntity(c, "bark is not enabled")
			return
		}
		if err := barkSvc.Push("Push test", "If you can read this, Bark alerts are configured correctly."); err != nil {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.OK(c, gin.H{"ok": true})
	})

	logGroup := adminHealth.Group("/log")
	{
		logGroup.GET("/list", func(c *gin.Context) {
			logDir := logfile.ResolveDir()
			entries, err := os.ReadDir(logDir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					response.OK(c, []logItem{})
					return
				}
				response.BadRequest(c, "log dir not exists")
				return
			}

			items := make([]logItem, 0, len(entries))
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				items = append(items, logItem{
					Size:     formatByteSize(info.Size()),
					Filename: entry.Name(),
					Created:  info.ModTime().UnixMilli(),
				})
			}

			sort.Slice(items, func(i, j int) bool {
				return items[i].Created > items[j].Created
			})
			response.OK(c, items)
		})

		logGroup.GET("", func(c *gin.Context) {
			filename, ok := cleanLogFilename(c.Query("filename"))
			if !ok {
				response.UnprocessableEntity(c, "filename must be string")
				return
			}

			logPath := filepath.Join(logfile.ResolveDir(), filename)
			data, err := os.ReadFile(logPath)
			if err != nil {
				response.BadRequest(c, "log file not exists")
				return
			}
			c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
		})

		// Today's file is held open by the writer, so it is truncated in
		// place instead of removed.
		logGroup.DELETE("", func(c *gin.Context) {
			filename, ok := cleanLogFilename(c.Query("filename"))
			if !ok {
				response.UnprocessableEntity(c, "filename must be string")
				return
			}

			logDir := logfile.ResolveDir()
			targetPath := filepath.Join(logDir, filename)
			todayPath := filepath.Join(logDir, logfile.TodayFilename(time.Now()))
			if filepath.Clean(targetPath) == filepath.Clean(todayPath) {
				if err := os.WriteFile(targetPath, []byte(""), 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
					response.InternalError(c, err)
					return
				}
			} else if err := os.Remove(targetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				response.InternalError(c, err)
				return
			}
			response.NoContent(c)
		})
	}
}

func cleanLogFilename(raw string) (string, bool) {
	filename := filepath.Base(strings.TrimSpace(raw))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return "", false
	}
	return filename, true
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
