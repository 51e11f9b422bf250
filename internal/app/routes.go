package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appcfg "github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/modules/auth/auth"
	"github.com/clarity-app/core/internal/modules/auth/authn"
	"github.com/clarity-app/core/internal/modules/auth/user"
	"github.com/clarity-app/core/internal/modules/debug"
	"github.com/clarity-app/core/internal/modules/gateway/gateway"
	"github.com/clarity-app/core/internal/modules/gateway/webhook"
	init_ "github.com/clarity-app/core/internal/modules/init"
	"github.com/clarity-app/core/internal/modules/journal"
	"github.com/clarity-app/core/internal/modules/nft/metastore"
	"github.com/clarity-app/core/internal/modules/nft/mint"
	"github.com/clarity-app/core/internal/modules/processing/insight"
	"github.com/clarity-app/core/internal/modules/processing/markdown"
	"github.com/clarity-app/core/internal/modules/processing/prompt"
	"github.com/clarity-app/core/internal/modules/processing/textmacro"
	"github.com/clarity-app/core/internal/modules/servertime"
	"github.com/clarity-app/core/internal/modules/stats/aggregate"
	"github.com/clarity-app/core/internal/modules/storage/backup"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/modules/system/core/health"
	"github.com/clarity-app/core/internal/modules/system/core/option"
	"github.com/clarity-app/core/internal/modules/tasks/crontask"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/response"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(db)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "clarity-core",
		"version":  "1.0.0",
		"homepage": "https://github.com/clarity-app/core",
		"issues":   "https://github.com/clarity-app/core/issues",
	}

	apiPrefix := "/api/v2"

	// The gateway mounts outside the versioned prefix. Socket handshakes
	// carry their token in the connect payload, not the Authorization
	// header, so the limiter treats them as anonymous.
	root := r.Group("", middleware.RateLimit(rc.Raw(), a.svc.bark))

	// Versioned API. OptionalAuth must resolve the caller before the
	// limiter and the cache decide whether to skip authenticated traffic.
	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth(db))
	api.Use(middleware.RateLimit(rc.Raw(), a.svc.bark))
	api.Use(middleware.Idempotence(rc.Raw()))
	api.Use(middleware.HTTPCache(rc.Raw(), middleware.HTTPCacheOptions{
		TTL:                    15 * time.Second,
		EnableCDNHeader:        true,
		EnableForceCacheHeader: false,
		Disable:                a.cfg.IsDev(),
		SkipPaths:              httpCacheSkipPaths(apiPrefix),
	}))

	// Infrastructure: liveness, readiness, server clock for offline-first
	// day bucketing, and the first-launch setup flow.
	health.RegisterRoutes(api, db, rc, a.mirror, a.sched, a.svc.bark, a.svc.cfg, authMW)
	servertime.RegisterRoutes(api)
	init_.NewHandler(db, a.svc.cfg).RegisterRoutes(api)

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(a.startTime()).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	cleanCache := func(c *gin.Context) {
		a.svc.cfg.Invalidate()
		deleted, err := middleware.PurgeHTTPCache(c.Request.Context(), rc.Raw())
		if err != nil {
			response.InternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
	}
	api.GET("/clean_cache", authMW, cleanCache)
	api.GET("/clean_redis", authMW, func(c *gin.Context) {
		rc.Raw().FlushDB(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Stored config
	appconfigs.NewHandler(a.svc.cfg).RegisterRoutes(api, authMW)

	// Auth & owner profile
	auth.NewHandler(auth.NewService(db), a.svc.cfg).RegisterRoutes(api, authMW)
	authn.NewHandler(db, a.svc.cfg, rc).RegisterRoutes(api, authMW)
	user.NewHandler(user.NewService(a.svc.journal), db).RegisterRoutes(api, authMW)

	// Journal entries and cloud sync
	journal.NewHandler(a.svc.journal).RegisterRoutes(api, authMW)

	// NFT minting
	mint.NewHandler(a.svc.mint).RegisterRoutes(api, authMW)

	// Stats
	aggregate.RegisterRoutes(api, db, a.svc.cfg, a.svc.journal, a.hub, rc, authMW)

	// Entry processing: AI insights, markdown import/export, text macros,
	// writing prompts.
	insight.NewHandler(insight.NewService(db, a.svc.cfg, a.svc.tasks)).RegisterRoutes(api, authMW)
	macroSvc := textmacro.NewService(a.svc.cfg)
	textmacro.NewHandler(db, macroSvc).RegisterRoutes(api, authMW)
	markdown.NewHandler(db, macroSvc).RegisterRoutes(api, authMW)
	prompt.NewHandler(a.svc.prompt).RegisterRoutes(api, authMW)

	// Backups
	backup.NewHandler(db, a.svc.cfg, rc,
		backup.WithLogger(a.logger),
		backup.WithUploaderFactory(func(ctx context.Context, opts appcfg.S3Options) (backup.Uploader, error) {
			return metastore.NewS3Store(ctx, opts)
		}),
	).RegisterRoutes(api, authMW)

	// Options (key-value store)
	option.NewHandler(db).RegisterRoutes(api, authMW)

	// Cron and task queue management (admin)
	crontask.NewHandler(a.sched, a.svc.tasks).RegisterRoutes(api, authMW)

	// Outbound webhooks
	webhook.NewHandler(a.svc.hooks).RegisterRoutes(api, authMW)

	// Dev-only diagnostics: event injection and macro preview
	if a.cfg.IsDev() {
		debug.NewHandler(db, a.hub, a.svc.hooks, macroSvc).RegisterRoutes(api, authMW)
	}

	// WebSocket gateway
	gateway.RegisterRoutes(root, a.hub, authMW)
}

// httpCacheSkipPaths lists the anonymous GET endpoints that must never
// serve a stale body: the clock sync pair, probes, and the setup wizard
// state the client polls during onboarding.
func httpCacheSkipPaths(apiPrefix string) []string {
	p := strings.TrimSuffix(strings.TrimSpace(apiPrefix), "/")
	if p == "" {
		p = "/api/v2"
	}
	return []string{
		p + "/ping",
		p + "/health",
		p + "/uptime",
		p + "/server-time",
		p + "/init",
		p + "/init/*",
		p + "/clean_cache",
		p + "/clean_redis",
	}
}
