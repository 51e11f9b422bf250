package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/database"
	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/modules/gateway/gateway"
	"github.com/clarity-app/core/internal/modules/gateway/notify"
	"github.com/clarity-app/core/internal/modules/gateway/webhook"
	"github.com/clarity-app/core/internal/modules/journal"
	"github.com/clarity-app/core/internal/modules/nft/chain"
	"github.com/clarity-app/core/internal/modules/nft/metastore"
	"github.com/clarity-app/core/internal/modules/nft/mint"
	"github.com/clarity-app/core/internal/modules/nft/wallet"
	"github.com/clarity-app/core/internal/modules/processing/prompt"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/pkg/bark"
	"github.com/clarity-app/core/internal/pkg/cluster"
	pkgcron "github.com/clarity-app/core/internal/pkg/cron"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
	"github.com/clarity-app/core/internal/store/cloudmirror"
	"github.com/clarity-app/core/internal/store/entrystore"
)

// services bundles the long-lived domain services. Routes and cron jobs
// must share these instances: the journal's sync single-flight and the
// mint state machine only hold if there is exactly one of each.
type services struct {
	cfg     *appconfigs.Service
	bark    *bark.Service
	notify  *notify.Service
	hooks   *webhook.Service
	store   *entrystore.Store
	tasks   *taskqueue.Service
	journal *journal.Service
	mint    *mint.Service
	prompt  *prompt.Service
}

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	hub    *gateway.Hub
	mirror *cloudmirror.Mongo
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
	svc    services
}

// New initializes the application: config, local DB, Redis, cloud mirror,
// NFT stack, routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.Redis.URLValue())
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
		if !cluster.ShouldLogDevDiagnostics() {
			gin.DebugPrintRouteFunc = func(string, string, string, int) {}
			gin.DebugPrintFunc = func(string, ...interface{}) {}
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Idempotence"},
		ExposeHeaders:    []string{"Content-Length", "x-clarity-cache"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		corsConfig.AllowOriginFunc = allowOrigin(cfg.AllowedOrigins)
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	hub := gateway.NewHub(rc, logger, func(token string) bool {
		_, err := middleware.ValidateToken(db, token)
		return err == nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mirror, err := cloudmirror.Connect(ctx, cloudmirror.Config{
		URL:      cfg.Mirror.URL,
		Database: cfg.Mirror.Database,
		Timeout:  time.Duration(cfg.Mirror.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		// A bad mirror must never keep the journal from starting; writes
		// stay local and sync picks them up once the config is fixed.
		logger.Warn("cloud mirror unavailable, running local-only", zap.Error(err))
		mirror, _ = cloudmirror.Connect(ctx, cloudmirror.Config{})
	}

	svc := buildServices(ctx, cfg, db, rc, mirror, hub, logger)

	sched := pkgcron.New()
	if cluster.ShouldRunCron() {
		bootstrapOnce(svc, logger)
		registerCronJobs(sched, db, svc, logger)
		go sched.Start(ctx)
	}

	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		hub:    hub,
		mirror: mirror,
		logger: logger,
		cancel: cancel,
		sched:  sched,
		svc:    svc,
	}
	app.registerRoutes(rc)

	return app, nil
}

func buildServices(ctx context.Context, cfg *config.AppConfig, db *gorm.DB, rc *pkgredis.Client, mirror *cloudmirror.Mongo, hub *gateway.Hub, logger *zap.Logger) services {
	cfgSvc := appconfigs.NewService(db)

	barkSvc := bark.New(func() (key, serverURL, appName string) {
		opts, err := cfgSvc.Get()
		if err != nil || !opts.BarkOptions.Enable {
			return "", "", ""
		}
		return opts.BarkOptions.Key, opts.BarkOptions.ServerURL, opts.App.Name
	})

	notifySvc := notify.New(cfgSvc, barkSvc, hub)
	hooksSvc := webhook.NewService(db)
	notifySvc.SetWebhooks(hooksSvc)
	store := entrystore.NewStore(db)
	taskSvc := taskqueue.NewService(rc)
	journalSvc := journal.NewService(cfg, store, mirror, cfgSvc, notifySvc, taskSvc, logger)

	chainClient := buildChainClient(cfgSvc, logger)
	walletAdapter := wallet.NewFileWallet(cfg.WalletKeyPath(), chainClient)
	if err := walletAdapter.Connect(); err != nil {
		logger.Warn("wallet keystore unreadable, minting stays unavailable", zap.Error(err))
	}
	metaStore := buildMetadataStore(ctx, cfgSvc, logger)
	mintSvc := mint.NewService(store, journalSvc, walletAdapter, chainClient, metaStore, notifySvc, logger)

	return services{
		cfg:     cfgSvc,
		bark:    barkSvc,
		notify:  notifySvc,
		hooks:   hooksSvc,
		store:   store,
		tasks:   taskSvc,
		journal: journalSvc,
		mint:    mintSvc,
		prompt:  prompt.NewService(db),
	}
}

// buildChainClient picks the chain backend from the stored options. Only
// devnet ships with a working client; a mainnet network gets a client
// that refuses every submission, so changing the network takes a restart.
func buildChainClient(cfgSvc *appconfigs.Service, logger *zap.Logger) chain.Client {
	opts, err := cfgSvc.Get()
	if err != nil {
		logger.Warn("stored config unreadable, chain defaults to devnet simulator", zap.Error(err))
		return chain.NewSimulator("", 0)
	}
	if opts.Chain.IsMainnet() {
		if cluster.ShouldLogBootstrap() {
			logger.Warn("mainnet configured but no mainnet client is bundled, mints will be refused",
				zap.String("network", opts.Chain.Network))
		}
		return chain.NewUnsupported(opts.Chain.Network)
	}
	return chain.NewSimulator(opts.Chain.Network, opts.Chain.AirdropLimitSOL)
}

// buildMetadataStore uses the configured S3 bucket when present, and an
// in-memory store otherwise so devnet minting works out of the box.
func buildMetadataStore(ctx context.Context, cfgSvc *appconfigs.Service, logger *zap.Logger) metastore.Store {
	opts, err := cfgSvc.Get()
	if err != nil || strings.TrimSpace(opts.S3Options.Bucket) == "" {
		return metastore.NewMemoryStore()
	}
	s3Store, err := metastore.NewS3Store(ctx, opts.S3Options)
	if err != nil {
		logger.Warn("s3 metadata store misconfigured, falling back to in-memory", zap.Error(err))
		return metastore.NewMemoryStore()
	}
	return s3Store
}

// bootstrapOnce runs the startup chores that only one process in the
// cluster should do: reverting mints interrupted by a crash and seeding
// the starter prompts.
func bootstrapOnce(svc services, logger *zap.Logger) {
	if reverted, err := svc.mint.ReconcileInterrupted(); err != nil {
		logger.Warn("mint reconcile failed", zap.Error(err))
	} else if reverted > 0 {
		logger.Info("reverted interrupted mints", zap.Int("count", reverted))
	}

	if seeded, err := svc.prompt.SeedDefaults(); err != nil {
		logger.Warn("prompt seeding failed", zap.Error(err))
	} else if seeded > 0 {
		logger.Info("seeded starter prompts", zap.Int("count", seeded))
	}
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops the hub, the scheduler, and the mirror connection.
func (a *App) Shutdown() {
	a.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.mirror.Close(ctx)
}

func (a *App) startTime() time.Time {
	return processStart
}

var processStart = time.Now()
