package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clarity-app/core/internal/app"
	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/database"
	"github.com/clarity-app/core/internal/pkg/cluster"
	"github.com/clarity-app/core/internal/pkg/logfile"
	"github.com/clarity-app/core/internal/pkg/prettylog"
	"github.com/clarity-app/core/internal/pkg/proctitle"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	// The log pipeline reads its target dir from the environment, so the
	// dir must be exported before the logger opens files.
	_ = os.Setenv(logfile.EnvLogDir, cfg.LogDir())

	logger, err := logfile.NewZapLogger()
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("log pipeline unavailable, falling back to stderr", zap.Error(err))
	}
	defer logger.Sync()

	switch {
	case cluster.IsWorker():
		_ = proctitle.Set(fmt.Sprintf("clarity-core: worker %d", cluster.WorkerID()))
	case cfg.Cluster.Enable:
		_ = proctitle.Set("clarity-core: master")
	default:
		_ = proctitle.Set("clarity-core")
	}

	// Migrate exactly once, before any worker forks. Workers connect
	// without touching the schema.
	if !cluster.IsWorker() {
		if err := database.EnsureSchema(cfg); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
	}

	opts := cluster.Options{
		Enable:     cfg.Cluster.Enable,
		Workers:    cfg.Cluster.Workers,
		ListenAddr: fmt.Sprintf(":%d", cfg.Port),
	}
	if err := cluster.Run(logger, opts, func() error {
		return serve(logger, cfg, opts.Enable)
	}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// serve runs one HTTP process until a signal or a listener error. In
// cluster mode every worker calls this with a SO_REUSEPORT listener so the
// kernel spreads connections across them.
func serve(logger *zap.Logger, cfg *config.AppConfig, reusePort bool) error {
	application, err := app.New(logger, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	// Windows workers bind a private per-worker port behind the master's
	// proxy; everywhere else workers share the public port via SO_REUSEPORT.
	addr := application.Addr()
	if workerAddr := cluster.WorkerListenAddr(); workerAddr != "" {
		addr, reusePort = workerAddr, false
	}
	ln, err := cluster.ListenTCP(addr, reusePort)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: application.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr), prettylog.ReadyField())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")
	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
