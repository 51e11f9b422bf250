//go:build !windows

package cluster

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// superviseWorkers forks one worker per slot and restarts any that crash.
// Workers inherit the public listen address and share the port through
// SO_REUSEPORT, so the master never opens a socket of its own.
func superviseWorkers(logger *zap.Logger, opts Options) error {
	count := clampWorkers(opts.Workers)
	logger.Info("cluster mode enabled",
		zap.Int("master_pid", os.Getpid()),
		zap.Int("workers", count),
		zap.Int("cpu", runtime.NumCPU()),
	)

	p := newPool(logger, count)
	for id := 1; id <= count; id++ {
		if err := p.start(id, ""); err != nil {
			p.kill()
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var (
		stopping  bool
		killTimer <-chan time.Time
	)
	for len(p.cmds) > 0 {
		select {
		case sig := <-sigCh:
			if stopping {
				continue
			}
			stopping = true
			logger.Info("cluster shutting down", zap.String("signal", sig.String()))
			p.interrupt()
			killTimer = time.After(killGracePeriod)

		case <-killTimer:
			p.kill()
			killTimer = nil

		case ex := <-p.exitCh:
			if !p.reap(ex) {
				continue
			}
			// A clean worker exit shrinks the pool; only crashes restart.
			if stopping || ex.code == 0 {
				continue
			}
			logger.Warn("worker crashed, restarting", zap.Int("worker_id", ex.id))
			if err := p.start(ex.id, ""); err != nil {
				return err
			}
		}
	}

	logger.Info("cluster master exited")
	return nil
}
