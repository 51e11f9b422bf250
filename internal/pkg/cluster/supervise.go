package cluster

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// killGracePeriod is how long workers get to exit after the shutdown
// signal before the master force kills them.
const killGracePeriod = 8 * time.Second

// Run hands the process over to workerMain. With cluster mode disabled, or
// when this process already is a forked worker, workerMain runs in place.
// Otherwise the process becomes the master and supervises its workers until
// the last one is gone.
func Run(logger *zap.Logger, opts Options, workerMain func() error) error {
	if workerMain == nil {
		return errors.New("workerMain is nil")
	}
	if err := validateOptions(opts); err != nil {
		return err
	}
	if !opts.Enable || IsWorker() {
		return workerMain()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return superviseWorkers(logger, opts)
}

type workerExit struct {
	id   int
	pid  int
	code int
}

// pool tracks live worker processes by worker id. It is not safe for
// concurrent use; the master loop owns it.
type pool struct {
	logger *zap.Logger
	cmds   map[int]*exec.Cmd
	exitCh chan workerExit
}

func newPool(logger *zap.Logger, size int) *pool {
	return &pool{
		logger: logger,
		cmds:   make(map[int]*exec.Cmd, size),
		exitCh: make(chan workerExit, size*2),
	}
}

// start forks a worker by re-executing the current binary with the worker
// role injected into its environment. workerAddr is empty except on
// Windows, where each worker gets a private listen address.
func (p *pool) start(id int, workerAddr string) error {
	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(bin, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = workerEnv(os.Environ(), id, workerAddr)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %d: %w", id, err)
	}
	p.cmds[id] = cmd

	fields := []zap.Field{zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid)}
	if workerAddr != "" {
		fields = append(fields, zap.String("addr", workerAddr))
	}
	p.logger.Info("worker started", fields...)

	pid := cmd.Process.Pid
	go func() {
		p.exitCh <- workerExit{id: id, pid: pid, code: waitCode(cmd.Wait())}
	}()
	return nil
}

// reap removes a finished worker and reports whether the event was live.
// A stale pid shows up when a restarted worker reuses the id.
func (p *pool) reap(ex workerExit) bool {
	cmd, ok := p.cmds[ex.id]
	if !ok || cmd == nil || cmd.Process == nil || cmd.Process.Pid != ex.pid {
		return false
	}
	delete(p.cmds, ex.id)

	fields := []zap.Field{zap.Int("worker_id", ex.id), zap.Int("pid", ex.pid), zap.Int("code", ex.code)}
	if ex.code == 0 {
		p.logger.Info("worker exited", fields...)
	} else {
		p.logger.Warn("worker exited", fields...)
	}
	return true
}

// interrupt asks every live worker to shut down.
func (p *pool) interrupt() {
	for id, cmd := range p.cmds {
		if cmd == nil || cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			p.logger.Warn("worker shutdown signal failed",
				zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid), zap.Error(err))
			continue
		}
		p.logger.Info("worker shutdown requested",
			zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid))
	}
}

// kill force kills every worker that outlived the grace period.
func (p *pool) kill() {
	for id, cmd := range p.cmds {
		if cmd == nil || cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			p.logger.Warn("worker kill failed",
				zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid), zap.Error(err))
			continue
		}
		p.logger.Warn("worker force killed",
			zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid))
	}
}

// workerEnv copies the environment with the cluster role variables replaced
// so a worker never inherits stale role state from a previous fork.
func workerEnv(base []string, id int, workerAddr string) []string {
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		if strings.HasPrefix(kv, EnvRole+"=") ||
			strings.HasPrefix(kv, EnvWorkerID+"=") ||
			strings.HasPrefix(kv, EnvWorkerAddr+"=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, EnvRole+"="+RoleWorker, EnvWorkerID+"="+strconv.Itoa(id))
	if workerAddr != "" {
		env = append(env, EnvWorkerAddr+"="+workerAddr)
	}
	return env
}

// clampWorkers resolves the requested worker count. Zero or negative means
// one per CPU, and anything above the CPU count is capped to it.
func clampWorkers(requested int) int {
	if cpus := runtime.NumCPU(); requested <= 0 || requested > cpus {
		return cpus
	}
	return requested
}

func waitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
