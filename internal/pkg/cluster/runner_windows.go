//go:build windows

package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// superviseWorkers forks workers onto private loopback ports and fronts
// them with a reverse proxy on the public address. Windows has no
// SO_REUSEPORT, so the master owns the socket and balances round-robin.
func superviseWorkers(logger *zap.Logger, opts Options) error {
	publicAddr := strings.TrimSpace(opts.ListenAddr)
	if publicAddr == "" {
		return errors.New("cluster listen address is required on windows")
	}
	host, port, err := splitListenAddr(publicAddr)
	if err != nil {
		return err
	}
	workerHost := host
	if workerHost == "" || workerHost == "0.0.0.0" || workerHost == "::" {
		workerHost = "127.0.0.1"
	}

	count := clampWorkers(opts.Workers)
	logger.Info("cluster mode enabled",
		zap.Int("master_pid", os.Getpid()),
		zap.Int("workers", count),
		zap.Int("cpu", runtime.NumCPU()),
		zap.String("addr", publicAddr),
	)

	p := newPool(logger, count)
	targets := make(map[int]string, count)
	startWorker := func(id int) error {
		addr := net.JoinHostPort(workerHost, strconv.Itoa(port+100+id))
		if err := p.start(id, addr); err != nil {
			return err
		}
		targets[id] = "http://" + addr
		return nil
	}
	for id := 1; id <= count; id++ {
		if err := startWorker(id); err != nil {
			p.kill()
			return err
		}
	}

	lb := new(balancer)
	if err := lb.Reset(targets); err != nil {
		p.kill()
		return err
	}

	srv := &http.Server{Addr: publicAddr, Handler: proxyHandler(lb, logger)}
	ln, err := net.Listen("tcp", publicAddr)
	if err != nil {
		p.kill()
		return fmt.Errorf("master listen %s: %w", publicAddr, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var (
		stopping  bool
		killTimer <-chan time.Time
	)
	for len(p.cmds) > 0 {
		select {
		case err := <-serveErr:
			if err != nil {
				p.interrupt()
				p.kill()
				return err
			}
			if !stopping {
				return errors.New("proxy server exited unexpectedly")
			}

		case sig := <-sigCh:
			if stopping {
				continue
			}
			stopping = true
			logger.Info("cluster shutting down", zap.String("signal", sig.String()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), killGracePeriod)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			p.interrupt()
			killTimer = time.After(killGracePeriod)

		case <-killTimer:
			p.kill()
			killTimer = nil

		case ex := <-p.exitCh:
			if !p.reap(ex) {
				continue
			}
			delete(targets, ex.id)
			if !stopping && ex.code != 0 {
				logger.Warn("worker crashed, restarting", zap.Int("worker_id", ex.id))
				if err := startWorker(ex.id); err != nil {
					return err
				}
			}
			_ = lb.Reset(targets)
		}
	}

	logger.Info("cluster master exited")
	return nil
}

func splitListenAddr(addr string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		if !strings.HasPrefix(addr, ":") {
			return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
		host, portStr = "", addr[1:]
	}
	port, err = strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid listen port in %q", addr)
	}
	return host, port, nil
}

// balancer hands out worker targets round-robin. The target list is
// replaced wholesale whenever workers come or go.
type balancer struct {
	targets atomic.Pointer[[]*url.URL]
	next    atomic.Uint64
}

func (b *balancer) Reset(targets map[int]string) error {
	list := make([]*url.URL, 0, len(targets))
	for id, raw := range targets {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse target for worker %d: %w", id, err)
		}
		list = append(list, u)
	}
	if len(list) == 0 {
		return errors.New("no available worker targets")
	}
	b.targets.Store(&list)
	b.next.Store(0)
	return nil
}

func (b *balancer) Next() *url.URL {
	list := b.targets.Load()
	if list == nil || len(*list) == 0 {
		return nil
	}
	n := b.next.Add(1)
	return (*list)[(n-1)%uint64(len(*list))]
}

func proxyHandler(lb *balancer, logger *zap.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			target := lb.Next()
			if target == nil {
				return
			}
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("proxy request failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "no healthy workers", http.StatusBadGateway)
		},
	}
}
