//go:build !windows

package cluster

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenTCP opens the server socket. With reusePort set, every worker binds
// the same address and the kernel spreads accepted connections across them.
func ListenTCP(addr string, reusePort bool) (net.Listener, error) {
	if !reusePort {
		return net.Listen("tcp", addr)
	}
	lc := net.ListenConfig{Control: reusePortControl}
	return lc.Listen(context.Background(), "tcp", addr)
}

func reusePortControl(_, _ string, conn syscall.RawConn) error {
	var sockErr error
	err := conn.Control(func(fd uintptr) {
		for _, opt := range []int{unix.SO_REUSEADDR, unix.SO_REUSEPORT} {
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1); sockErr != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("set socket option: %w", sockErr)
	}
	return nil
}
