//go:build windows

package cluster

import (
	"errors"
	"net"
)

// ListenTCP opens the server socket. Windows has no SO_REUSEPORT; clustered
// workers bind private ports behind the master's proxy instead, so
// reusePort must stay false here.
func ListenTCP(addr string, reusePort bool) (net.Listener, error) {
	if reusePort {
		return nil, errors.New("SO_REUSEPORT is not available on windows")
	}
	return net.Listen("tcp", addr)
}
