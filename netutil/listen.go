// Package netutil provides small helpers around net.Listen used by the
// naming server and by tests that need to wait for a listener to come up.
package netutil

import (
	"net"
	"os"
	"strings"
	"time"
)

// Listen is a thin wrapper around net.Listen that additionally recovers
// from a stale unix socket left behind by a process that died without
// cleaning up: if binding fails because the address is already in use,
// but nothing answers on it, the socket file is removed and bind is
// retried once.
func Listen(network string, address string) (net.Listener, error) {
	if network != "unix" {
		return net.Listen(network, address)
	}
	listener, err := net.Listen(network, address)
	if err != nil && strings.HasSuffix(err.Error(), "bind: address already in use") && !reachable(address) {
		_ = os.Remove(address)
		listener, err = net.Listen(network, address)
	}
	return listener, err
}

func reachable(pathname string) bool {
	conn, err := net.Dial("unix", pathname)
	if conn != nil {
		defer func() { _ = conn.Close() }()
	}
	if err == nil {
		return true
	}
	return !strings.HasSuffix(err.Error(), "connect: connection refused")
}

// WaitForListener tries to connect to the given addr and returns nil as
// soon as it succeeds, or the last error encountered once timeout elapses.
// Tests use this to synchronize on a listener before dialing it.
func WaitForListener(network, addr string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for time.Since(start) < timeout {
		if lastErr = tryDial(network, addr); lastErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return lastErr
}

func tryDial(network, addr string) error {
	conn, err := net.Dial(network, addr)
	if err == nil {
		err = conn.Close()
	}
	return err
}
