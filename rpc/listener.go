package rpc

import (
	"net"
	"net/rpc"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/dfs/netutil"
)

// Listener exposes a single object implementing a remote interface on a
// TCP (or unix, for local testing) endpoint. Its own accept loop hands
// each accepted connection to a fresh goroutine running the net/rpc
// server's ServeConn; Proxy makes one call per connection. Listener
// adds the lifecycle that net/rpc itself does not provide: single-shot
// start, idempotent stop, address-ready synchronization and hooks.
type Listener struct {
	// Name identifies the interface being served, e.g. "Service" or
	// "Registration". It prefixes every exported method of Delegate in
	// the wire method identifier, exactly as net/rpc requires.
	Name string

	// Delegate is the object implementing the remote interface. Its
	// exported methods must have the net/rpc shape: func(Args,
	// *Reply) error.
	Delegate interface{}

	// OnStopped is invoked once, after Stop unblocks the accept loop.
	// cause is nil for a clean Stop, or the error that caused the
	// accept loop to exit on its own (e.g. the listener's underlying
	// socket failing).
	OnStopped func(cause error)

	// OnServiceError, if set, is invoked with the error that made the
	// accept loop exit when that exit was not caused by Stop. Errors
	// while serving an accepted connection are not reported to it.
	OnServiceError func(err error)

	mu       sync.Mutex
	server   *rpc.Server
	listener net.Listener
	started  bool
	stopping bool
}

// Start binds address (network, addr) -- addr may be "" to request a
// system-chosen port on a TCP network -- and begins accepting
// connections in a dedicated goroutine, one further goroutine per
// accepted connection. It does not return until the listening socket is
// ready to accept: callers may call Addr immediately after Start
// returns. A second call to Start on an already-started Listener fails
// with a KindStateError.
func (l *Listener) Start(network, addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return StateError("listener %q already started", l.Name)
	}
	server := rpc.NewServer()
	if err := server.RegisterName(l.Name, l.Delegate); err != nil {
		return NewRemoteError(err)
	}
	ln, err := netutil.Listen(network, addr)
	if err != nil {
		return NewRemoteError(err)
	}
	l.server = server
	l.listener = ln
	l.started = true
	go l.accept()
	return nil
}

func (l *Listener) accept() {
	var cause error
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			l.mu.Lock()
			stopping := l.stopping
			l.mu.Unlock()
			if !stopping {
				cause = err
				if l.OnServiceError != nil {
					l.OnServiceError(err)
				}
			}
			break
		}
		go l.server.ServeConn(conn)
	}
	if l.OnStopped != nil {
		l.OnStopped(cause)
	}
}

// Addr returns the bound address. Valid only after a successful Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Stop unblocks the accept loop by closing the listening socket.
// In-flight calls being served on already-accepted connections are
// allowed to finish. Stop is idempotent: calling it on a Listener that
// was never started, or already stopped, is a no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.started || l.stopping {
		l.mu.Unlock()
		return
	}
	l.stopping = true
	ln := l.listener
	l.mu.Unlock()
	if err := ln.Close(); err != nil {
		log.WithError(err).WithField("listener", l.Name).Debug("error closing listener socket")
	}
}
