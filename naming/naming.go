// Package naming implements the naming server: the singleton process
// owning the directory tree. It exposes two remote interfaces over the
// RPC substrate, Service for clients and Registration for storage
// servers, each on its own well-known port, and composes the tree's
// locking and replica bookkeeping with storage server selection and
// cross-server orchestration (copy to replicate, delete to invalidate).
package naming

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/nicolagi/dfs/fspath"
	"github.com/nicolagi/dfs/rpc"
	"github.com/nicolagi/dfs/storageref"
	"github.com/nicolagi/dfs/tree"
)

// Well-known ports. They are fixed constants baked into the protocol:
// clients dial ServicePort, storage servers dial RegistrationPort, and
// neither is negotiated.
const (
	ServicePort      = 6000
	RegistrationPort = 6001
)

// ServiceAddr returns the service endpoint address for a naming server
// on the given host.
func ServiceAddr(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(ServicePort))
}

// RegistrationAddr returns the registration endpoint address for a
// naming server on the given host.
func RegistrationAddr(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(RegistrationPort))
}

// Server is the naming server. The zero value is not usable; construct
// with NewServer. Start and Stop manage the two listeners; the server
// is single-shot and not restartable.
type Server struct {
	// OnStopped, if set, is invoked once after Stop has torn down both
	// listeners. Only Stop invokes it, always with a nil cause; a
	// listener failing on its own does not invoke it.
	OnStopped func(cause error)

	tree     *tree.Tree
	registry *storageref.Registry

	service      *rpc.Listener
	registration *rpc.Listener

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewServer builds a naming server over an empty tree.
func NewServer(opts ...tree.TreeOption) (*Server, error) {
	registry := storageref.NewRegistry()
	t, err := tree.NewTree(registry, opts...)
	if err != nil {
		return nil, err
	}
	s := &Server{tree: t, registry: registry}
	s.service = &rpc.Listener{Name: "Service", Delegate: &serviceSkeleton{server: s}}
	s.registration = &rpc.Listener{Name: "Registration", Delegate: &registrationSkeleton{server: s}}
	return s, nil
}

// Start binds and starts the service and registration listeners on the
// given network and addresses. It does not return until both listening
// sockets are ready. A second Start fails with StateError, even after
// Stop: the server is not restartable.
func (s *Server) Start(network, serviceAddr, registrationAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return rpc.StateError("naming server already started")
	}
	if err := s.service.Start(network, serviceAddr); err != nil {
		return err
	}
	if err := s.registration.Start(network, registrationAddr); err != nil {
		s.service.Stop()
		return err
	}
	s.started = true
	return nil
}

// ServiceAddrActual returns the bound address of the service listener,
// useful when Start was given a system-chosen port.
func (s *Server) ServiceAddrActual() net.Addr {
	return s.service.Addr()
}

// RegistrationAddrActual returns the bound address of the registration
// listener.
func (s *Server) RegistrationAddrActual() net.Addr {
	return s.registration.Addr()
}

// Stop tears down both listeners, then invokes the OnStopped hook.
// In-flight calls may finish. Stop after Stop is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	s.service.Stop()
	s.registration.Stop()
	if s.OnStopped != nil {
		s.OnStopped(nil)
	}
}

// Lock locks the path in the requested mode, with the replica side
// effects the tree attaches to file nodes.
func (s *Server) Lock(p fspath.Path, exclusive bool) error {
	return s.tree.Lock(p, exclusive)
}

// Unlock releases the locks taken by a matching Lock call.
func (s *Server) Unlock(p fspath.Path, exclusive bool) error {
	return s.tree.Unlock(p, exclusive)
}

// IsDirectory reports whether p names a directory, under a shared lock
// on p.
func (s *Server) IsDirectory(p fspath.Path) (bool, error) {
	if err := s.tree.Lock(p, false); err != nil {
		return false, err
	}
	defer func() { _ = s.tree.Unlock(p, false) }()
	return s.tree.IsDirectory(p)
}

// List returns the sorted children of the directory at p, under a
// shared lock on p.
func (s *Server) List(p fspath.Path) ([]string, error) {
	if err := s.tree.Lock(p, false); err != nil {
		return nil, err
	}
	defer func() { _ = s.tree.Unlock(p, false) }()
	return s.tree.List(p)
}

// CreateFile creates an empty file at p: it picks a storage server
// uniformly at random, inserts the tree node, then asks the chosen
// server to create the file. If the storage-side create fails the tree
// insertion is rolled back and the error propagates. With no storage
// servers registered it fails with NotFound.
func (s *Server) CreateFile(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, rpc.ArgumentInvalid("cannot create the root")
	}
	ref, ok := s.registry.Random()
	if !ok {
		return false, rpc.NotFound("no storage servers available")
	}
	parent := p.Parent()
	if err := s.tree.Lock(parent, true); err != nil {
		return false, err
	}
	defer func() { _ = s.tree.Unlock(parent, true) }()
	created, err := s.tree.CreateFile(p, ref)
	if err != nil || !created {
		return created, err
	}
	if _, err := s.tree.Commander()(ref).Create(p.String()); err != nil {
		s.tree.Remove(p)
		return false, err
	}
	return true, nil
}

// CreateDirectory creates a directory at p. The parent must exist and
// be a directory; no storage server is involved.
func (s *Server) CreateDirectory(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, rpc.ArgumentInvalid("cannot create the root")
	}
	parent := p.Parent()
	if err := s.tree.Lock(parent, true); err != nil {
		return false, err
	}
	defer func() { _ = s.tree.Unlock(parent, true) }()
	return s.tree.CreateDirectory(p)
}

// Delete removes the subtree at p, telling every hosting storage
// server to delete its copies. Deleting the root returns false.
func (s *Server) Delete(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	parent := p.Parent()
	if err := s.tree.Lock(parent, true); err != nil {
		return false, err
	}
	defer func() { _ = s.tree.Unlock(parent, true) }()
	return s.tree.Delete(p)
}

// GetStorage returns the storage endpoint of a server hosting the file
// at p, rotating across replicas. Callers wanting a stable answer hold
// a shared lock on p around the call.
func (s *Server) GetStorage(p fspath.Path) (storageref.Endpoint, error) {
	ref, err := s.tree.GetStorage(p)
	if err != nil {
		return storageref.Endpoint{}, err
	}
	return ref.Storage, nil
}

// Register onboards a storage server identified by its two endpoints
// and claiming the given paths. It returns the paths the storage
// server must delete locally before serving clients. Registering the
// same endpoint pair twice fails with AlreadyRegistered.
func (s *Server) Register(storage, command storageref.Endpoint, paths []fspath.Path) ([]fspath.Path, error) {
	if storage.Addr == "" || command.Addr == "" {
		return nil, rpc.ArgumentInvalid("storage server endpoints must not be empty")
	}
	ref := storageref.Ref{Storage: storage, Command: command}
	return s.tree.RegisterFiles(ref, paths)
}

// String identifies the server in logs.
func (s *Server) String() string {
	return fmt.Sprintf("naming server (%d storage servers)", s.registry.Len())
}
