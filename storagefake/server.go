// Package storagefake provides in-memory StorageOp/CommandOp test
// doubles. The disk-backed storage server lives in package
// storageserver; these doubles exist so the naming server's tests can
// exercise registration, creation, deletion and replication
// against something that behaves like a storage server, either in
// process or behind a real rpc.Listener.
package storagefake

import (
	"fmt"
	"sync"

	"github.com/nicolagi/dfs/storageref"
)

// Server is a minimal in-memory storage server: a flat map from path to
// content, guarded by a mutex. It implements both StorageOp and
// CommandOp directly (no directory hierarchy of its own, since the
// naming server is the sole owner of the namespace; a storage server
// only ever receives paths already resolved by the naming server).
type Server struct {
	mu sync.Mutex
	m  map[string][]byte

	// Calls records every CommandOp invocation, in order, for tests
	// that assert on what the naming server issued.
	Calls []Call
}

// Call records one CommandOp invocation observed by a Server.
type Call struct {
	Op     string // "create", "delete" or "copy"
	Path   string
	Source storageref.Endpoint // only set for "copy"
}

// NewServer returns an empty fake storage server.
func NewServer() *Server {
	return &Server{m: make(map[string][]byte)}
}

// Size implements storageiface.StorageOp.
func (s *Server) Size(path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.m[path]
	if !ok {
		return 0, fmt.Errorf("%s: not found", path)
	}
	return int64(len(data)), nil
}

// Read implements storageiface.StorageOp.
func (s *Server) Read(path string, offset int64, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.m[path]
	if !ok {
		return nil, fmt.Errorf("%s: not found", path)
	}
	if offset < 0 || int(offset) > len(data) {
		return nil, fmt.Errorf("%s: offset %d out of range", path, offset)
	}
	end := int(offset) + length
	if end > len(data) {
		end = len(data)
	}
	out := make([]byte, end-int(offset))
	copy(out, data[offset:end])
	return out, nil
}

// Write implements storageiface.StorageOp.
func (s *Server) Write(path string, offset int64, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.m[path]
	end := int(offset) + len(data)
	if end > len(existing) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	s.m[path] = existing
	return len(data), nil
}

// Create implements storageiface.CommandOp.
func (s *Server) Create(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Op: "create", Path: path})
	if _, ok := s.m[path]; ok {
		return false, nil
	}
	s.m[path] = nil
	return true, nil
}

// Delete implements storageiface.CommandOp.
func (s *Server) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Op: "delete", Path: path})
	delete(s.m, path)
	return nil
}

// Copy implements storageiface.CommandOp. It does not actually dial
// source: tests only need to observe that a copy was requested and
// from where.
func (s *Server) Copy(path string, source storageref.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Op: "copy", Path: path, Source: source})
	s.m[path] = []byte("copied")
	return nil
}

// Has reports whether path currently has content in the fake, i.e. a
// create without a matching delete has been observed.
func (s *Server) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[path]
	return ok
}
