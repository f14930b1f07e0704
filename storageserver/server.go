// Package storageserver implements a storage server: a process
// exposing a subtree of its local filesystem through the StorageOp and
// CommandOp remote interfaces. Path /a/b maps to the ordinary file
// root/a/b; there is no other on-disk format. On start the server
// enumerates its files, registers them with the naming server, and
// deletes whatever the naming server reports as duplicate before it
// begins serving.
package storageserver

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/dfs/fspath"
	"github.com/nicolagi/dfs/naming"
	"github.com/nicolagi/dfs/rpc"
	"github.com/nicolagi/dfs/storageiface"
	"github.com/nicolagi/dfs/storageref"
)

const (
	dirPerm  = 0700
	filePerm = 0600

	// copyChunkSize bounds how much of a file crosses the wire in one
	// StorageOp.Read during a copy.
	copyChunkSize = 64 * 1024
)

// Server is a disk-backed storage server rooted at a local directory.
// Construct with NewServer; Start and Stop manage its two listeners
// and the registration handshake.
type Server struct {
	// OnStopped, if set, is invoked once after Stop has torn down both
	// listeners.
	OnStopped func(cause error)

	root string

	storage *rpc.Listener
	command *rpc.Listener

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewServer builds a storage server over the given root directory,
// which must already exist.
func NewServer(root string) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%q: not a directory", abs)
	}
	s := &Server{root: abs}
	s.storage = &rpc.Listener{Name: "StorageOp", Delegate: storageiface.StorageOpSkeleton{Delegate: s}}
	s.command = &rpc.Listener{Name: "CommandOp", Delegate: storageiface.CommandOpSkeleton{Delegate: s}}
	return s, nil
}

// Start binds the storage and command listeners (addresses may be
// empty for system-chosen ports), enumerates the files under the root,
// registers with the naming server at namingAddr, and deletes the
// returned duplicates locally. Only then is the server ready for
// client traffic. A second Start fails with StateError.
func (s *Server) Start(network, storageAddr, commandAddr, namingAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return rpc.StateError("storage server already started")
	}
	if err := s.storage.Start(network, storageAddr); err != nil {
		return err
	}
	if err := s.command.Start(network, commandAddr); err != nil {
		s.storage.Stop()
		return err
	}
	paths, err := s.enumerate()
	if err != nil {
		s.storage.Stop()
		s.command.Stop()
		return err
	}
	client := naming.NewRegistrationClient(network, namingAddr)
	duplicates, err := client.Register(
		storageref.Endpoint{Net: network, Addr: s.storage.Addr().String()},
		storageref.Endpoint{Net: network, Addr: s.command.Addr().String()},
		paths,
	)
	if err != nil {
		s.storage.Stop()
		s.command.Stop()
		return err
	}
	for _, p := range duplicates {
		if err := s.Delete(p); err != nil {
			log.WithError(err).WithField("path", p).Warning("could not delete duplicate")
		}
	}
	s.started = true
	return nil
}

// Stop tears down both listeners, then invokes the OnStopped hook.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	s.storage.Stop()
	s.command.Stop()
	if s.OnStopped != nil {
		s.OnStopped(nil)
	}
}

// Ref returns the endpoint pair this server registered under. Valid
// only after a successful Start.
func (s *Server) Ref(network string) storageref.Ref {
	return storageref.Ref{
		Storage: storageref.Endpoint{Net: network, Addr: s.storage.Addr().String()},
		Command: storageref.Endpoint{Net: network, Addr: s.command.Addr().String()},
	}
}

// enumerate walks the root and returns the canonical path of every
// regular file under it. A file that cannot be opened for reading is
// an error: serving it later would fail anyway.
func (s *Server) enumerate() ([]string, error) {
	var paths []string
	err := filepath.Walk(s.root, func(pathname string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(pathname)
		if err != nil {
			return errors.Wrapf(err, "%q: unreadable", pathname)
		}
		_ = f.Close()
		rel, err := filepath.Rel(s.root, pathname)
		if err != nil {
			return err
		}
		paths = append(paths, "/"+filepath.ToSlash(rel))
		return nil
	})
	return paths, err
}

// local maps a canonical path to the file under the root, rejecting
// anything that would escape it.
func (s *Server) local(path string) (string, error) {
	p, err := fspath.Parse(path)
	if err != nil {
		return "", rpc.ArgumentInvalid("%v", err)
	}
	for _, c := range p.Components() {
		if c == "." || c == ".." {
			return "", rpc.ArgumentInvalid("%q: component %q not allowed", path, c)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(p.String(), "/"))), nil
}

// statFile stats the file at path, failing with NotFound if it is
// absent or a directory.
func (s *Server) statFile(path string) (string, os.FileInfo, error) {
	pathname, err := s.local(path)
	if err != nil {
		return "", nil, err
	}
	fi, err := os.Stat(pathname)
	if err != nil {
		return "", nil, rpc.NotFound("%s: no such file", path)
	}
	if fi.IsDir() {
		return "", nil, rpc.NotFound("%s: is a directory", path)
	}
	return pathname, fi, nil
}

// Size implements storageiface.StorageOp.
func (s *Server) Size(path string) (int64, error) {
	_, fi, err := s.statFile(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Read implements storageiface.StorageOp. Offset and length are
// checked against the file's current size: a read past the end is the
// caller's error, not a short read.
func (s *Server) Read(path string, offset int64, length int) ([]byte, error) {
	pathname, fi, err := s.statFile(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+int64(length) > fi.Size() {
		return nil, rpc.ArgumentInvalid("%s: read of %d bytes at %d beyond size %d", path, length, offset, fi.Size())
	}
	f, err := os.Open(pathname)
	if err != nil {
		return nil, rpc.NewRemoteError(err)
	}
	defer func() { _ = f.Close() }()
	data := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, int64(length)), data); err != nil {
		return nil, rpc.NewRemoteError(err)
	}
	return data, nil
}

// Write implements storageiface.StorageOp, extending the file as
// needed. The file must already exist (Create makes it).
func (s *Server) Write(path string, offset int64, data []byte) (int, error) {
	pathname, _, err := s.statFile(path)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, rpc.ArgumentInvalid("%s: negative offset %d", path, offset)
	}
	f, err := os.OpenFile(pathname, os.O_WRONLY, filePerm)
	if err != nil {
		return 0, rpc.NewRemoteError(err)
	}
	defer func() { _ = f.Close() }()
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, rpc.NewRemoteError(err)
	}
	return n, nil
}

// Create implements storageiface.CommandOp. It makes intermediate
// directories as needed and returns false, without error, when the
// file already exists or a directory stands in its way.
func (s *Server) Create(path string) (bool, error) {
	if path == fspath.Root {
		return false, nil
	}
	pathname, err := s.local(path)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(pathname), dirPerm); err != nil {
		return false, nil
	}
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return false, nil
	}
	return true, f.Close()
}

// Delete implements storageiface.CommandOp: it removes path
// recursively, then prunes any parent directories the removal left
// empty, stopping short of the root.
func (s *Server) Delete(path string) error {
	if path == fspath.Root {
		return rpc.ArgumentInvalid("cannot delete the root")
	}
	pathname, err := s.local(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(pathname); err != nil {
		return rpc.NotFound("%s: no such file or directory", path)
	}
	if err := os.RemoveAll(pathname); err != nil {
		return rpc.NewRemoteError(err)
	}
	for dir := filepath.Dir(pathname); dir != s.root; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Copy implements storageiface.CommandOp: it pulls the file at path
// from the StorageOp at source, in bounded-size chunks, and writes it
// locally, truncating any previous content.
func (s *Server) Copy(path string, source storageref.Endpoint) error {
	pathname, err := s.local(path)
	if err != nil {
		return err
	}
	client := storageiface.NewStorageOpClient(source)
	size, err := client.Size(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pathname), dirPerm); err != nil {
		return rpc.NewRemoteError(err)
	}
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return rpc.NewRemoteError(err)
	}
	defer func() { _ = f.Close() }()
	for offset := int64(0); offset < size; {
		n := copyChunkSize
		if remaining := size - offset; remaining < int64(n) {
			n = int(remaining)
		}
		data, err := client.Read(path, offset, n)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return rpc.NewRemoteError(errors.Errorf("%s: empty read at offset %d", path, offset))
		}
		if _, err := f.WriteAt(data, offset); err != nil {
			return rpc.NewRemoteError(err)
		}
		offset += int64(len(data))
	}
	return nil
}
