package naming

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/dfs/netutil"
	"github.com/nicolagi/dfs/rpc"
	"github.com/nicolagi/dfs/storagefake"
	"github.com/nicolagi/dfs/storageiface"
	"github.com/nicolagi/dfs/storageref"
	"github.com/nicolagi/dfs/tree"
)

// startServer runs a naming server on system-chosen ports and returns
// stubs for both of its interfaces.
func startServer(t *testing.T, opts ...tree.TreeOption) (ServiceClient, RegistrationClient) {
	t.Helper()
	server, err := NewServer(opts...)
	require.NoError(t, err)
	require.NoError(t, server.Start("tcp", "127.0.0.1:0", "127.0.0.1:0"))
	t.Cleanup(server.Stop)
	service := NewServiceClient("tcp", server.ServiceAddrActual().String())
	registration := NewRegistrationClient("tcp", server.RegistrationAddrActual().String())
	return service, registration
}

// fakeStorage is an in-memory storage server behind two real
// listeners, so the naming server's outbound create/delete/copy
// commands cross the wire the same way they do in production.
type fakeStorage struct {
	backend *storagefake.Server
	ref     storageref.Ref
}

func startFakeStorage(t *testing.T) *fakeStorage {
	t.Helper()
	backend := storagefake.NewServer()
	storage := &rpc.Listener{Name: "StorageOp", Delegate: storageiface.StorageOpSkeleton{Delegate: backend}}
	command := &rpc.Listener{Name: "CommandOp", Delegate: storageiface.CommandOpSkeleton{Delegate: backend}}
	require.NoError(t, storage.Start("tcp", "127.0.0.1:0"))
	t.Cleanup(storage.Stop)
	require.NoError(t, command.Start("tcp", "127.0.0.1:0"))
	t.Cleanup(command.Stop)
	require.NoError(t, netutil.WaitForListener("tcp", command.Addr().String(), time.Second))
	return &fakeStorage{
		backend: backend,
		ref: storageref.Ref{
			Storage: storageref.Endpoint{Net: "tcp", Addr: storage.Addr().String()},
			Command: storageref.Endpoint{Net: "tcp", Addr: command.Addr().String()},
		},
	}
}

func (f *fakeStorage) register(t *testing.T, registration RegistrationClient, paths ...string) []string {
	t.Helper()
	duplicates, err := registration.Register(f.ref.Storage, f.ref.Command, paths)
	require.NoError(t, err)
	return duplicates
}

// E1: register a server, inspect the namespace, resolve a file.
func TestRegistrationBuildsNamespace(t *testing.T) {
	service, registration := startServer(t)
	s1 := startFakeStorage(t)

	duplicates := s1.register(t, registration, "/a/b.txt", "/c/d.txt")
	assert.Empty(t, duplicates)

	children, err := service.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, children)

	isDir, err := service.IsDirectory("/a")
	require.NoError(t, err)
	assert.True(t, isDir)
	isDir, err = service.IsDirectory("/a/b.txt")
	require.NoError(t, err)
	assert.False(t, isDir)

	endpoint, err := service.GetStorage("/a/b.txt")
	require.NoError(t, err)
	assert.True(t, endpoint.Equal(s1.ref.Storage))
}

// E2: a duplicate claim is reported back, both servers stay
// registered, and reads of the contested file rotate over both.
func TestDuplicateClaimRotation(t *testing.T) {
	service, registration := startServer(t)
	s1 := startFakeStorage(t)
	s2 := startFakeStorage(t)

	assert.Empty(t, s1.register(t, registration, "/x"))
	duplicates := s2.register(t, registration, "/x")
	assert.Equal(t, []string{"/x"}, duplicates)

	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		require.NoError(t, service.Lock("/x", false))
		endpoint, err := service.GetStorage("/x")
		require.NoError(t, err)
		seen[endpoint.Addr]++
		require.NoError(t, service.Unlock("/x", false))
	}
	assert.Equal(t, 2, seen[s1.ref.Storage.Addr])
	assert.Equal(t, 2, seen[s2.ref.Storage.Addr])
}

// E3: an exclusive acquisition invalidates every stale replica before
// the caller observes the lock.
func TestExclusiveLockInvalidates(t *testing.T) {
	service, registration := startServer(t)
	s1 := startFakeStorage(t)
	s2 := startFakeStorage(t)
	s1.register(t, registration, "/x")
	s2.register(t, registration, "/x")

	require.NoError(t, service.Lock("/x", true))
	calls := s2.backend.Calls
	require.Len(t, calls, 1)
	assert.Equal(t, "delete", calls[0].Op)
	assert.Equal(t, "/x", calls[0].Path)
	require.NoError(t, service.Unlock("/x", true))

	for i := 0; i < 3; i++ {
		endpoint, err := service.GetStorage("/x")
		require.NoError(t, err)
		assert.True(t, endpoint.Equal(s1.ref.Storage))
	}
}

// E4: creating a file needs a storage server; once one is there, the
// chosen server is told to create the file.
func TestCreateFileNeedsStorage(t *testing.T) {
	service, registration := startServer(t)

	_, err := service.CreateFile("/new.txt")
	if assert.Error(t, err) {
		assert.True(t, rpc.IsKind(err, rpc.KindNotFound))
	}

	s1 := startFakeStorage(t)
	s1.register(t, registration)
	created, err := service.CreateFile("/new.txt")
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, s1.backend.Calls, 1)
	assert.Equal(t, storagefake.Call{Op: "create", Path: "/new.txt"}, s1.backend.Calls[0])

	created, err = service.CreateFile("/new.txt")
	require.NoError(t, err)
	assert.False(t, created, "second create of the same path")
}

// E5: the root is never deleted; deleting a file reaches every
// replica.
func TestDelete(t *testing.T) {
	service, registration := startServer(t)
	s1 := startFakeStorage(t)
	s2 := startFakeStorage(t)
	s1.register(t, registration, "/a/b.txt")
	s2.register(t, registration, "/a/b.txt")

	deleted, err := service.Delete("/")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = service.Delete("/a/b.txt")
	require.NoError(t, err)
	assert.True(t, deleted)
	for _, s := range []*fakeStorage{s1, s2} {
		require.Len(t, s.backend.Calls, 1)
		assert.Equal(t, storagefake.Call{Op: "delete", Path: "/a/b.txt"}, s.backend.Calls[0])
	}

	_, err = service.GetStorage("/a/b.txt")
	assert.True(t, rpc.IsKind(err, rpc.KindNotFound))
}

// E6 for the concrete stubs: equality, hashing and printable form are
// structural over interface and address.
func TestClientStubEquality(t *testing.T) {
	a := NewServiceClient("tcp", "127.0.0.1:9999")
	b := NewServiceClient("tcp", "127.0.0.1:9999")
	c := NewServiceClient("tcp", "127.0.0.1:1234")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	seen := map[ServiceClient]bool{a: true}
	assert.True(t, seen[b])
	assert.Contains(t, a.String(), "Service")
	assert.Contains(t, a.String(), "127.0.0.1:9999")
}

func TestCreateDirectoryAndList(t *testing.T) {
	service, registration := startServer(t)
	s1 := startFakeStorage(t)
	s1.register(t, registration, "/a/b.txt")

	created, err := service.CreateDirectory("/a/sub")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = service.CreateDirectory("/a/sub")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = service.CreateDirectory("/missing/sub")
	assert.True(t, rpc.IsKind(err, rpc.KindNotFound))

	children, err := service.List("/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "sub"}, children)

	_, err = service.List("/a/b.txt")
	assert.True(t, rpc.IsKind(err, rpc.KindNotFound), "list of a file")
}

func TestMalformedPathIsArgumentInvalid(t *testing.T) {
	service, _ := startServer(t)
	_, err := service.IsDirectory("relative/path")
	if assert.Error(t, err) {
		assert.True(t, rpc.IsKind(err, rpc.KindArgumentInvalid))
	}
	_, err = service.List("/a//b")
	assert.True(t, rpc.IsKind(err, rpc.KindArgumentInvalid))
}

func TestRegisterTwiceIsAlreadyRegistered(t *testing.T) {
	_, registration := startServer(t)
	s1 := startFakeStorage(t)
	s1.register(t, registration, "/x")
	_, err := registration.Register(s1.ref.Storage, s1.ref.Command, nil)
	if assert.Error(t, err) {
		assert.True(t, rpc.IsKind(err, rpc.KindAlreadyRegistered))
	}
}

// The well-known tcp ports are a deployment concern; the config's
// listen-net reaches Start untouched, so a local setup can run both
// interfaces over unix sockets instead. A stale socket left behind by
// a crashed predecessor must not keep the server from starting.
func TestServerOnUnixSockets(t *testing.T) {
	dir := t.TempDir()
	serviceAddr := filepath.Join(dir, "service")
	registrationAddr := filepath.Join(dir, "registration")
	staleUnixSocket(t, serviceAddr)

	server, err := NewServer()
	require.NoError(t, err)
	require.NoError(t, server.Start("unix", serviceAddr, registrationAddr))
	defer server.Stop()

	service := NewServiceClient("unix", serviceAddr)
	isDir, err := service.IsDirectory("/")
	require.NoError(t, err)
	assert.True(t, isDir)

	registration := NewRegistrationClient("unix", registrationAddr)
	duplicates, err := registration.Register(
		storageref.Endpoint{Net: "unix", Addr: filepath.Join(dir, "s1-storage")},
		storageref.Endpoint{Net: "unix", Addr: filepath.Join(dir, "s1-command")},
		[]string{"/a/b.txt"},
	)
	require.NoError(t, err)
	assert.Empty(t, duplicates)
	children, err := service.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, children)
}

// staleUnixSocket binds pathname and closes the listener without
// removing the socket file, as a crashed server would.
func staleUnixSocket(t *testing.T, pathname string) {
	t.Helper()
	addr, err := net.ResolveUnixAddr("unix", pathname)
	require.NoError(t, err)
	listener, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	listener.SetUnlinkOnClose(false)
	require.NoError(t, listener.Close())
}

func TestServerLifecycle(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()
	server, err := NewServer()
	require.NoError(t, err)
	stopped := make(chan error, 1)
	server.OnStopped = func(cause error) { stopped <- cause }
	require.NoError(t, server.Start("tcp", "127.0.0.1:0", "127.0.0.1:0"))

	err = server.Start("tcp", "127.0.0.1:0", "127.0.0.1:0")
	if assert.Error(t, err) {
		assert.True(t, rpc.IsKind(err, rpc.KindStateError))
	}

	server.Stop()
	server.Stop() // no-op
	select {
	case cause := <-stopped:
		assert.NoError(t, cause)
	case <-time.After(time.Second):
		t.Fatal("OnStopped was not invoked")
	}

	err = server.Start("tcp", "127.0.0.1:0", "127.0.0.1:0")
	assert.Error(t, err, "the naming server is not restartable")
}
