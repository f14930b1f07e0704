package naming

import (
	"github.com/nicolagi/dfs/fspath"
	"github.com/nicolagi/dfs/rpc"
	"github.com/nicolagi/dfs/storageref"
)

// Argument and reply types for the wire encoding of Service and
// Registration. Paths travel as their canonical strings and are parsed
// back at the receiving end, so a malformed path is rejected at the
// server boundary with ArgumentInvalid rather than deep inside the
// tree.

type LockArgs struct {
	Path      string
	Exclusive bool
}
type LockReply struct{}

type UnlockArgs struct {
	Path      string
	Exclusive bool
}
type UnlockReply struct{}

type IsDirectoryArgs struct{ Path string }
type IsDirectoryReply struct{ IsDirectory bool }

type ListArgs struct{ Path string }
type ListReply struct{ Children []string }

type CreateFileArgs struct{ Path string }
type CreateFileReply struct{ Created bool }

type CreateDirectoryArgs struct{ Path string }
type CreateDirectoryReply struct{ Created bool }

type DeleteArgs struct{ Path string }
type DeleteReply struct{ Deleted bool }

type GetStorageArgs struct{ Path string }
type GetStorageReply struct{ Endpoint storageref.Endpoint }

type RegisterArgs struct {
	Storage storageref.Endpoint
	Command storageref.Endpoint
	Paths   []string
}
type RegisterReply struct{ Duplicates []string }

func parseWirePath(s string) (fspath.Path, error) {
	p, err := fspath.Parse(s)
	if err != nil {
		return fspath.Path{}, rpc.ArgumentInvalid("%v", err)
	}
	return p, nil
}

// serviceSkeleton adapts Server's client-facing operations to the
// net/rpc calling convention for registration on the service listener.
type serviceSkeleton struct {
	server *Server
}

func (s *serviceSkeleton) Lock(args LockArgs, _ *LockReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	return s.server.Lock(p, args.Exclusive)
}

func (s *serviceSkeleton) Unlock(args UnlockArgs, _ *UnlockReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	return s.server.Unlock(p, args.Exclusive)
}

func (s *serviceSkeleton) IsDirectory(args IsDirectoryArgs, reply *IsDirectoryReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	reply.IsDirectory, err = s.server.IsDirectory(p)
	return err
}

func (s *serviceSkeleton) List(args ListArgs, reply *ListReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	reply.Children, err = s.server.List(p)
	return err
}

func (s *serviceSkeleton) CreateFile(args CreateFileArgs, reply *CreateFileReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	reply.Created, err = s.server.CreateFile(p)
	return err
}

func (s *serviceSkeleton) CreateDirectory(args CreateDirectoryArgs, reply *CreateDirectoryReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	reply.Created, err = s.server.CreateDirectory(p)
	return err
}

func (s *serviceSkeleton) Delete(args DeleteArgs, reply *DeleteReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	reply.Deleted, err = s.server.Delete(p)
	return err
}

func (s *serviceSkeleton) GetStorage(args GetStorageArgs, reply *GetStorageReply) error {
	p, err := parseWirePath(args.Path)
	if err != nil {
		return err
	}
	reply.Endpoint, err = s.server.GetStorage(p)
	return err
}

// registrationSkeleton adapts Server.Register for the registration
// listener.
type registrationSkeleton struct {
	server *Server
}

func (s *registrationSkeleton) Register(args RegisterArgs, reply *RegisterReply) error {
	paths := make([]fspath.Path, 0, len(args.Paths))
	for _, raw := range args.Paths {
		p, err := parseWirePath(raw)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}
	duplicates, err := s.server.Register(args.Storage, args.Command, paths)
	if err != nil {
		return err
	}
	reply.Duplicates = make([]string, 0, len(duplicates))
	for _, p := range duplicates {
		reply.Duplicates = append(reply.Duplicates, p.String())
	}
	return nil
}

// ServiceClient is the client-side stub for the naming server's
// Service interface. It embeds rpc.Proxy, inheriting the substrate's
// equality, hashing and printable form.
type ServiceClient struct {
	rpc.Proxy
}

// NewServiceClient builds a stub for the Service interface at the
// given address.
func NewServiceClient(network, address string) ServiceClient {
	return ServiceClient{Proxy: rpc.NewProxy("Service", network, address)}
}

func (c ServiceClient) Lock(path string, exclusive bool) error {
	var reply LockReply
	return c.Call("Service.Lock", LockArgs{Path: path, Exclusive: exclusive}, &reply)
}

func (c ServiceClient) Unlock(path string, exclusive bool) error {
	var reply UnlockReply
	return c.Call("Service.Unlock", UnlockArgs{Path: path, Exclusive: exclusive}, &reply)
}

func (c ServiceClient) IsDirectory(path string) (bool, error) {
	var reply IsDirectoryReply
	err := c.Call("Service.IsDirectory", IsDirectoryArgs{Path: path}, &reply)
	return reply.IsDirectory, err
}

func (c ServiceClient) List(path string) ([]string, error) {
	var reply ListReply
	err := c.Call("Service.List", ListArgs{Path: path}, &reply)
	return reply.Children, err
}

func (c ServiceClient) CreateFile(path string) (bool, error) {
	var reply CreateFileReply
	err := c.Call("Service.CreateFile", CreateFileArgs{Path: path}, &reply)
	return reply.Created, err
}

func (c ServiceClient) CreateDirectory(path string) (bool, error) {
	var reply CreateDirectoryReply
	err := c.Call("Service.CreateDirectory", CreateDirectoryArgs{Path: path}, &reply)
	return reply.Created, err
}

func (c ServiceClient) Delete(path string) (bool, error) {
	var reply DeleteReply
	err := c.Call("Service.Delete", DeleteArgs{Path: path}, &reply)
	return reply.Deleted, err
}

func (c ServiceClient) GetStorage(path string) (storageref.Endpoint, error) {
	var reply GetStorageReply
	err := c.Call("Service.GetStorage", GetStorageArgs{Path: path}, &reply)
	return reply.Endpoint, err
}

// RegistrationClient is the client-side stub for the naming server's
// Registration interface, used by storage servers at startup.
type RegistrationClient struct {
	rpc.Proxy
}

// NewRegistrationClient builds a stub for the Registration interface
// at the given address.
func NewRegistrationClient(network, address string) RegistrationClient {
	return RegistrationClient{Proxy: rpc.NewProxy("Registration", network, address)}
}

// Register announces a storage server's endpoints and the files it
// already holds; it returns the paths the caller must delete locally.
func (c RegistrationClient) Register(storage, command storageref.Endpoint, paths []string) ([]string, error) {
	var reply RegisterReply
	err := c.Call("Registration.Register", RegisterArgs{Storage: storage, Command: command, Paths: paths}, &reply)
	return reply.Duplicates, err
}
