package storageiface

import (
	"github.com/nicolagi/dfs/rpc"
	"github.com/nicolagi/dfs/storageref"
)

// Argument and reply types for the wire encoding of StorageOp and
// CommandOp. Each pairs with one method below, following the same
// request/reply shape the rest of the system's RPC substrate uses.

type SizeArgs struct{ Path string }
type SizeReply struct{ Size int64 }

type ReadArgs struct {
	Path   string
	Offset int64
	Length int
}
type ReadReply struct{ Data []byte }

type WriteArgs struct {
	Path   string
	Offset int64
	Data   []byte
}
type WriteReply struct{ N int }

type CreateArgs struct{ Path string }
type CreateReply struct{ Created bool }

type DeleteArgs struct{ Path string }
type DeleteReply struct{}

type CopyArgs struct {
	Path   string
	Source storageref.Endpoint
}
type CopyReply struct{}

// StorageOpSkeleton adapts a StorageOp implementation to the net/rpc
// calling convention (func(Args, *Reply) error) so it can be registered
// on an rpc.Listener. This is the server side of the interface; pairing
// it with a *rpc.Listener gives a storage server's StorageOp endpoint.
type StorageOpSkeleton struct {
	Delegate StorageOp
}

func (s StorageOpSkeleton) Size(args SizeArgs, reply *SizeReply) error {
	size, err := s.Delegate.Size(args.Path)
	if err != nil {
		return err
	}
	reply.Size = size
	return nil
}

func (s StorageOpSkeleton) Read(args ReadArgs, reply *ReadReply) error {
	data, err := s.Delegate.Read(args.Path, args.Offset, args.Length)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}

func (s StorageOpSkeleton) Write(args WriteArgs, reply *WriteReply) error {
	n, err := s.Delegate.Write(args.Path, args.Offset, args.Data)
	if err != nil {
		return err
	}
	reply.N = n
	return nil
}

// StorageOpClient implements StorageOp by calling a remote StorageOp
// endpoint. It embeds rpc.Proxy so it inherits the substrate's equality,
// hashing and printable form.
type StorageOpClient struct {
	rpc.Proxy
}

// NewStorageOpClient builds a client for the StorageOp endpoint
// identified by endpoint.
func NewStorageOpClient(endpoint storageref.Endpoint) StorageOpClient {
	return StorageOpClient{Proxy: rpc.NewProxy("StorageOp", endpoint.Net, endpoint.Addr)}
}

func (c StorageOpClient) Size(path string) (int64, error) {
	var reply SizeReply
	err := c.Call("StorageOp.Size", SizeArgs{Path: path}, &reply)
	return reply.Size, err
}

func (c StorageOpClient) Read(path string, offset int64, length int) ([]byte, error) {
	var reply ReadReply
	err := c.Call("StorageOp.Read", ReadArgs{Path: path, Offset: offset, Length: length}, &reply)
	return reply.Data, err
}

func (c StorageOpClient) Write(path string, offset int64, data []byte) (int, error) {
	var reply WriteReply
	err := c.Call("StorageOp.Write", WriteArgs{Path: path, Offset: offset, Data: data}, &reply)
	return reply.N, err
}

// CommandOpSkeleton adapts a CommandOp implementation for registration
// on an rpc.Listener: the storage server's CommandOp endpoint.
type CommandOpSkeleton struct {
	Delegate CommandOp
}

func (s CommandOpSkeleton) Create(args CreateArgs, reply *CreateReply) error {
	created, err := s.Delegate.Create(args.Path)
	if err != nil {
		return err
	}
	reply.Created = created
	return nil
}

func (s CommandOpSkeleton) Delete(args DeleteArgs, reply *DeleteReply) error {
	return s.Delegate.Delete(args.Path)
}

func (s CommandOpSkeleton) Copy(args CopyArgs, reply *CopyReply) error {
	return s.Delegate.Copy(args.Path, args.Source)
}

// CommandOpClient implements CommandOp by calling a remote CommandOp
// endpoint. The naming server uses one of these per registered storage
// server to issue create/delete/copy commands.
type CommandOpClient struct {
	rpc.Proxy
}

// NewCommandOpClient builds a client for the CommandOp endpoint
// identified by endpoint.
func NewCommandOpClient(endpoint storageref.Endpoint) CommandOpClient {
	return CommandOpClient{Proxy: rpc.NewProxy("CommandOp", endpoint.Net, endpoint.Addr)}
}

func (c CommandOpClient) Create(path string) (bool, error) {
	var reply CreateReply
	err := c.Call("CommandOp.Create", CreateArgs{Path: path}, &reply)
	return reply.Created, err
}

func (c CommandOpClient) Delete(path string) error {
	var reply DeleteReply
	return c.Call("CommandOp.Delete", DeleteArgs{Path: path}, &reply)
}

func (c CommandOpClient) Copy(path string, source storageref.Endpoint) error {
	var reply CopyReply
	return c.Call("CommandOp.Copy", CopyArgs{Path: path, Source: source}, &reply)
}
