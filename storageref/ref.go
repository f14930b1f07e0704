// Package storageref defines the identity of a storage server as seen by
// the naming server, and the process-wide registry of such identities.
package storageref

import "fmt"

// Endpoint is a network address a storage server listens on: for example
// the client-facing StorageOp endpoint, or the naming-server-facing
// CommandOp endpoint. It carries the network name (usually "tcp") so it
// round-trips through net.Dial without any extra configuration.
type Endpoint struct {
	Net  string
	Addr string
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s!%s", e.Net, e.Addr)
}

// Equal reports whether e and other name the same endpoint.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Net == other.Net && e.Addr == other.Addr
}

// Ref identifies one storage server by the pair of endpoints it exposes:
// Storage for client read/write traffic, Command for naming-server
// administrative calls (create, delete, copy). Two refs are equal iff
// both endpoints are equal. Ref is a plain comparable value so it can be
// used as a map key and round-trips through the RPC substrate's gob
// encoding without any custom marshalling.
type Ref struct {
	Storage Endpoint
	Command Endpoint
}

// Equal reports whether r and other identify the same storage server.
func (r Ref) Equal(other Ref) bool {
	return r.Storage.Equal(other.Storage) && r.Command.Equal(other.Command)
}

func (r Ref) String() string {
	return fmt.Sprintf("storage=%s command=%s", r.Storage, r.Command)
}
