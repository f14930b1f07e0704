package rpc

import (
	"fmt"
	"net"
	"net/rpc"
)

// Proxy is the generic substrate underlying every stub for a remote
// interface: it knows which interface it talks to and at what address,
// and knows how to perform one call. It does not implement any specific
// remote interface itself -- per-interface stub types (see the naming
// and storageiface packages) embed a Proxy and forward each interface
// method to Call with the right method name and argument/reply types.
//
// Proxy is a small, plain-comparable value. Two proxies with equal
// InterfaceName, Network and Address fields are == to each other, are
// interchangeable as map keys, and print identically: the dynamic
// dispatch a Java-style stub factory would need is unnecessary here,
// since each interface gets its own hand-written stub instead of one
// produced by reflection at call time.
type Proxy struct {
	InterfaceName string
	Network       string
	Address       string
}

// NewProxy builds a Proxy for the named interface at the given address.
func NewProxy(interfaceName, network, address string) Proxy {
	return Proxy{InterfaceName: interfaceName, Network: network, Address: address}
}

// String renders the interface name and the address, as required of any
// stub's printable form.
func (p Proxy) String() string {
	return fmt.Sprintf("%s@%s!%s", p.InterfaceName, p.Network, p.Address)
}

// Equal reports whether p and other address the same interface at the
// same endpoint. Since Proxy is a plain comparable struct, p == other
// is equivalent and preferred where a concrete Proxy (not a pointer) is
// in hand.
func (p Proxy) Equal(other Proxy) bool {
	return p == other
}

// Call performs one remote method invocation: it dials a fresh
// connection to the proxy's address, sends the call, awaits the
// response, and closes the connection, matching the "one call per
// connection" wire framing. method must be "Interface.Method" as
// net/rpc requires.
//
// A failure to connect, write, read or deserialize becomes a
// *Error with KindRemote. A logical error returned by the remote
// method is reconstructed as the original Kind via wireDecode.
func (p Proxy) Call(method string, args, reply interface{}) error {
	conn, err := net.Dial(p.Network, p.Address)
	if err != nil {
		return NewRemoteError(err)
	}
	client := rpc.NewClient(conn)
	defer func() { _ = client.Close() }()
	if err := client.Call(method, args, reply); err != nil {
		if err == rpc.ErrShutdown {
			return NewRemoteError(err)
		}
		return wireDecode(err.Error())
	}
	return nil
}
