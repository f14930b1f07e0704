package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// E6: a proxy to I at addr=127.0.0.1:9999 is equal to another proxy to
// the same I and addr, hashes equally, and prints both the interface
// name and the address.
func TestProxyEqualityHashingAndString(t *testing.T) {
	a := NewProxy("Service", "tcp", "127.0.0.1:9999")
	b := NewProxy("Service", "tcp", "127.0.0.1:9999")
	c := NewProxy("Service", "tcp", "127.0.0.1:1234")
	d := NewProxy("Registration", "tcp", "127.0.0.1:9999")

	assert.Equal(t, a, b)
	assert.True(t, a.Equal(b))
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	seen := map[Proxy]int{}
	seen[a]++
	seen[b]++
	assert.Equal(t, 1, len(seen), "a and b must hash to the same map bucket")
	assert.Equal(t, 2, seen[a])

	s := a.String()
	assert.Contains(t, s, "Service")
	assert.Contains(t, s, "127.0.0.1:9999")
}

func TestProxyCallTransportFailureBecomesRemoteError(t *testing.T) {
	p := NewProxy("Service", "tcp", "127.0.0.1:1") // nothing listens here
	var reply int
	err := p.Call("Service.Lock", struct{}{}, &reply)
	if assert.Error(t, err) {
		assert.True(t, IsKind(err, KindRemote))
	}
}
