package storageref

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyRegistered is returned by Registry.Add when the given ref is
// already a member of the registry (by (storage, command) endpoints).
var ErrAlreadyRegistered = errors.New("already registered")

// Registry is the process-wide ordered list of registered storage
// servers, called R in the design. It is the sole owner of Ref
// identities: tree nodes only ever hold a copy of a Ref, never a
// reference into the registry, so the registry can be read without
// holding any tree lock.
//
// Registry is safe for concurrent use. Mutation (Add) is guarded by a
// dedicated mutex, independent of any tree node lock, per the
// shared-resource policy: appending to R is not part of the tree's
// per-node locking protocol.
type Registry struct {
	mu   sync.Mutex
	refs []Ref
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends ref to the registry in registration order. It fails with
// ErrAlreadyRegistered if ref (by endpoint pair) is already present.
func (r *Registry) Add(ref Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.refs {
		if existing.Equal(ref) {
			return errors.Wrapf(ErrAlreadyRegistered, "%s", ref)
		}
	}
	r.refs = append(r.refs, ref)
	return nil
}

// Contains reports whether ref is already registered.
func (r *Registry) Contains(ref Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.refs {
		if existing.Equal(ref) {
			return true
		}
	}
	return false
}

// All returns a snapshot of the registered refs, in registration order.
// The returned slice is owned by the caller.
func (r *Registry) All() []Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Ref, len(r.refs))
	copy(out, r.refs)
	return out
}

// Len returns the number of registered storage servers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

// Random returns a uniformly chosen registered ref. It fails if the
// registry is empty: createFile uses this to spread new files across
// storage servers, ignoring load since load is not observed.
func (r *Registry) Random() (Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.refs) == 0 {
		return Ref{}, false
	}
	return r.refs[rand.Intn(len(r.refs))], true
}

// RandomExcluding returns a uniformly chosen registered ref that does not
// equal any of exclude. Used by the replication-on-read policy to pick
// a server not already hosting a replica of the file being read. Fails
// if no such ref exists.
func (r *Registry) RandomExcluding(exclude []Ref) (Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []Ref
	for _, ref := range r.refs {
		excluded := false
		for _, e := range exclude {
			if ref.Equal(e) {
				excluded = true
				break
			}
		}
		if !excluded {
			candidates = append(candidates, ref)
		}
	}
	if len(candidates) == 0 {
		return Ref{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}
