package tree

import "github.com/pkg/errors"

// TreeOption values influence the behavior of NewTree.
type TreeOption func(*Tree) error

// WithReplicationThreshold sets how many shared acquisitions of a
// single-replica file trigger one replication attempt. The policy
// requires only that replication happens under a shared lock and never
// blocks readers indefinitely; the threshold tunes how hot a file must
// be before it fans out.
func WithReplicationThreshold(n uint32) TreeOption {
	return func(t *Tree) error {
		if n == 0 {
			return errors.New("replication threshold must be positive")
		}
		t.replicationThreshold = n
		return nil
	}
}

// WithCommander overrides how the tree reaches a storage server's
// command interface. The default dials the ref's command endpoint over
// the network; tests substitute in-process doubles.
func WithCommander(c Commander) TreeOption {
	return func(t *Tree) error {
		if c == nil {
			return errors.New("nil commander")
		}
		t.commander = c
		return nil
	}
}
