// Package tree implements the naming server's in-memory directory tree
// (the HashTree): a tree of nodes, each either a directory (a map of
// named children) or a file (an ordered list of storage replicas), with
// a per-node reader/writer lock implementing the path-locking protocol
// that the rest of the naming server builds on.
package tree

import (
	"sort"
	"sync"

	"github.com/nicolagi/dfs/storageref"
)

// Node is one node of the directory tree: either a directory or a file.
// Its variant is fixed at creation. Every node owns a reader/writer
// lock: Lock/Unlock on the Tree acquire and release these in the order
// the path-locking protocol requires, never directly.
type Node struct {
	mu rwLock

	name   string
	parent *Node

	// children is non-nil only for a directory node. Keys are the
	// child's name, unique within this directory.
	children map[string]*Node

	// rmu guards replicas, next and reads. It is distinct from mu:
	// the replication-on-read policy and the getStorage rotation both
	// mutate these while holding only a shared lock on the node, so
	// the node's reader/writer lock alone cannot protect them.
	rmu sync.Mutex

	// replicas is non-nil only for a file node: the ordered list of
	// storage servers holding a copy of the file, and next, the
	// rotating index used for read-load balancing by getStorage.
	// Values are plain copies of entries from the tree's registry:
	// the registry is the sole owner of Ref identities (see
	// storageref.Registry), a node only ever holds a copy.
	replicas []storageref.Ref
	next     int

	// reads counts shared acquisitions of a single-replica file since
	// the last replication attempt.
	reads uint32
}

func newDirNode(name string, parent *Node) *Node {
	return &Node{name: name, parent: parent, children: make(map[string]*Node)}
}

func newFileNode(name string, parent *Node, owner storageref.Ref) *Node {
	return &Node{name: name, parent: parent, replicas: []storageref.Ref{owner}}
}

// IsDir reports whether node is a directory node.
func (n *Node) IsDir() bool {
	return n.children != nil
}

// Name returns the node's own path component. The root node's name is
// the empty string.
func (n *Node) Name() string {
	return n.name
}

// child returns the named child of a directory node, or nil if absent.
// Caller must hold at least a read lock on n.
func (n *Node) child(name string) *Node {
	return n.children[name]
}

// sortedChildNames returns the directory's child names in sorted order.
// Caller must hold at least a read lock on n.
func (n *Node) sortedChildNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// replicaRefs returns a copy of the file node's replica list.
func (n *Node) replicaRefs() []storageref.Ref {
	n.rmu.Lock()
	defer n.rmu.Unlock()
	out := make([]storageref.Ref, len(n.replicas))
	copy(out, n.replicas)
	return out
}

// rotateReplica returns the replica at the rotating index and advances
// it. The increment is only approximately round-robin: concurrent
// callers may observe the same replica, which is acceptable for read
// load balancing.
func (n *Node) rotateReplica() storageref.Ref {
	n.rmu.Lock()
	defer n.rmu.Unlock()
	r := n.replicas[n.next%len(n.replicas)]
	n.next++
	return r
}

// keepOnlyPrimary truncates the replica list to its head and returns
// the replicas that were dropped. Called under the node's exclusive
// lock when a writer acquires the file.
func (n *Node) keepOnlyPrimary() (dropped []storageref.Ref) {
	n.rmu.Lock()
	defer n.rmu.Unlock()
	if len(n.replicas) <= 1 {
		return nil
	}
	dropped = make([]storageref.Ref, len(n.replicas)-1)
	copy(dropped, n.replicas[1:])
	n.replicas = n.replicas[:1]
	return dropped
}

// countRead records one shared acquisition of the node. It returns the
// node's sole replica and true when the node has exactly one replica
// and has accumulated threshold reads since the last replication
// attempt; the counter resets on each trigger.
func (n *Node) countRead(threshold uint32) (storageref.Ref, bool) {
	n.rmu.Lock()
	defer n.rmu.Unlock()
	if len(n.replicas) != 1 {
		n.reads = 0
		return storageref.Ref{}, false
	}
	n.reads++
	if n.reads < threshold {
		return storageref.Ref{}, false
	}
	n.reads = 0
	return n.replicas[0], true
}

// addReplica appends ref to the replica list if not already present.
func (n *Node) addReplica(ref storageref.Ref) {
	n.rmu.Lock()
	defer n.rmu.Unlock()
	for _, existing := range n.replicas {
		if existing.Equal(ref) {
			return
		}
	}
	n.replicas = append(n.replicas, ref)
}

// subtreeRefs collects the set of distinct storage refs appearing
// anywhere in the subtree rooted at n, used by delete on a directory.
// Caller must hold a lock making the subtree quiescent (see Delete).
func (n *Node) subtreeRefs(into map[storageref.Ref]struct{}) {
	if !n.IsDir() {
		for _, r := range n.replicas {
			into[r] = struct{}{}
		}
		return
	}
	for _, c := range n.children {
		c.subtreeRefs(into)
	}
}
