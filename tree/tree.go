package tree

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nicolagi/dfs/fspath"
	"github.com/nicolagi/dfs/rpc"
	"github.com/nicolagi/dfs/storageiface"
	"github.com/nicolagi/dfs/storageref"
)

// DefaultReplicationThreshold is how many shared acquisitions of a
// single-replica file trigger one replication attempt, unless
// overridden with WithReplicationThreshold.
const DefaultReplicationThreshold uint32 = 20

// Commander returns a CommandOp client for the given storage server.
// The default dials the ref's command endpoint over the RPC substrate;
// tests inject in-process doubles instead.
type Commander func(storageref.Ref) storageiface.CommandOp

// Tree is the naming server's in-memory metadata store: the directory
// tree, the per-node path-locking protocol, and the replica bookkeeping
// tied to it. It holds no persistent state; it is rebuilt from scratch
// by storage server re-registration.
type Tree struct {
	root      *Node
	registry  *storageref.Registry
	commander Commander

	replicationThreshold uint32
}

// NewTree builds an empty tree (a lone root directory) whose file
// nodes' replicas are drawn from registry.
func NewTree(registry *storageref.Registry, opts ...TreeOption) (*Tree, error) {
	t := &Tree{
		root:                 newDirNode("", nil),
		registry:             registry,
		replicationThreshold: DefaultReplicationThreshold,
	}
	t.commander = func(ref storageref.Ref) storageiface.CommandOp {
		return storageiface.NewCommandOpClient(ref.Command)
	}
	for _, o := range opts {
		if err := o(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Registry returns the registry of storage servers backing this tree.
func (t *Tree) Registry() *storageref.Registry {
	return t.registry
}

// Commander returns the function the tree uses to reach a storage
// server's command interface, so the naming server issues its own
// create commands through the same (possibly test-injected) channel.
func (t *Tree) Commander() Commander {
	return t.commander
}

// Lock acquires a shared lock on every ancestor of p, from the root
// down, then the lock on p itself in the requested mode. On a file
// node the acquisition has the side effects of the replica maintenance
// policy: an exclusive acquisition synchronously invalidates all but
// one replica; a shared acquisition may mint a new replica if the file
// is hot. If p does not resolve, every lock taken so far is released
// and NotFound is returned.
func (t *Tree) Lock(p fspath.Path, exclusive bool) error {
	n, err := t.lockTo(p, exclusive)
	if err != nil {
		return err
	}
	if n.IsDir() {
		return nil
	}
	if exclusive {
		t.invalidateOthers(p, n)
	} else {
		t.maybeReplicate(p, n)
	}
	return nil
}

// lockTo implements the acquisition walk, tracking the locks it has
// taken so that a failed resolution unwinds exactly those, in reverse
// order, and nothing else.
func (t *Tree) lockTo(p fspath.Path, exclusive bool) (*Node, error) {
	var held []*Node
	unwind := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.RUnlock()
		}
	}
	cur := t.root
	for _, c := range p.Components() {
		cur.mu.RLock()
		held = append(held, cur)
		if !cur.IsDir() {
			unwind()
			return nil, rpc.NotFound("%s: not a directory", p)
		}
		next := cur.child(c)
		if next == nil {
			unwind()
			return nil, rpc.NotFound("%s: no such file or directory", p)
		}
		cur = next
	}
	if exclusive {
		cur.mu.Lock()
	} else {
		cur.mu.RLock()
	}
	return cur, nil
}

// Unlock releases the locks acquired by a matching Lock call: the lock
// on p in the given mode, then the ancestors' shared locks in reverse
// acquisition order. The walk down to p needs no locking of its own:
// the caller's ancestor read-locks forbid structural mutation anywhere
// along the path.
func (t *Tree) Unlock(p fspath.Path, exclusive bool) error {
	nodes := make([]*Node, 0, len(p.Components())+1)
	cur := t.root
	nodes = append(nodes, cur)
	for _, c := range p.Components() {
		if !cur.IsDir() {
			return rpc.ArgumentInvalid("%s: not locked: not a directory on path", p)
		}
		next := cur.child(c)
		if next == nil {
			return rpc.ArgumentInvalid("%s: not locked: no such file or directory", p)
		}
		nodes = append(nodes, next)
		cur = next
	}
	last := len(nodes) - 1
	if exclusive {
		nodes[last].mu.Unlock()
	} else {
		nodes[last].mu.RUnlock()
	}
	for i := last - 1; i >= 0; i-- {
		nodes[i].mu.RUnlock()
	}
	return nil
}

// invalidateOthers reduces the file node's replica list to its head,
// issuing a best-effort delete to every dropped replica. It runs under
// the caller's exclusive lock on n: the writer must not observe the
// lock before all stale copies have been told to go.
func (t *Tree) invalidateOthers(p fspath.Path, n *Node) {
	dropped := n.keepOnlyPrimary()
	if len(dropped) == 0 {
		return
	}
	var group errgroup.Group
	for _, ref := range dropped {
		ref := ref
		group.Go(func() error {
			if err := t.commander(ref).Delete(p.String()); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"path":    p.String(),
					"replica": ref.String(),
				}).Error("could not invalidate stale replica")
			}
			return nil
		})
	}
	_ = group.Wait()
}

// maybeReplicate implements the replication-on-read policy: when a
// single-replica file has been read-locked often enough, copy it to a
// storage server not yet hosting it. Failures are swallowed after
// logging; the reader never observes them.
func (t *Tree) maybeReplicate(p fspath.Path, n *Node) {
	primary, due := n.countRead(t.replicationThreshold)
	if !due {
		return
	}
	target, ok := t.registry.RandomExcluding(n.replicaRefs())
	if !ok {
		return
	}
	if err := t.commander(target).Copy(p.String(), primary.Storage); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"path":   p.String(),
			"target": target.String(),
		}).Warning("could not mint replica")
		return
	}
	n.addReplica(target)
}

// resolve walks from the root to p without taking any locks. Callers
// either hold the appropriate tree locks already (the naming server's
// query operations) or tolerate the resulting raciness (getStorage,
// whose rotation is guarded by the node's own replica mutex).
func (t *Tree) resolve(p fspath.Path) (*Node, error) {
	cur := t.root
	for _, c := range p.Components() {
		if !cur.IsDir() {
			return nil, rpc.NotFound("%s: not a directory on path", p)
		}
		next := cur.child(c)
		if next == nil {
			return nil, rpc.NotFound("%s: no such file or directory", p)
		}
		cur = next
	}
	return cur, nil
}

// IsDirectory reports whether p names a directory (true) or a file
// (false), or fails with NotFound. Caller should hold a shared lock on
// p.
func (t *Tree) IsDirectory(p fspath.Path) (bool, error) {
	n, err := t.resolve(p)
	if err != nil {
		return false, err
	}
	return n.IsDir(), nil
}

// List returns the sorted child names of the directory at p, or fails
// with NotFound if p does not name a directory. Caller should hold a
// shared lock on p.
func (t *Tree) List(p fspath.Path) ([]string, error) {
	n, err := t.resolve(p)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, rpc.NotFound("%s: not a directory", p)
	}
	return n.sortedChildNames(), nil
}

// CreateFile adds a file node at p with ref as its sole replica. It
// returns true iff the node was created: an existing child of the same
// name yields false with no error. The parent must already exist and
// be a directory. Caller must hold an exclusive lock on p's parent.
func (t *Tree) CreateFile(p fspath.Path, ref storageref.Ref) (bool, error) {
	parent, name, err := t.resolveParentForCreate(p)
	if err != nil {
		return false, err
	}
	if parent.child(name) != nil {
		return false, nil
	}
	parent.children[name] = newFileNode(name, parent, ref)
	return true, nil
}

// CreateDirectory adds a directory node at p. Semantics mirror
// CreateFile. Caller must hold an exclusive lock on p's parent.
func (t *Tree) CreateDirectory(p fspath.Path) (bool, error) {
	parent, name, err := t.resolveParentForCreate(p)
	if err != nil {
		return false, err
	}
	if parent.child(name) != nil {
		return false, nil
	}
	parent.children[name] = newDirNode(name, parent)
	return true, nil
}

func (t *Tree) resolveParentForCreate(p fspath.Path) (*Node, string, error) {
	if p.IsRoot() {
		return nil, "", rpc.ArgumentInvalid("cannot create the root")
	}
	parent, err := t.resolve(p.Parent())
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", rpc.NotFound("%s: parent is not a directory", p)
	}
	return parent, p.Last(), nil
}

// Remove deletes the node at p from its parent without notifying any
// storage server, undoing an insertion whose storage-side create
// failed. Caller must hold an exclusive lock on p's parent.
func (t *Tree) Remove(p fspath.Path) {
	if p.IsRoot() {
		return
	}
	if parent, err := t.resolve(p.Parent()); err == nil && parent.IsDir() {
		delete(parent.children, p.Last())
	}
}

// Delete removes the subtree at p and asks every storage server
// hosting any file in it to delete its copy. Those deletes are best
// effort: a failed one is logged and the removal proceeds. Deleting
// the root is refused by returning false. Caller must hold an
// exclusive lock on p's parent.
func (t *Tree) Delete(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}
	parent, err := t.resolve(p.Parent())
	if err != nil {
		return false, err
	}
	if !parent.IsDir() {
		return false, rpc.NotFound("%s: parent is not a directory", p)
	}
	target := parent.child(p.Last())
	if target == nil {
		return false, rpc.NotFound("%s: no such file or directory", p)
	}
	refs := make(map[storageref.Ref]struct{})
	target.subtreeRefs(refs)
	var group errgroup.Group
	for ref := range refs {
		ref := ref
		group.Go(func() error {
			if err := t.commander(ref).Delete(p.String()); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"path":    p.String(),
					"replica": ref.String(),
				}).Error("could not delete from storage server")
			}
			return nil
		})
	}
	_ = group.Wait()
	delete(parent.children, p.Last())
	return true, nil
}

// GetStorage returns a storage ref hosting the file at p, rotating
// through the replica list so that repeated reads spread across
// replicas. It takes no tree locks of its own; callers wanting a
// stable view hold a shared lock on p.
func (t *Tree) GetStorage(p fspath.Path) (storageref.Ref, error) {
	n, err := t.resolve(p)
	if err != nil {
		return storageref.Ref{}, err
	}
	if n.IsDir() {
		return storageref.Ref{}, rpc.NotFound("%s: is a directory", p)
	}
	return n.rotateReplica(), nil
}

// RegisterFiles onboards a storage server: it appends ref to the
// registry, then for each path attempts to create a file node with ref
// as its sole replica, creating missing intermediate directories along
// the way. The returned list contains every path that could not be
// claimed (the root, a path shadowed by an existing file or directory,
// a path whose prefix is an existing file): the storage server must
// delete those local copies before serving clients.
func (t *Tree) RegisterFiles(ref storageref.Ref, paths []fspath.Path) ([]fspath.Path, error) {
	if err := t.registry.Add(ref); err != nil {
		if errors.Is(err, storageref.ErrAlreadyRegistered) {
			return nil, rpc.AlreadyRegistered("%s", ref)
		}
		return nil, err
	}
	// The pruning pass mutates arbitrary directories, so it runs with
	// the whole tree quiesced under an exclusive lock on the root.
	if err := t.Lock(fspath.Path{}, true); err != nil {
		return nil, err
	}
	defer func() {
		_ = t.Unlock(fspath.Path{}, true)
	}()
	var duplicates []fspath.Path
	for _, p := range paths {
		if !t.claim(ref, p) {
			duplicates = append(duplicates, p)
		}
	}
	return duplicates, nil
}

// claim creates a file node for p owned by ref, making intermediate
// directories as needed, and reports whether the claim succeeded. The
// root is never new, and an existing node of any kind is never
// overwritten. A claim on an existing file still joins its replica
// list: reads of that file rotate over every server that announced it,
// until an exclusive acquisition reduces the list back to one.
func (t *Tree) claim(ref storageref.Ref, p fspath.Path) bool {
	if p.IsRoot() {
		return false
	}
	components := p.Components()
	cur := t.root
	for _, c := range components[:len(components)-1] {
		next := cur.child(c)
		if next == nil {
			next = newDirNode(c, cur)
			cur.children[c] = next
		} else if !next.IsDir() {
			return false
		}
		cur = next
	}
	name := components[len(components)-1]
	if existing := cur.child(name); existing != nil {
		if !existing.IsDir() {
			existing.addReplica(ref)
		}
		return false
	}
	cur.children[name] = newFileNode(name, cur, ref)
	return true
}
