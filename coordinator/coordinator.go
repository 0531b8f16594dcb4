// Package coordinator implements the authoritative shared-state engine of
// spec.md §4.2: the canonical key→value map, per-node invalidation queues,
// named FIFO queues, and the RPC surface that serializes access to them.
package coordinator

import (
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/machinefabric/meshkv-go"
)

// Coordinator is the authoritative store described in spec.md §4.2. Its
// three top-level maps (store, invalidations, queues) are each guarded
// independently; concurrent operations on disjoint data proceed in
// parallel (spec.md §5).
type Coordinator struct {
	store *store
	inv   *invalidations
	q     *queues
}

// New creates an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		store: newStore(),
		inv:   newInvalidations(),
		q:     newQueues(),
	}
}

// Join registers nodeID. Idempotent: a repeat join resets the node's
// invalidation sequence (spec.md §9 open question 3).
func (c *Coordinator) Join(nodeID []byte) error {
	c.inv.join(nodeID)
	glog.Infof("coordinator: node %q joined", nodeID)
	return nil
}

// Contains returns the byte length of key's value.
func (c *Coordinator) Contains(key []byte) (int64, error) {
	return c.store.contains(key)
}

// Push inserts (key, value), failing if key is already present.
func (c *Coordinator) Push(key, value []byte) error {
	if err := c.store.push(key, value); err != nil {
		return err
	}
	glog.Infof("coordinator: pushed key %q (%s)", key, humanize.Bytes(uint64(len(value))))
	return nil
}

// PushFile has push's semantics but is used for values that arrived over
// the framing codec as a stream (spec.md §4.2). The caller has already
// buffered the whole value; the insertion is still only committed if key
// is absent — the source this is modeled on commits unconditionally, which
// spec.md corrects.
func (c *Coordinator) PushFile(key, value []byte) error {
	return c.Push(key, value)
}

// Pull returns a copy of key's value.
func (c *Coordinator) Pull(key []byte) ([]byte, error) {
	return c.store.pull(key)
}

// PullFile snapshots key's value for streaming. The snapshot is taken here,
// at stream start, so a concurrent Remove cannot truncate it in flight
// (spec.md §4.2).
func (c *Coordinator) PullFile(key []byte) ([]byte, error) {
	return c.store.pull(key)
}

// Remove deletes key, first fanning the invalidation out to every
// registered node, then deleting from the store (spec.md §3, §4.2). If key
// turns out to be absent, Remove still leaves the (harmless) invalidations
// it already appended in place.
func (c *Coordinator) Remove(key []byte) error {
	c.inv.appendToAll(key)
	if !c.store.remove(key) {
		return meshkv.New(meshkv.KindNotFound, meshkv.SideCoordinator, "key not found")
	}
	glog.Infof("coordinator: removed key %q", key)
	return nil
}

// EnQueue appends value to the named FIFO, creating it if absent.
func (c *Coordinator) EnQueue(name string, value []byte) error {
	return c.q.enQueue(name, value)
}

// DeQueue removes and returns the head of the named FIFO.
func (c *Coordinator) DeQueue(name string) ([]byte, error) {
	return c.q.deQueue(name)
}

// RegisterQueueSchema attaches a JSON Schema to a named queue; subsequent
// EnQueue calls on that queue must conform to it (SPEC_FULL.md).
func (c *Coordinator) RegisterQueueSchema(name string, schemaJSON []byte) error {
	return c.q.registerSchema(name, schemaJSON)
}

// Update pops the head of nodeID's invalidation sequence.
func (c *Coordinator) Update(nodeID []byte) ([]byte, error) {
	return c.inv.update(nodeID)
}
