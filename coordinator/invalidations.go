package coordinator

import (
	"fmt"
	"sync"

	"github.com/machinefabric/meshkv-go"
)

// nodeSeq is one registered node's invalidation FIFO.
type nodeSeq struct {
	mu   sync.Mutex
	keys [][]byte
}

// invalidations is the two-level map described in spec.md §9: an outer
// mutex guards which nodes are registered, an inner mutex per node guards
// that node's own sequence. The outer lock is held only long enough to
// look up or snapshot node entries — it is never held while an inner lock
// is taken, so the fixed outer-then-inner nesting order from spec.md §5
// can never be inverted.
type invalidations struct {
	mu    sync.Mutex
	nodes map[string]*nodeSeq
}

func newInvalidations() *invalidations {
	return &invalidations{nodes: make(map[string]*nodeSeq)}
}

// join registers nodeID, replacing any existing sequence with a fresh
// empty one. Repeated joins are idempotent resets (spec.md §4.2, §9 open
// question 3): a node that reconnects and re-joins starts its drain over,
// which is harmless since a stale invalidation only ever causes a no-op
// eviction of an already-absent cache entry.
func (inv *invalidations) join(nodeID []byte) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.nodes[string(nodeID)] = &nodeSeq{}
}

func (inv *invalidations) registered(nodeID []byte) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	_, ok := inv.nodes[string(nodeID)]
	return ok
}

// appendToAll appends key to every node sequence registered at the moment
// of the call (spec.md §3's remove invariant). It snapshots the node set
// under the outer lock, then locks each node's sequence individually.
func (inv *invalidations) appendToAll(key []byte) {
	inv.mu.Lock()
	seqs := make([]*nodeSeq, 0, len(inv.nodes))
	for _, seq := range inv.nodes {
		seqs = append(seqs, seq)
	}
	inv.mu.Unlock()

	k := append([]byte(nil), key...)
	for _, seq := range seqs {
		seq.mu.Lock()
		seq.keys = append(seq.keys, k)
		seq.mu.Unlock()
	}
}

// update pops the head of nodeID's invalidation sequence.
func (inv *invalidations) update(nodeID []byte) ([]byte, error) {
	inv.mu.Lock()
	seq, ok := inv.nodes[string(nodeID)]
	inv.mu.Unlock()
	if !ok {
		return nil, meshkv.New(meshkv.KindUnknownNode, meshkv.SideCoordinator,
			fmt.Sprintf("node %q never joined", nodeID))
	}

	seq.mu.Lock()
	defer seq.mu.Unlock()
	if len(seq.keys) == 0 {
		return nil, meshkv.New(meshkv.KindNotFound, meshkv.SideCoordinator,
			fmt.Sprintf("invalidation queue for node %q is empty", nodeID))
	}
	key := seq.keys[0]
	seq.keys = seq.keys[1:]
	return key, nil
}
