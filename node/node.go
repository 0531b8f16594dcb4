// Package node implements the caching-node side of spec.md §4.3: a local
// read-through/write-through cache in front of a coordinator Link, kept
// coherent by a background drain of the coordinator's pull-based
// invalidation feed.
package node

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/machinefabric/meshkv-go"
	"github.com/machinefabric/meshkv-go/frame"
)

// DefaultPollInterval is POLL_INTERVAL (spec.md §4.3, §7) absent an override.
const DefaultPollInterval = 5 * time.Second

// Options configures a Node.
type Options struct {
	// PollInterval is the cadence of the background invalidation drain.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration
	// MaxFrame overrides frame.Max for both the wire connection and the
	// insert/get size threshold. Zero means frame.Max.
	MaxFrame int
}

// Node is one caching node: a coordinator Link plus a local cache kept
// coherent by a background drain loop.
type Node struct {
	self  []byte
	link  *Link
	cache *cache

	maxFrame int
	stop     chan struct{}
	done     chan struct{}
}

// New dials coordinatorAddr, joins as selfID, and starts the background
// drain loop.
func New(coordinatorAddr string, selfID []byte, opts Options) (*Node, error) {
	maxFrame := opts.MaxFrame
	if maxFrame <= 0 {
		maxFrame = frame.Max
	}

	link, err := Dial(coordinatorAddr, maxFrame)
	if err != nil {
		return nil, meshkv.Wrap(meshkv.KindJoinFailed, meshkv.SideLocal, "dial coordinator", err)
	}
	if err := link.Join(selfID); err != nil {
		link.Close()
		return nil, meshkv.Wrap(meshkv.KindJoinFailed, meshkv.SideLocal, "join coordinator", err)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	n := &Node{
		self:     append([]byte(nil), selfID...),
		link:     link,
		cache:    newCache(),
		maxFrame: maxFrame,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go n.drainLoop(interval)
	glog.Infof("node %q joined coordinator at %s", selfID, coordinatorAddr)
	return n, nil
}

// Close stops the background drain loop and closes the coordinator link.
func (n *Node) Close() error {
	close(n.stop)
	<-n.done
	return n.link.Close()
}

func (n *Node) drainLoop(interval time.Duration) {
	defer close(n.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.drainOnce()
		}
	}
}

// drainOnce calls update repeatedly until the coordinator reports this
// node's invalidation sequence empty, evicting each returned key from the
// local cache. Any other error aborts the pass; the next tick retries.
func (n *Node) drainOnce() {
	for {
		key, err := n.link.Update(n.self)
		if err != nil {
			if meshkv.Is(err, meshkv.KindNotFound) {
				return
			}
			glog.Warningf("node %q: invalidation drain aborted: %v", n.self, err)
			return
		}
		n.cache.evict(key)
	}
}

func (n *Node) frameLimit() int64 {
	if n.maxFrame <= 0 {
		return frame.Max
	}
	return int64(n.maxFrame)
}

// readThrough fetches key's value from the coordinator, choosing the
// single-frame or streamed path by size (spec.md §9 open question 5).
func (n *Node) readThrough(key []byte, size int64) ([]byte, error) {
	if size > n.frameLimit() {
		return n.link.PullFile(key)
	}
	return n.link.Pull(key)
}

// Insert implements spec.md §4.3's insert state machine.
func (n *Node) Insert(key, value []byte) error {
	if n.cache.has(key) {
		return meshkv.New(KindKeyOccupied, meshkv.SideLocal, "key already cached locally")
	}

	size, err := n.link.Contains(key)
	switch {
	case err == nil:
		existing, rerr := n.readThrough(key, size)
		if rerr != nil {
			return meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideCoordinator, "read-through after contains", rerr)
		}
		n.cache.put(key, existing)
		return meshkv.New(KindKeyOccupiedRefreshed, meshkv.SideCoordinator, "key already present at coordinator")

	case meshkv.Is(err, meshkv.KindNotFound):
		// Key is free; fall through to write it.

	default:
		return meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideCoordinator, "contains", err)
	}

	if int64(len(value)) > n.frameLimit() {
		err = n.link.PushFile(key, value)
	} else {
		err = n.link.Push(key, value)
	}
	if err != nil {
		return meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideCoordinator, "write", err)
	}

	n.cache.put(key, value)
	glog.Infof("node %q: inserted key %q (%s)", n.self, key, humanize.Bytes(uint64(len(value))))
	return nil
}

// Get implements spec.md §4.3's get: a cache hit never touches the
// coordinator; a miss reads through and populates the cache.
func (n *Node) Get(key []byte) ([]byte, error) {
	if v, ok := n.cache.get(key); ok {
		return v, nil
	}

	size, err := n.link.Contains(key)
	if err != nil {
		if meshkv.Is(err, meshkv.KindNotFound) {
			return nil, err
		}
		return nil, meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideCoordinator, "contains", err)
	}

	value, err := n.readThrough(key, size)
	if err != nil {
		return nil, meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideCoordinator, "read-through", err)
	}
	n.cache.put(key, value)
	return value, nil
}

// Remove implements spec.md §4.3's remove: ok only if both the coordinator
// and the local cache held key; otherwise a partial result naming which
// side(s) were already absent.
func (n *Node) Remove(key []byte) error {
	coordErr := n.link.Remove(key)
	if coordErr != nil && !meshkv.Is(coordErr, meshkv.KindNotFound) {
		return meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideCoordinator, "remove", coordErr)
	}
	coordHad := coordErr == nil
	// Not an eviction: the local entry is only ever cleared by the
	// background drain loop, never directly by remove (spec.md §4.3).
	localHad := n.cache.has(key)

	if coordHad && localHad {
		return nil
	}

	var missing []string
	if !coordHad {
		missing = append(missing, "coordinator")
	}
	if !localHad {
		missing = append(missing, "local")
	}
	return meshkv.New(KindPartialRemove, meshkv.SideLocal,
		fmt.Sprintf("already absent at: %s", strings.Join(missing, ", ")))
}

// EnQueue, DeQueue, and RegisterQueueSchema pass the named-queue operations
// straight through to the coordinator (spec.md §4.2; SPEC_FULL.md schema
// addition) — nodes do not cache queue state.
func (n *Node) EnQueue(name string, value []byte) error {
	return n.link.EnQueue(name, value)
}

func (n *Node) DeQueue(name string) ([]byte, error) {
	return n.link.DeQueue(name)
}

func (n *Node) RegisterQueueSchema(name string, schemaJSON []byte) error {
	return n.link.RegisterQueueSchema(name, schemaJSON)
}
