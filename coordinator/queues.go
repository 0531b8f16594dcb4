package coordinator

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/machinefabric/meshkv-go"
)

// queueSeq is one named FIFO's values, plus an optional schema that every
// en_queued value must conform to (SPEC_FULL.md's named queue schemas,
// grounded on the teacher's schema_validation.go).
type queueSeq struct {
	mu     sync.Mutex
	values [][]byte
	schema *gojsonschema.Schema
}

// queues is the named-FIFO store (spec.md §3), nested the same way as
// invalidations: an outer mutex over the map of queue names, an inner
// mutex per queue.
type queues struct {
	mu    sync.Mutex
	named map[string]*queueSeq
}

func newQueues() *queues {
	return &queues{named: make(map[string]*queueSeq)}
}

func (q *queues) getOrCreate(name string) *queueSeq {
	q.mu.Lock()
	defer q.mu.Unlock()
	qs, ok := q.named[name]
	if !ok {
		qs = &queueSeq{}
		q.named[name] = qs
	}
	return qs
}

// registerSchema compiles schemaJSON and attaches it to name, creating the
// queue if it does not yet exist. A queue with no registered schema accepts
// any value, exactly as spec.md describes en_queue.
func (q *queues) registerSchema(name string, schemaJSON []byte) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return meshkv.Wrap(meshkv.KindInvalidArgument, meshkv.SideCoordinator,
			fmt.Sprintf("invalid JSON schema for queue %q", name), err)
	}
	qs := q.getOrCreate(name)
	qs.mu.Lock()
	qs.schema = schema
	qs.mu.Unlock()
	return nil
}

// enQueue appends value to name's FIFO, creating it if absent. If name has
// a registered schema, value must parse as JSON and validate against it.
func (q *queues) enQueue(name string, value []byte) error {
	qs := q.getOrCreate(name)

	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.schema != nil {
		result, err := qs.schema.Validate(gojsonschema.NewBytesLoader(value))
		if err != nil || !result.Valid() {
			return meshkv.New(meshkv.KindInvalidArgument, meshkv.SideCoordinator,
				fmt.Sprintf("value does not conform to schema registered for queue %q", name))
		}
	}

	qs.values = append(qs.values, append([]byte(nil), value...))
	return nil
}

// deQueue removes and returns the head of name's FIFO. An empty queue and
// a never-created one are indistinguishable to the caller, by design
// (spec.md §4.2).
func (q *queues) deQueue(name string) ([]byte, error) {
	q.mu.Lock()
	qs, ok := q.named[name]
	q.mu.Unlock()

	notFound := meshkv.New(meshkv.KindNotFound, meshkv.SideCoordinator,
		fmt.Sprintf("queue %q empty or absent", name))
	if !ok {
		return nil, notFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if len(qs.values) == 0 {
		return nil, notFound
	}
	v := qs.values[0]
	qs.values = qs.values[1:]
	return v, nil
}
