package coordinator

import (
	"fmt"
	"sync"

	"github.com/machinefabric/meshkv-go"
)

// store is the coordinator's canonical Key→Value map (spec.md §3). A
// single RWMutex serializes access; push/remove take the write lock,
// contains/pull the read lock, matching CapRegistry's cache locking in the
// teacher (registry.go).
type store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newStore() *store {
	return &store{data: make(map[string][]byte)}
}

// push inserts (key, value) only if key is absent.
func (s *store) push(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if _, exists := s.data[k]; exists {
		return meshkv.New(meshkv.KindAlreadyExists, meshkv.SideCoordinator,
			fmt.Sprintf("key %q already present", key))
	}
	s.data[k] = append([]byte(nil), value...)
	return nil
}

// contains returns the byte length of key's value.
func (s *store) contains(key []byte) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[string(key)]
	if !ok {
		return 0, meshkv.New(meshkv.KindNotFound, meshkv.SideCoordinator,
			fmt.Sprintf("key %q not found", key))
	}
	return int64(len(v)), nil
}

// pull returns a copy of key's value. The copy is what makes pull_file's
// snapshot-at-stream-start guarantee (spec.md §4.2) hold: once pull
// returns, a concurrent remove cannot mutate the bytes already handed back.
func (s *store) pull(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[string(key)]
	if !ok {
		return nil, meshkv.New(meshkv.KindNotFound, meshkv.SideCoordinator,
			fmt.Sprintf("key %q not found", key))
	}
	return append([]byte(nil), v...), nil
}

// remove deletes key if present and reports whether it was.
func (s *store) remove(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if _, ok := s.data[k]; !ok {
		return false
	}
	delete(s.data, k)
	return true
}
