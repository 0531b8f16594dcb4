package node

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/meshkv-go"
	"github.com/machinefabric/meshkv-go/coordinator"
	"github.com/machinefabric/meshkv-go/frame"
)

// startCoordinator spins up a coordinator.Server on an ephemeral localhost
// port and returns its address plus a cleanup func.
func startCoordinator(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := coordinator.NewServer(coordinator.New(), 0)
	go srv.Serve(ctx, ln)

	return ln.Addr().String(), func() {
		cancel()
		ln.Close()
	}
}

func newTestNode(t *testing.T, addr string, id string, poll time.Duration) *Node {
	t.Helper()
	n, err := New(addr, []byte(id), Options{PollInterval: poll})
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func TestInsertGetCacheHitAvoidsRPC(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	n := newTestNode(t, addr, "n1", time.Hour)
	require.NoError(t, n.Insert([]byte("k"), []byte("v")))

	// Drop the link so any further RPC would fail; a cache hit must not
	// need one.
	n.link.Close()

	v, err := n.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestInsertKeyOccupiedLocally(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	n := newTestNode(t, addr, "n1", time.Hour)
	require.NoError(t, n.Insert([]byte("k"), []byte("v")))

	err := n.Insert([]byte("k"), []byte("v2"))
	require.Error(t, err)
	assert.True(t, meshkv.Is(err, KindKeyOccupied))
}

func TestInsertKeyOccupiedLocalRefreshedFromCoordinator(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	writer := newTestNode(t, addr, "writer", time.Hour)
	require.NoError(t, writer.Insert([]byte("k"), []byte("coordinator-value")))

	reader := newTestNode(t, addr, "reader", time.Hour)
	err := reader.Insert([]byte("k"), []byte("my-local-attempt"))
	require.Error(t, err)
	assert.True(t, meshkv.Is(err, KindKeyOccupiedRefreshed))

	v, err := reader.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("coordinator-value"), v, "cache must hold the coordinator's value, not the rejected local one")
}

func TestGetMissReadsThroughAndCaches(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	writer := newTestNode(t, addr, "writer", time.Hour)
	require.NoError(t, writer.Insert([]byte("k"), []byte("v")))

	reader := newTestNode(t, addr, "reader", time.Hour)
	v, err := reader.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestGetMissNotFound(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	n := newTestNode(t, addr, "n1", time.Hour)
	_, err := n.Get([]byte("missing"))
	require.Error(t, err)
	assert.True(t, meshkv.Is(err, meshkv.KindNotFound))
}

func TestRemoveOKWhenBothSidesHadKey(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	n := newTestNode(t, addr, "n1", time.Hour)
	require.NoError(t, n.Insert([]byte("k"), []byte("v")))
	require.NoError(t, n.Remove([]byte("k")))
}

func TestRemovePartialWhenNotCachedLocally(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	writer := newTestNode(t, addr, "writer", time.Hour)
	require.NoError(t, writer.Insert([]byte("k"), []byte("v")))

	// reader never inserted or got k, so its cache never held it.
	reader := newTestNode(t, addr, "reader", time.Hour)
	err := reader.Remove([]byte("k"))
	require.Error(t, err)
	assert.True(t, meshkv.Is(err, KindPartialRemove))
	assert.Contains(t, err.Error(), "local")
}

func TestRemovePartialWhenAbsentAtCoordinator(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	n := newTestNode(t, addr, "n1", time.Hour)
	require.NoError(t, n.Insert([]byte("k"), []byte("v")))

	// other loads k into its own cache first, so its Remove finds k on both
	// sides and returns ok; n's long poll interval means its drain loop
	// hasn't run yet, so n's cache still (stalely) holds k afterward.
	other := newTestNode(t, addr, "other", time.Hour)
	_, err := other.Get([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, other.Remove([]byte("k")))

	removeErr := n.Remove([]byte("k"))
	require.Error(t, removeErr)
	assert.True(t, meshkv.Is(removeErr, KindPartialRemove))
	assert.Contains(t, removeErr.Error(), "coordinator")
}

func TestCrossNodeInvalidationWithinPollInterval(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	poll := 30 * time.Millisecond
	writer := newTestNode(t, addr, "writer", poll)
	reader := newTestNode(t, addr, "reader", poll)

	require.NoError(t, writer.Insert([]byte("k"), []byte("v")))
	_, err := reader.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, reader.cache.has([]byte("k")))

	require.NoError(t, writer.Remove([]byte("k")))

	require.Eventually(t, func() bool {
		return !reader.cache.has([]byte("k"))
	}, time.Second, 5*time.Millisecond, "reader's cache should be invalidated within a few poll intervals")
}

func TestLargeValueInsertAndGetRoundtrip(t *testing.T) {
	addr, stop := startCoordinator(t)
	defer stop()

	n := newTestNode(t, addr, "n1", time.Hour)
	value := make([]byte, 2*frame.Max+7)
	for i := range value {
		value[i] = byte(i)
	}

	require.NoError(t, n.Insert([]byte("big"), value))

	other := newTestNode(t, addr, "other", time.Hour)
	got, err := other.Get([]byte("big"))
	require.NoError(t, err)
	assert.Equal(t, value, got)
}
