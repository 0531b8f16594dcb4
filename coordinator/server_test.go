package coordinator

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/machinefabric/meshkv-go/frame"
	"github.com/machinefabric/meshkv-go/rpc"
)

// startServer spins up a Server on an ephemeral localhost port and returns
// its address plus a cleanup func.
func startServer(t *testing.T, coord *Coordinator) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(coord, 0)
	go srv.Serve(ctx, ln)

	return ln.Addr().String(), func() {
		cancel()
		ln.Close()
	}
}

func dial(t *testing.T, addr string) *rpc.Conn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	return rpc.NewConn(nc, frame.Max, nil)
}

func TestServerPushPullOverWire(t *testing.T) {
	addr, stop := startServer(t, New())
	defer stop()

	c := dial(t, addr)
	defer c.Close()

	resp, err := c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpPush, []byte("k"), []byte("v")))
	require.NoError(t, err)
	require.Equal(t, rpc.TypeRes, resp.Type)

	resp, err = c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpPull, []byte("k"), nil))
	require.NoError(t, err)
	require.Equal(t, rpc.TypeRes, resp.Type)
	require.Equal(t, []byte("v"), resp.Value)
}

func TestServerPushFilePullFileOverWire(t *testing.T) {
	addr, stop := startServer(t, New())
	defer stop()

	c := dial(t, addr)
	defer c.Close()

	value := bytes.Repeat([]byte("y"), 3*frame.Max+5)

	id := rpc.NewID()
	ch := c.Register(id)
	require.NoError(t, c.Send(rpc.NewReq(id, rpc.OpPushFile, nil, nil)))
	require.NoError(t, rpc.SendStream(c, id, []byte("big"), value))
	resp := <-ch
	require.Equal(t, rpc.TypeRes, resp.Type)
	c.Unregister(id)

	id2 := rpc.NewID()
	ch2 := c.Register(id2)
	require.NoError(t, c.Send(rpc.NewReq(id2, rpc.OpPullFile, []byte("big"), nil)))
	_, got, errFrame, err := rpc.RecvStream(ch2)
	require.NoError(t, err)
	require.Nil(t, errFrame)
	require.Equal(t, value, got)
	c.Unregister(id2)
}

func TestServerPullFileMissingKeyReturnsErr(t *testing.T) {
	addr, stop := startServer(t, New())
	defer stop()

	c := dial(t, addr)
	defer c.Close()

	id := rpc.NewID()
	ch := c.Register(id)
	require.NoError(t, c.Send(rpc.NewReq(id, rpc.OpPullFile, []byte("missing"), nil)))
	_, _, errFrame, err := rpc.RecvStream(ch)
	require.NoError(t, err)
	require.NotNil(t, errFrame)
	c.Unregister(id)
}

func TestServerJoinAndUpdateOverWire(t *testing.T) {
	addr, stop := startServer(t, New())
	defer stop()

	c := dial(t, addr)
	defer c.Close()

	_, err := c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpJoin, []byte("n1"), nil))
	require.NoError(t, err)

	_, err = c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpPush, []byte("k"), []byte("v")))
	require.NoError(t, err)

	_, err = c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpRemove, []byte("k"), nil))
	require.NoError(t, err)

	resp, err := c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpUpdate, []byte("n1"), nil))
	require.NoError(t, err)
	require.Equal(t, rpc.TypeRes, resp.Type)
	require.Equal(t, []byte("k"), resp.Value)

	resp, err = c.Call(context.Background(), rpc.NewReq(rpc.NewID(), rpc.OpUpdate, []byte("n1"), nil))
	require.NoError(t, err)
	require.Equal(t, rpc.TypeErr, resp.Type)
}
