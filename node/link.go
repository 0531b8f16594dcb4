package node

import (
	"context"
	"net"

	"github.com/machinefabric/meshkv-go"
	"github.com/machinefabric/meshkv-go/rpc"
)

// Link is a node's single persistent connection to the coordinator. All
// calls are synchronous from the caller's point of view; push_file and
// pull_file additionally drive the streaming frames of package frame over
// the same Conn (spec.md §6).
type Link struct {
	conn *rpc.Conn
}

// Dial opens a connection to the coordinator at addr. The returned Link has
// no RequestHandler — a node never receives unsolicited requests.
func Dial(addr string, maxFrame int) (*Link, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "dial coordinator", err)
	}
	return &Link{conn: rpc.NewConn(nc, maxFrame, nil)}, nil
}

// Close tears down the underlying connection.
func (l *Link) Close() error { return l.conn.Close() }

func (l *Link) call(op rpc.Op, key, value []byte) (*rpc.Frame, error) {
	req := rpc.NewReq(rpc.NewID(), op, key, value)
	resp, err := l.conn.Call(context.Background(), req)
	if err != nil {
		return nil, meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "rpc call", err)
	}
	if resp.Type == rpc.TypeErr {
		return nil, meshkv.New(meshkv.Kind(resp.ErrKind), meshkv.SideCoordinator, resp.ErrMsg)
	}
	return resp, nil
}

// Join registers nodeID with the coordinator.
func (l *Link) Join(nodeID []byte) error {
	_, err := l.call(rpc.OpJoin, nodeID, nil)
	return err
}

// Contains returns the byte length of key's value at the coordinator.
func (l *Link) Contains(key []byte) (int64, error) {
	resp, err := l.call(rpc.OpContains, key, nil)
	if err != nil {
		return 0, err
	}
	return resp.Size, nil
}

// Push writes (key, value) as a single frame.
func (l *Link) Push(key, value []byte) error {
	_, err := l.call(rpc.OpPush, key, value)
	return err
}

// Pull reads key's value as a single frame.
func (l *Link) Pull(key []byte) ([]byte, error) {
	resp, err := l.call(rpc.OpPull, key, nil)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Remove deletes key at the coordinator.
func (l *Link) Remove(key []byte) error {
	_, err := l.call(rpc.OpRemove, key, nil)
	return err
}

// EnQueue appends value to the named FIFO.
func (l *Link) EnQueue(name string, value []byte) error {
	_, err := l.call(rpc.OpEnQueue, []byte(name), value)
	return err
}

// DeQueue pops the head of the named FIFO.
func (l *Link) DeQueue(name string) ([]byte, error) {
	resp, err := l.call(rpc.OpDeQueue, []byte(name), nil)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// RegisterQueueSchema attaches a JSON Schema to a named queue.
func (l *Link) RegisterQueueSchema(name string, schemaJSON []byte) error {
	_, err := l.call(rpc.OpRegisterQueueSchema, []byte(name), schemaJSON)
	return err
}

// Update pops one key off this node's invalidation sequence.
func (l *Link) Update(nodeID []byte) ([]byte, error) {
	resp, err := l.call(rpc.OpUpdate, nodeID, nil)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// PushFile writes (key, value) as a Chunk...End stream, for values too large
// for a single frame (spec.md §4.1).
func (l *Link) PushFile(key, value []byte) error {
	id := rpc.NewID()
	ch := l.conn.Register(id)
	defer l.conn.Unregister(id)

	if err := l.conn.Send(rpc.NewReq(id, rpc.OpPushFile, nil, nil)); err != nil {
		return meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "send push_file request", err)
	}
	if err := rpc.SendStream(l.conn, id, key, value); err != nil {
		return meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "stream push_file body", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return meshkv.New(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "connection closed mid push_file")
		}
		if resp.Type == rpc.TypeErr {
			return meshkv.New(meshkv.Kind(resp.ErrKind), meshkv.SideCoordinator, resp.ErrMsg)
		}
		return nil
	case <-l.conn.Done():
		return meshkv.New(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "connection closed mid push_file")
	}
}

// PullFile reads key's value as a Chunk...End stream, for values too large
// for a single frame.
func (l *Link) PullFile(key []byte) ([]byte, error) {
	id := rpc.NewID()
	ch := l.conn.Register(id)
	defer l.conn.Unregister(id)

	if err := l.conn.Send(rpc.NewReq(id, rpc.OpPullFile, key, nil)); err != nil {
		return nil, meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "send pull_file request", err)
	}

	_, value, errFrame, err := rpc.RecvStream(ch)
	if errFrame != nil {
		return nil, meshkv.New(meshkv.Kind(errFrame.ErrKind), meshkv.SideCoordinator, errFrame.ErrMsg)
	}
	if err != nil {
		return nil, meshkv.Wrap(meshkv.KindCoordinatorUnreachable, meshkv.SideLocal, "receive pull_file stream", err)
	}
	return value, nil
}
