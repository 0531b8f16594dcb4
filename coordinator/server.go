package coordinator

import (
	"context"
	"errors"
	"net"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/machinefabric/meshkv-go"
	"github.com/machinefabric/meshkv-go/frame"
	"github.com/machinefabric/meshkv-go/rpc"
)

// Server exposes a Coordinator over the wire protocol of spec.md §6. One
// Server can serve many node connections; each connection is handled
// independently (spec.md §5 — many RPC handlers execute in parallel).
type Server struct {
	coord    *Coordinator
	maxFrame int
}

// NewServer wraps coord for network service. maxFrame overrides frame.Max
// for testing; zero means frame.Max.
func NewServer(coord *Coordinator, maxFrame int) *Server {
	if maxFrame <= 0 {
		maxFrame = frame.Max
	}
	return &Server{coord: coord, maxFrame: maxFrame}
}

// Serve accepts connections on ln until ctx is canceled or ln is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	c := rpc.NewConn(nc, s.maxFrame, s.dispatch)
	<-c.Done()
	nc.Close()
}

// dispatch runs on the connection's read loop for every inbound Req frame.
// It must not block, so streaming operations register their continuation
// channel here and hand it to a goroutine before returning.
func (s *Server) dispatch(req *rpc.Frame, c *rpc.Conn) {
	switch req.Op {
	case rpc.OpPushFile:
		ch := c.Register(req.ID)
		go s.handlePushFile(req, ch, c)
	default:
		go s.handleSimple(req, c)
	}
}

func (s *Server) handleSimple(req *rpc.Frame, c *rpc.Conn) {
	var resp *rpc.Frame
	switch req.Op {
	case rpc.OpJoin:
		err := s.coord.Join(req.Key)
		resp = resultFrame(req.ID, nil, 0, err)

	case rpc.OpContains:
		size, err := s.coord.Contains(req.Key)
		resp = resultFrame(req.ID, nil, size, err)

	case rpc.OpPush:
		err := s.coord.Push(req.Key, req.Value)
		resp = resultFrame(req.ID, nil, 0, err)

	case rpc.OpPull:
		value, err := s.coord.Pull(req.Key)
		resp = resultFrame(req.ID, value, 0, err)

	case rpc.OpPullFile:
		s.handlePullFile(req, c)
		return

	case rpc.OpRemove:
		err := s.coord.Remove(req.Key)
		resp = resultFrame(req.ID, nil, 0, err)

	case rpc.OpEnQueue:
		err := s.coord.EnQueue(string(req.Key), req.Value)
		resp = resultFrame(req.ID, nil, 0, err)

	case rpc.OpDeQueue:
		value, err := s.coord.DeQueue(string(req.Key))
		resp = resultFrame(req.ID, value, 0, err)

	case rpc.OpRegisterQueueSchema:
		err := s.coord.RegisterQueueSchema(string(req.Key), req.Value)
		resp = resultFrame(req.ID, nil, 0, err)

	case rpc.OpUpdate:
		key, err := s.coord.Update(req.Key)
		resp = resultFrame(req.ID, key, 0, err)

	default:
		resp = rpc.NewErr(req.ID, string(meshkv.KindInvalidArgument), "unknown operation")
	}

	if err := c.Send(resp); err != nil {
		glog.Warningf("coordinator: send response for %s: %v", req.Op, err)
	}
}

func (s *Server) handlePushFile(req *rpc.Frame, ch <-chan *rpc.Frame, c *rpc.Conn) {
	defer c.Unregister(req.ID)

	key, value, errFrame, err := rpc.RecvStream(ch)
	if errFrame != nil {
		// Peer aborted the stream; nothing to commit.
		return
	}
	if err != nil {
		c.Send(rpc.NewErr(req.ID, string(meshkv.KindMalformedStream), err.Error()))
		return
	}

	pushErr := s.coord.PushFile(key, value)
	c.Send(resultFrame(req.ID, nil, 0, pushErr))
}

func (s *Server) handlePullFile(req *rpc.Frame, c *rpc.Conn) {
	value, err := s.coord.PullFile(req.Key)
	if err != nil {
		c.Send(resultFrame(req.ID, nil, 0, err))
		return
	}
	if err := rpc.SendStreamProduced(c, req.ID, req.Key, value); err != nil {
		glog.Warningf("coordinator: pull_file stream for key %q: %v", req.Key, err)
	}
}

// resultFrame builds a Res frame from (value, size, nil) or an Err frame
// from a non-nil error, translating a *meshkv.Error's Kind and Message onto
// the wire (not its formatted Error() string, so the node side doesn't
// re-wrap an already-formatted "kind (side): message" string).
func resultFrame(id uuid.UUID, value []byte, size int64, err error) *rpc.Frame {
	if err != nil {
		var me *meshkv.Error
		if errors.As(err, &me) {
			return rpc.NewErr(id, string(me.Kind), me.Message)
		}
		return rpc.NewErr(id, string(meshkv.KindInternal), err.Error())
	}
	return rpc.NewRes(id, value, size)
}
