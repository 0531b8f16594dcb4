package rpc

import (
	"io"

	"github.com/google/uuid"

	"github.com/machinefabric/meshkv-go/frame"
)

// SendStream streams (key, value) as Chunk...End frames correlated by id.
// Used for push_file's request body, where the whole value is already in
// memory on the sending side.
func SendStream(c *Conn, id uuid.UUID, key, value []byte) error {
	pieces := frame.Emit(key, value)
	for i, p := range pieces {
		var f *Frame
		if i == len(pieces)-1 {
			f = NewEnd(id, p.Body)
		} else {
			f = NewChunk(id, p.Body)
		}
		if err := c.Send(f); err != nil {
			return err
		}
	}
	return nil
}

// SendStreamProduced streams (key, value) the same way as SendStream, but
// a dedicated goroutine emits frames onto a channel bounded at 4 (spec.md
// §5) while this goroutine drains it onto the connection. Used for
// pull_file, whose value is a point-in-time snapshot emitted as a lazy,
// finite, non-restartable sequence (spec.md §9).
func SendStreamProduced(c *Conn, id uuid.UUID, key, value []byte) error {
	ch := make(chan frame.Frame, 4)
	go func() {
		defer close(ch)
		_ = frame.EmitTo(key, value, func(fr frame.Frame) error {
			ch <- fr
			return nil
		})
	}()

	// drain discards whatever the producer still has queued, so abandoning
	// the loop below on a send error never leaves it blocked forever on
	// ch <- fr.
	drain := func() {
		for range ch {
		}
	}

	var prev *frame.Frame
	for piece := range ch {
		if prev != nil {
			if err := c.Send(NewChunk(id, prev.Body)); err != nil {
				drain()
				return err
			}
		}
		p := piece
		prev = &p
	}
	if prev == nil {
		return c.Send(NewEnd(id, nil))
	}
	return c.Send(NewEnd(id, prev.Body))
}

// RecvStream reads Chunk/End frames off ch until a terminal frame and
// reassembles the key/value they carry. If the terminal frame is a TypeErr,
// RecvStream returns it as errFrame instead of reassembling.
func RecvStream(ch <-chan *Frame) (key, value []byte, errFrame *Frame, err error) {
	var pieces []frame.Frame
	for {
		f, ok := <-ch
		if !ok {
			return nil, nil, nil, io.ErrClosedPipe
		}
		if f.Type == TypeErr {
			return nil, nil, f, nil
		}
		pieces = append(pieces, frame.Frame{Body: f.Value})
		if f.Type == TypeEnd {
			break
		}
	}
	key, value, err = frame.Receive(pieces)
	return key, value, nil, err
}
