// Package rpc implements the wire protocol described in spec.md §6: a
// request/response RPC system carrying length-prefixed, CBOR-encoded
// messages over a TCP connection. It is modeled on the teacher's cbor
// package (github.com/fxamacker/cbor/v2 frames with a MessageId for
// correlation), adapted to the coordinator/node operations of this system
// instead of capability invocation.
package rpc

import (
	"fmt"

	"github.com/google/uuid"
)

// ProtocolVersion is bumped whenever the wire frame shape changes.
const ProtocolVersion uint8 = 1

// Type discriminates the frame kinds on the wire.
type Type uint8

const (
	// TypeReq opens a call: Op identifies the operation, Key/Value carry
	// its arguments (or are empty when the call's payload instead arrives as
	// a Chunk/End sequence, for push_file).
	TypeReq Type = iota
	// TypeRes closes a non-streaming call successfully.
	TypeRes
	// TypeChunk carries one frame of a streamed key/value (see package frame).
	// Not the final frame of the stream.
	TypeChunk
	// TypeEnd carries the final frame of a streamed key/value, or — with no
	// Value — simply terminates a non-streaming call's response when there is
	// no payload to return.
	TypeEnd
	// TypeErr closes a call with a typed failure.
	TypeErr
)

func (t Type) String() string {
	switch t {
	case TypeReq:
		return "REQ"
	case TypeRes:
		return "RES"
	case TypeChunk:
		return "CHUNK"
	case TypeEnd:
		return "END"
	case TypeErr:
		return "ERR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Op names an operation from the coordinator's RPC surface (spec.md §4.2)
// plus the node-originated join handshake and the queue-schema addition
// (SPEC_FULL.md).
type Op string

const (
	OpJoin                Op = "join"
	OpContains            Op = "contains"
	OpPush                Op = "push"
	OpPushFile            Op = "push_file"
	OpPull                Op = "pull"
	OpPullFile            Op = "pull_file"
	OpRemove              Op = "remove"
	OpEnQueue             Op = "en_queue"
	OpDeQueue             Op = "de_queue"
	OpUpdate              Op = "update"
	OpRegisterQueueSchema Op = "register_queue_schema"
)

// Frame is a single wire message. Fields are tagged for CBOR; unused fields
// for a given Type/Op are left at their zero value and omitted on the wire.
type Frame struct {
	Version uint8     `cbor:"v"`
	Type    Type      `cbor:"t"`
	ID      uuid.UUID `cbor:"id"`
	Op      Op        `cbor:"op,omitempty"`

	Key   []byte `cbor:"k,omitempty"`
	Value []byte `cbor:"val,omitempty"`
	Size  int64  `cbor:"sz,omitempty"`

	ErrKind string `cbor:"ek,omitempty"`
	ErrMsg  string `cbor:"em,omitempty"`
}

func newFrame(id uuid.UUID, t Type) *Frame {
	return &Frame{Version: ProtocolVersion, Type: t, ID: id}
}

// NewReq builds a TypeReq frame for op with its arguments.
func NewReq(id uuid.UUID, op Op, key, value []byte) *Frame {
	f := newFrame(id, TypeReq)
	f.Op = op
	f.Key = key
	f.Value = value
	return f
}

// NewRes builds a TypeRes frame carrying a single-frame result.
func NewRes(id uuid.UUID, value []byte, size int64) *Frame {
	f := newFrame(id, TypeRes)
	f.Value = value
	f.Size = size
	return f
}

// NewChunk builds a non-final frame of a streamed key/value.
func NewChunk(id uuid.UUID, body []byte) *Frame {
	f := newFrame(id, TypeChunk)
	f.Value = body
	return f
}

// NewEnd builds the final frame of a streamed key/value, or a bare
// terminator when body is nil.
func NewEnd(id uuid.UUID, body []byte) *Frame {
	f := newFrame(id, TypeEnd)
	f.Value = body
	return f
}

// NewErr builds a TypeErr frame carrying a typed failure.
func NewErr(id uuid.UUID, kind, msg string) *Frame {
	f := newFrame(id, TypeErr)
	f.ErrKind = kind
	f.ErrMsg = msg
	return f
}

// IsTerminal reports whether this frame ends a call (as opposed to being an
// intermediate Chunk of a streamed body).
func (f *Frame) IsTerminal() bool {
	return f.Type == TypeRes || f.Type == TypeEnd || f.Type == TypeErr
}
