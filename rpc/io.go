package rpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/machinefabric/meshkv-go/frame"
)

// HardLimit bounds an incoming frame even before MaxFrame is consulted,
// guarding against a corrupt or hostile length prefix.
const HardLimit = 2 * frame.Max

// FrameReader reads length-prefixed CBOR frames from a stream.
type FrameReader struct {
	r        io.Reader
	maxFrame int
}

// NewFrameReader wraps r. maxFrame bounds the body of any single frame;
// zero means frame.Max.
func NewFrameReader(r io.Reader, maxFrame int) *FrameReader {
	if maxFrame <= 0 {
		maxFrame = frame.Max
	}
	return &FrameReader{r: r, maxFrame: maxFrame}
}

// ReadFrame reads a single frame from the stream.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	if int(length) > HardLimit {
		return nil, fmt.Errorf("rpc: frame size %d exceeds hard limit %d", length, HardLimit)
	}
	if int(length) > fr.maxFrame+headerSlack {
		return nil, fmt.Errorf("rpc: frame size %d exceeds max frame %d", length, fr.maxFrame)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, err
	}
	return DecodeFrame(body)
}

// headerSlack allows for the CBOR map overhead (IDs, type tags, ...) around
// a frame whose Value is exactly maxFrame bytes.
const headerSlack = 4096

// FrameWriter writes length-prefixed CBOR frames to a stream.
type FrameWriter struct {
	w        io.Writer
	maxFrame int
}

// NewFrameWriter wraps w with the same limit semantics as NewFrameReader.
func NewFrameWriter(w io.Writer, maxFrame int) *FrameWriter {
	if maxFrame <= 0 {
		maxFrame = frame.Max
	}
	return &FrameWriter{w: w, maxFrame: maxFrame}
}

// WriteFrame encodes and writes a single frame.
func (fw *FrameWriter) WriteFrame(f *Frame) error {
	body, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	if len(body) > fw.maxFrame+headerSlack {
		return fmt.Errorf("rpc: encoded frame size %d exceeds max frame %d", len(body), fw.maxFrame)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = fw.w.Write(body)
	return err
}
